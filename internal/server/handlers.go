package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/engine"
	"github.com/skilletai/skillet/internal/execcontext"
	"github.com/skilletai/skillet/internal/parser"
	"github.com/skilletai/skillet/internal/repository"
	"github.com/skilletai/skillet/internal/store"
	"github.com/skilletai/skillet/pkg/events"
	"github.com/skilletai/skillet/pkg/schema"
)

// HTTP Handlers

// listSkills returns the latest version of every skill. An intent query
// parameter narrows the list to skills declaring that intent.
func (s *Server) listSkills(w http.ResponseWriter, r *http.Request) {
	var (
		skills []*ast.Skill
		err    error
	)

	if intent := r.URL.Query().Get("intent"); intent != "" {
		skills, err = s.repo.FindByIntent(intent)
	} else {
		skills, err = s.repo.FindAll()
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Listing skills: %v", err), http.StatusInternalServerError)
		return
	}

	listing := make(map[string]any, len(skills))
	for _, skill := range skills {
		listing[skill.ID] = map[string]any{
			"version":     skill.Version,
			"description": skill.Description,
			"intents":     skill.Intents,
			"steps":       len(skill.Steps),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"skills": listing})
}

// createSkill parses the request body as a skill document and stores it.
func (s *Server) createSkill(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, parser.DefaultMaxSize+1))
	if err != nil {
		http.Error(w, fmt.Sprintf("Reading request body: %v", err), http.StatusBadRequest)
		return
	}

	skill, err := s.parser.ParseBytes(body, "request")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Skill document is invalid",
			"details": err.Error(),
		})
		return
	}

	if err := s.repo.Save(skill); err != nil {
		http.Error(w, fmt.Sprintf("Storing skill: %v", err), http.StatusInternalServerError)
		return
	}

	log.Info().Str("skill_id", skill.ID).Str("version", skill.Version).Msg("Skill created over API")

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      skill.ID,
		"version": skill.Version,
	})
}

// getSkill returns one skill, latest version unless ?version= pins one.
// The response carries both the parsed form and the canonical document.
func (s *Server) getSkill(w http.ResponseWriter, r *http.Request) {
	skill, ok := s.findSkill(w, r)
	if !ok {
		return
	}

	document, err := parser.Serialize(skill)
	if err != nil {
		http.Error(w, fmt.Sprintf("Serializing skill: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"skill":    skill,
		"document": string(document),
	})
}

// deleteSkill removes one version of a skill. The version query parameter
// is required; deleting a whole skill id in one call is not supported.
func (s *Server) deleteSkill(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	version := r.URL.Query().Get("version")
	if version == "" {
		http.Error(w, "version query parameter required", http.StatusBadRequest)
		return
	}

	if err := s.repo.Delete(id, version); err != nil {
		if errors.Is(err, repository.ErrSkillNotFound) {
			http.Error(w, fmt.Sprintf("Skill '%s@%s' not found", id, version), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Deleting skill: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// listSkillVersions returns every stored version of a skill, oldest first.
func (s *Server) listSkillVersions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	skills, err := s.repo.FindAllVersions(id)
	if err != nil {
		if errors.Is(err, repository.ErrSkillNotFound) {
			http.Error(w, fmt.Sprintf("Skill '%s' not found", id), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Listing versions: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id": id,
		"versions": lo.Map(skills, func(skill *ast.Skill, _ int) string {
			return skill.Version
		}),
	})
}

// getSkillSchema returns the input and output contracts of a skill, the
// part a form-building client needs.
func (s *Server) getSkillSchema(w http.ResponseWriter, r *http.Request) {
	skill, ok := s.findSkill(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      skill.ID,
		"version": skill.Version,
		"input":   skill.Inputs,
		"output":  skill.Output,
	})
}

// getDocumentSchema returns the JSON schema of the skill document model
// plus the providers and tools this server can dispatch to.
func (s *Server) getDocumentSchema(w http.ResponseWriter, r *http.Request) {
	out, err := schema.Get(s.engine.Providers(), s.engine.Tools())
	if err != nil {
		http.Error(w, fmt.Sprintf("Building schema: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// executeSkill starts a skill execution and returns immediately with the
// execution id. The run itself happens in the background; progress is
// available over the status and stream endpoints.
func (s *Server) executeSkill(w http.ResponseWriter, r *http.Request) {
	skill, ok := s.findSkill(w, r)
	if !ok {
		return
	}

	if !s.manager.CanStartExecution() {
		http.Error(w, "Server at capacity, try again later", http.StatusServiceUnavailable)
		return
	}

	inputs, ok := decodeInputs(w, r)
	if !ok {
		return
	}

	validation := engine.ValidateSkillInputs(skill, inputs)
	if !validation.Valid {
		writeJSON(w, http.StatusBadRequest, formatValidationErrors(validation))
		return
	}
	processed := validation.ProcessedInputs

	// the run must outlive the request, so it hangs off the background
	// context rather than the request's
	ctx, cancel := s.runContext()
	executionID := "exec-" + uuid.NewString()

	status := s.manager.StartExecution(executionID, skill, cancel, processed)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"execution_id":  executionID,
		"skill_id":      skill.ID,
		"skill_version": skill.Version,
		"status":        status.Status,
		"started_at":    status.StartTime,
	})

	go s.runSkillAsync(ctx, skill, processed, executionID)
}

// runSkillAsync drives one execution segment in the background.
func (s *Server) runSkillAsync(ctx context.Context, skill *ast.Skill, inputs map[string]any, executionID string) {
	runCtx := execcontext.RunContext{Context: ctx, StdOut: io.Discard, StdErr: io.Discard}
	result := s.engine.ExecuteWithID(runCtx, skill, inputs, executionID)

	s.manager.FinishExecution(executionID, result)

	logExecutionSettled(executionID, skill.ID, result)
}

// resumeExecution continues a paused execution with the posted inputs.
// The inputs are validated against the awaited schema up front so schema
// misses come back as a 400 instead of a failed background run.
func (s *Server) resumeExecution(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["executionId"]

	snapshot, err := s.engine.Store().FindByID(executionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, fmt.Sprintf("Execution '%s' not found", executionID), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Loading execution: %v", err), http.StatusInternalServerError)
		return
	}
	if snapshot.Status != execcontext.SnapshotActive {
		http.Error(w, fmt.Sprintf("Execution '%s' is %s and cannot be resumed", executionID, snapshot.Status), http.StatusConflict)
		return
	}

	skill, err := s.repo.FindVersion(snapshot.SkillID, snapshot.SkillVersion)
	if err != nil {
		http.Error(w, fmt.Sprintf("Skill '%s@%s' for execution '%s' is no longer available",
			snapshot.SkillID, snapshot.SkillVersion, executionID), http.StatusConflict)
		return
	}

	if !s.manager.CanStartExecution() {
		http.Error(w, "Server at capacity, try again later", http.StatusServiceUnavailable)
		return
	}

	inputs, ok := decodeInputs(w, r)
	if !ok {
		return
	}

	if snapshot.AwaitRequest != nil {
		validation := engine.ValidateFields(snapshot.AwaitRequest.InputSchema, inputs)
		if !validation.Valid {
			writeJSON(w, http.StatusBadRequest, formatValidationErrors(validation))
			return
		}
	}

	ctx, cancel := s.runContext()
	status := s.manager.ResumeExecution(executionID, skill, cancel, inputs)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"execution_id": executionID,
		"skill_id":     skill.ID,
		"status":       status.Status,
	})

	go func() {
		runCtx := execcontext.RunContext{Context: ctx, StdOut: io.Discard, StdErr: io.Discard}
		result := s.engine.Resume(runCtx, skill, executionID, inputs)

		s.manager.FinishExecution(executionID, result)

		logExecutionSettled(executionID, skill.ID, result)
	}()
}

// cancelExecution stops an execution. Running executions are cancelled
// through their run context and settle at the next step boundary; paused
// ones have their snapshot retired immediately.
func (s *Server) cancelExecution(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["executionId"]

	if s.manager.CancelRunning(executionID) {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"execution_id": executionID,
			"status":       "cancelling",
		})
		return
	}

	if err := s.engine.Cancel(executionID); err != nil {
		var execErr *execcontext.ExecError
		if errors.As(err, &execErr) {
			switch execErr.Code {
			case execcontext.ErrExecutionNotFound:
				http.Error(w, fmt.Sprintf("Execution '%s' not found", executionID), http.StatusNotFound)
			default:
				http.Error(w, execErr.Message, http.StatusConflict)
			}
			return
		}
		http.Error(w, fmt.Sprintf("Cancelling execution: %v", err), http.StatusInternalServerError)
		return
	}

	s.manager.MarkCancelled(executionID)

	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id": executionID,
		"status":       StatusCancelled,
	})
}

// getExecution returns the status of a specific execution. Executions that
// paused before the server restarted are reconstructed from their snapshot.
func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["executionId"]

	if data, exists := s.manager.MarshalExecution(executionID); exists {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	snapshot, err := s.engine.Store().FindByID(executionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Execution '%s' not found", executionID), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id":  snapshot.ExecutionID,
		"skill_id":      snapshot.SkillID,
		"skill_version": snapshot.SkillVersion,
		"status":        snapshotAPIStatus(snapshot.Status),
		"await_request": snapshot.AwaitRequest,
	})
}

// streamExecution streams the events of one execution over a websocket.
// Buffered events are replayed first, then live events as they happen; the
// connection closes when the execution settles.
func (s *Server) streamExecution(w http.ResponseWriter, r *http.Request) {
	executionID := mux.Vars(r)["executionId"]

	status, exists := s.manager.GetExecution(executionID)
	if !exists {
		http.Error(w, fmt.Sprintf("Execution '%s' not found", executionID), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	// the replay and registration happen under the write lock the broadcast
	// path reads under. An event recorded after the snapshot blocks at the
	// lock until the client is registered, so it is neither lost nor sent
	// twice, and no two goroutines ever write the connection at once.
	status.clientsMu.Lock()
	replay, currentStatus, finalError, _ := s.manager.ProgressSnapshot(executionID)
	for _, event := range replay {
		eventJSON, _ := json.Marshal(event)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, eventJSON); err != nil {
			break
		}
	}

	// a client attaching after the fact still gets a terminal event
	if currentStatus == StatusCompleted || currentStatus == StatusFailed || currentStatus == StatusCancelled {
		finalEvent := events.ExecutionEvent{
			Type:        events.EventExecutionCompleted,
			Timestamp:   time.Now(),
			ExecutionID: executionID,
		}
		if finalError != "" {
			finalEvent.Type = events.EventExecutionFailed
			finalEvent.Error = finalError
		}
		eventJSON, _ := json.Marshal(finalEvent)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, eventJSON)
	}

	status.clients[conn] = true
	status.clientsMu.Unlock()

	// hold the connection until the execution settles or the client leaves
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}

		current, tracked := s.manager.Status(executionID)
		if !tracked || (current != StatusRunning && current != StatusAwaiting) {
			break
		}
	}

	status.clientsMu.Lock()
	delete(status.clients, conn)
	status.clientsMu.Unlock()
}

// healthCheck returns server health status
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"skills_loaded":     s.SkillCount(),
		"active_executions": s.manager.GetActiveExecutions(),
		"timestamp":         time.Now(),
	})
}

// findSkill resolves the skill named in the route, honoring an optional
// version pin, and writes the 404 itself when there is nothing to serve.
func (s *Server) findSkill(w http.ResponseWriter, r *http.Request) (*ast.Skill, bool) {
	id := mux.Vars(r)["id"]
	version := r.URL.Query().Get("version")

	var (
		skill *ast.Skill
		err   error
	)
	if version != "" {
		skill, err = s.repo.FindVersion(id, version)
	} else {
		skill, err = s.repo.FindByID(id)
	}

	if err != nil {
		if errors.Is(err, repository.ErrSkillNotFound) {
			if version != "" {
				http.Error(w, fmt.Sprintf("Skill '%s@%s' not found", id, version), http.StatusNotFound)
			} else {
				http.Error(w, fmt.Sprintf("Skill '%s' not found", id), http.StatusNotFound)
			}
			return nil, false
		}
		http.Error(w, fmt.Sprintf("Loading skill: %v", err), http.StatusInternalServerError)
		return nil, false
	}

	return skill, true
}

// runContext builds the context a background run lives under. The
// configured timeout bounds a single run segment, not the await pause.
func (s *Server) runContext() (context.Context, context.CancelFunc) {
	if s.config.Timeout > 0 {
		return context.WithTimeout(context.Background(), s.config.Timeout)
	}
	return context.WithCancel(context.Background())
}

// decodeInputs reads the {"inputs": {...}} request envelope. A missing or
// empty body means no inputs.
func decodeInputs(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var req struct {
		Inputs map[string]any `json:"inputs"`
	}

	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
			return nil, false
		}
	}

	if req.Inputs == nil {
		req.Inputs = make(map[string]any)
	}
	return req.Inputs, true
}

// snapshotAPIStatus maps a snapshot lifecycle state onto the API's
// execution states.
func snapshotAPIStatus(status execcontext.SnapshotStatus) string {
	switch status {
	case execcontext.SnapshotActive:
		return StatusAwaiting
	case execcontext.SnapshotResumed:
		return StatusRunning
	case execcontext.SnapshotCancelled:
		return StatusCancelled
	default:
		return string(status)
	}
}

func logExecutionSettled(executionID, skillID string, result *engine.SkillResult) {
	entry := log.Info().
		Str("execution_id", executionID).
		Str("skill_id", skillID).
		Bool("success", result.Success).
		Bool("awaiting", result.Awaiting)
	if result.Error != nil {
		entry = entry.Str("error_code", string(result.Error.Code))
	}
	entry.Msg("Skill execution settled")
}

// formatValidationErrors formats validation errors for HTTP response
func formatValidationErrors(result *engine.InputValidationResult) map[string]any {
	details := make([]map[string]any, len(result.Errors))
	for i, err := range result.Errors {
		detail := map[string]any{
			"field":   err.Field,
			"message": err.Message,
		}
		if err.Value != nil {
			detail["value"] = err.Value
		}
		details[i] = detail
	}

	return map[string]any{
		"error":   "Input validation failed",
		"details": details,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Package server exposes skills over HTTP: a REST surface for managing
// the skill repository, async execution with resume and cancel, and a
// websocket stream of execution events.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/skilletai/skillet/internal/ast"
	"github.com/skilletai/skillet/internal/engine"
	"github.com/skilletai/skillet/internal/execcontext"
	"github.com/skilletai/skillet/internal/parser"
	"github.com/skilletai/skillet/internal/repository"
	"github.com/skilletai/skillet/pkg/events"
)

// Config holds the server configuration
type Config struct {
	Host            string
	Port            int
	Concurrency     int
	Timeout         time.Duration
	EnableMetrics   bool
	EnableCORS      bool
	SkillFiles      []string
	SkillDir        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            8080,
		Concurrency:     5,
		Timeout:         30 * time.Minute,
		EnableMetrics:   true,
		EnableCORS:      true,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Execution lifecycle states reported by the API.
const (
	StatusRunning   = "running"
	StatusAwaiting  = "awaiting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// writeWait bounds how long a single websocket write may block before the
// client is considered gone.
const writeWait = 10 * time.Second

// eventBufferSize is the capacity of the engine event channel. The pump
// drains continuously, the buffer only smooths bursts.
const eventBufferSize = 256

// ExecutionStatus tracks one skill execution from the API's point of view.
type ExecutionStatus struct {
	ExecutionID  string                    `json:"execution_id"`
	SkillID      string                    `json:"skill_id"`
	SkillVersion string                    `json:"skill_version"`
	Status       string                    `json:"status"`
	StartTime    time.Time                 `json:"start_time"`
	EndTime      *time.Time                `json:"end_time,omitempty"`
	Duration     time.Duration             `json:"duration"`
	Inputs       map[string]any            `json:"inputs"`
	Output       map[string]any            `json:"output,omitempty"`
	Error        string                    `json:"error,omitempty"`
	AwaitRequest *execcontext.AwaitRequest `json:"await_request,omitempty"`
	Progress     []events.ExecutionEvent   `json:"progress,omitempty"`

	// WebSocket connections streaming this execution
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// cancels the run context of an in-flight execution
	cancel context.CancelFunc
}

func (s *ExecutionStatus) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for client := range s.clients {
		_ = client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
}

// ExecutionManager tracks concurrent skill executions and enforces the
// server's concurrency ceiling. Awaiting executions do not hold a slot; a
// skill can pause for hours without starving the server.
type ExecutionManager struct {
	executions     map[string]*ExecutionStatus
	maxConcurrency int
	currentCount   int
	mu             sync.RWMutex

	totalExecutions   prometheus.Counter
	activeExecutions  prometheus.Gauge
	executionDuration prometheus.HistogramVec
	executionStatus   prometheus.CounterVec
}

// NewExecutionManager creates an execution manager registered against the
// default Prometheus registerer.
func NewExecutionManager(maxConcurrency int) *ExecutionManager {
	return NewExecutionManagerWithRegistry(maxConcurrency, prometheus.DefaultRegisterer)
}

// NewExecutionManagerWithRegistry creates an execution manager with a custom
// metrics registerer. A nil registerer leaves the metrics unregistered,
// which tests use to avoid collisions.
func NewExecutionManagerWithRegistry(maxConcurrency int, registerer prometheus.Registerer) *ExecutionManager {
	em := &ExecutionManager{
		executions:     make(map[string]*ExecutionStatus),
		maxConcurrency: maxConcurrency,

		totalExecutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skillet_executions_total",
			Help: "Total number of skill executions started",
		}),
		activeExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skillet_executions_active",
			Help: "Number of currently running skill executions",
		}),
		executionDuration: *prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "skillet_execution_duration_seconds",
			Help: "Skill execution run segment duration in seconds",
		}, []string{"skill_id", "status"}),
		executionStatus: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillet_execution_status_total",
			Help: "Execution settlements by status",
		}, []string{"skill_id", "status"}),
	}

	if registerer != nil {
		registerer.MustRegister(em.totalExecutions)
		registerer.MustRegister(em.activeExecutions)
		registerer.MustRegister(em.executionDuration)
		registerer.MustRegister(em.executionStatus)
	}

	return em
}

// CanStartExecution checks if a new execution can be started
func (em *ExecutionManager) CanStartExecution() bool {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.currentCount < em.maxConcurrency
}

// StartExecution starts tracking a new execution
func (em *ExecutionManager) StartExecution(executionID string, skill *ast.Skill, cancel context.CancelFunc, inputs map[string]any) *ExecutionStatus {
	em.mu.Lock()
	defer em.mu.Unlock()

	status := &ExecutionStatus{
		ExecutionID:  executionID,
		SkillID:      skill.ID,
		SkillVersion: skill.Version,
		Status:       StatusRunning,
		StartTime:    time.Now(),
		Inputs:       inputs,
		Progress:     make([]events.ExecutionEvent, 0),
		clients:      make(map[*websocket.Conn]bool),
		cancel:       cancel,
	}

	em.executions[executionID] = status
	em.currentCount++

	em.totalExecutions.Inc()
	em.activeExecutions.Inc()

	return status
}

// ResumeExecution marks a tracked execution as running again, or starts
// tracking it fresh when the pause outlived the server process.
func (em *ExecutionManager) ResumeExecution(executionID string, skill *ast.Skill, cancel context.CancelFunc, inputs map[string]any) *ExecutionStatus {
	em.mu.Lock()

	status, exists := em.executions[executionID]
	if !exists {
		em.mu.Unlock()
		return em.StartExecution(executionID, skill, cancel, inputs)
	}

	status.Status = StatusRunning
	status.AwaitRequest = nil
	status.EndTime = nil
	status.cancel = cancel
	em.currentCount++

	em.activeExecutions.Inc()
	em.mu.Unlock()

	return status
}

// FinishExecution settles a run segment from the engine's result envelope:
// completed, failed, cancelled, or paused awaiting input. Stream clients
// stay registered either way; the event pump closes them once the terminal
// event has gone out.
func (em *ExecutionManager) FinishExecution(executionID string, result *engine.SkillResult) {
	em.mu.Lock()
	defer em.mu.Unlock()

	status, exists := em.executions[executionID]
	if !exists {
		return
	}

	now := time.Now()
	status.Duration = now.Sub(status.StartTime)

	switch {
	case result.Awaiting:
		status.Status = StatusAwaiting
		status.AwaitRequest = result.AwaitRequest
	case result.Success:
		status.Status = StatusCompleted
		status.EndTime = &now
		status.Output = result.Output
	case result.Error != nil && result.Error.Code == execcontext.ErrExecutionCancelled:
		status.Status = StatusCancelled
		status.EndTime = &now
		status.Error = result.Error.Error()
	default:
		status.Status = StatusFailed
		status.EndTime = &now
		if result.Error != nil {
			status.Error = result.Error.Error()
		}
	}

	em.currentCount--
	em.activeExecutions.Dec()
	em.executionDuration.WithLabelValues(status.SkillID, status.Status).Observe(status.Duration.Seconds())
	em.executionStatus.WithLabelValues(status.SkillID, status.Status).Inc()
}

// MarkCancelled settles an awaiting execution that was cancelled through
// its snapshot rather than its run context.
func (em *ExecutionManager) MarkCancelled(executionID string) {
	em.mu.Lock()
	defer em.mu.Unlock()

	status, exists := em.executions[executionID]
	if !exists {
		return
	}

	now := time.Now()
	status.Status = StatusCancelled
	status.EndTime = &now
	status.Duration = now.Sub(status.StartTime)
	em.executionStatus.WithLabelValues(status.SkillID, status.Status).Inc()
}

// GetExecution retrieves an execution status
func (em *ExecutionManager) GetExecution(executionID string) (*ExecutionStatus, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()
	status, exists := em.executions[executionID]
	return status, exists
}

// MarshalExecution renders an execution as JSON while holding the lock, so
// a settling run cannot race the encoder.
func (em *ExecutionManager) MarshalExecution(executionID string) ([]byte, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()

	status, exists := em.executions[executionID]
	if !exists {
		return nil, false
	}
	data, err := json.Marshal(status)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Status returns the lifecycle state of a tracked execution.
func (em *ExecutionManager) Status(executionID string) (string, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()

	status, exists := em.executions[executionID]
	if !exists {
		return "", false
	}
	return status.Status, true
}

// ProgressSnapshot copies an execution's recorded events and current state
// for replay to a late-attaching stream client.
func (em *ExecutionManager) ProgressSnapshot(executionID string) ([]events.ExecutionEvent, string, string, bool) {
	em.mu.RLock()
	defer em.mu.RUnlock()

	status, exists := em.executions[executionID]
	if !exists {
		return nil, "", "", false
	}

	replay := make([]events.ExecutionEvent, len(status.Progress))
	copy(replay, status.Progress)
	return replay, status.Status, status.Error, true
}

// CancelRunning fires the run-context cancel of a running execution. It
// reports false when the execution is not tracked or not running; paused
// executions are cancelled through their snapshot instead.
func (em *ExecutionManager) CancelRunning(executionID string) bool {
	em.mu.RLock()
	status, exists := em.executions[executionID]
	var cancel context.CancelFunc
	if exists && status.Status == StatusRunning {
		cancel = status.cancel
	}
	em.mu.RUnlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// AddProgressEvent records an execution event and broadcasts it to the
// execution's stream clients.
func (em *ExecutionManager) AddProgressEvent(executionID string, event events.ExecutionEvent) {
	em.mu.Lock()
	status, exists := em.executions[executionID]
	if !exists {
		em.mu.Unlock()
		return
	}
	status.Progress = append(status.Progress, event)
	em.mu.Unlock()

	status.clientsMu.RLock()
	defer status.clientsMu.RUnlock()

	eventJSON, _ := json.Marshal(event)
	for client := range status.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		_ = client.WriteMessage(websocket.TextMessage, eventJSON)
	}
}

// GetActiveExecutions returns the number of running executions.
func (em *ExecutionManager) GetActiveExecutions() int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.currentCount
}

// Server is the Skillet HTTP server. Skills come from the repository, runs
// go through a single shared engine, and the manager tracks every live
// execution for the status and stream endpoints.
type Server struct {
	config   *Config
	repo     repository.SkillRepository
	parser   *parser.DocParser
	engine   *engine.Engine
	manager  *ExecutionManager
	metrics  *prometheus.Registry
	events   chan events.ExecutionEvent
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a server backed by the given repository. A nil repository
// gets an in-memory one. The engine options let callers swap registries;
// the event channel is wired here, so passing WithEvents would disconnect
// the stream endpoint.
func New(config *Config, repo repository.SkillRepository, engineOpts ...engine.Option) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if repo == nil {
		repo = repository.NewMemoryRepository()
	}

	metrics := prometheus.NewRegistry()
	eventCh := make(chan events.ExecutionEvent, eventBufferSize)

	opts := append([]engine.Option{engine.WithEvents(eventCh)}, engineOpts...)

	s := &Server{
		config:  config,
		repo:    repo,
		parser:  parser.NewDocParser(),
		engine:  engine.NewEngine(opts...),
		manager: NewExecutionManagerWithRegistry(config.Concurrency, metrics),
		metrics: metrics,
		events:  eventCh,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return config.EnableCORS
			},
		},
	}

	go s.pumpEvents()

	return s, nil
}

// pumpEvents routes engine events to the manager. The pump is the only
// place stream clients are closed: closing after the terminal event has
// been broadcast guarantees clients see it first.
func (s *Server) pumpEvents() {
	for event := range s.events {
		s.manager.AddProgressEvent(event.ExecutionID, event)

		switch event.Type {
		case events.EventExecutionCompleted, events.EventExecutionFailed,
			events.EventExecutionCancelled, events.EventExecutionExpired:
			if status, ok := s.manager.GetExecution(event.ExecutionID); ok {
				status.closeClients()
			}
		}
	}
}

// Engine returns the engine executions run on.
func (s *Server) Engine() *engine.Engine { return s.engine }

// Repository returns the skill repository the server serves from.
func (s *Server) Repository() repository.SkillRepository { return s.repo }

// LoadSkills parses the configured skill files and directory into the
// repository. An empty configuration is not an error; the repository may
// already hold skills, and more can be created over the API.
func (s *Server) LoadSkills() error {
	files := append([]string{}, s.config.SkillFiles...)
	if s.config.SkillDir != "" {
		dirFiles, err := findSkillFiles(s.config.SkillDir)
		if err != nil {
			return fmt.Errorf("scanning skill directory: %w", err)
		}
		files = append(files, dirFiles...)
	}

	for _, file := range files {
		skill, err := s.parser.ParseFile(file)
		if err != nil {
			return fmt.Errorf("parsing skill %s: %w", file, err)
		}
		if err := s.repo.Save(skill); err != nil {
			return fmt.Errorf("storing skill %s: %w", skill.Key(), err)
		}

		log.Info().
			Str("skill_id", skill.ID).
			Str("version", skill.Version).
			Str("file", file).
			Msg("Skill loaded")
	}

	return nil
}

// SkillCount returns the number of distinct skills in the repository.
func (s *Server) SkillCount() int {
	skills, err := s.repo.FindAll()
	if err != nil {
		return 0
	}
	return len(skills)
}

// Router builds the HTTP route table. Exposed so tests can drive the
// handlers without binding a port.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	if s.config.EnableCORS {
		router.Use(s.corsMiddleware)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)

	api.HandleFunc("/skills", s.listSkills).Methods("GET")
	api.HandleFunc("/skills", s.createSkill).Methods("POST")
	api.HandleFunc("/skills/{id}", s.getSkill).Methods("GET")
	api.HandleFunc("/skills/{id}", s.deleteSkill).Methods("DELETE")
	api.HandleFunc("/skills/{id}/versions", s.listSkillVersions).Methods("GET")
	api.HandleFunc("/skills/{id}/schema", s.getSkillSchema).Methods("GET")
	api.HandleFunc("/skills/{id}/execute", s.executeSkill).Methods("POST")

	api.HandleFunc("/executions/{executionId}", s.getExecution).Methods("GET")
	api.HandleFunc("/executions/{executionId}/resume", s.resumeExecution).Methods("POST")
	api.HandleFunc("/executions/{executionId}/cancel", s.cancelExecution).Methods("POST")
	api.HandleFunc("/executions/{executionId}/stream", s.streamExecution).Methods("GET")

	api.HandleFunc("/schema", s.getDocumentSchema).Methods("GET")

	if s.config.EnableCORS {
		api.Methods("OPTIONS").HandlerFunc(s.handleOptions)
	}

	if s.config.EnableMetrics {
		router.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	router.HandleFunc("/health", s.healthCheck)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.Info().
		Str("addr", addr).
		Int("skills", s.SkillCount()).
		Int("concurrency", s.config.Concurrency).
		Bool("metrics", s.config.EnableMetrics).
		Msg("Starting Skillet server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Info().Msg("Shutting down server...")
	return s.server.Shutdown(ctx)
}

// StartWithGracefulShutdown starts the server and blocks until SIGINT or
// SIGTERM, then shuts down within the configured timeout.
func (s *Server) StartWithGracefulShutdown() error {
	if err := s.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer shutdownCancel()

		if err := s.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}

		cancel()
	}()

	<-ctx.Done()
	log.Info().Msg("Server shutdown complete")
	return nil
}

// GetAddr returns the server address
func (s *Server) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// findSkillFiles walks a directory for skill documents.
func findSkillFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".skill.md") {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// handleOptions handles CORS preflight requests
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	// CORS headers are already set by middleware
	w.WriteHeader(http.StatusOK)
}

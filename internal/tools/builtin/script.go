package builtin

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/skilletai/skillet/internal/tools"
)

// scriptInput is the JSON document written to the script's stdin.
type scriptInput struct {
	Inputs map[string]interface{} `json:"inputs"`
	Env    map[string]string      `json:"env"`
}

// scriptError is the structured error a script may print to stderr.
type scriptError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// RunScriptTool executes a shell script in a subprocess. The script reads
// `{inputs, env}` as JSON on stdin (the inputs are also in SKILLET_INPUTS)
// and reports results by printing a JSON object to stdout; non-JSON output
// is returned under the `stdout` key. Script bodies are cached on disk
// keyed by content hash.
type RunScriptTool struct {
	tools.BaseTool

	cacheDir string
}

func NewRunScriptTool(cacheDir string) *RunScriptTool {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "skillet-scripts")
	}

	return &RunScriptTool{
		BaseTool: tools.BaseTool{
			ToolName:        "run_script",
			ToolDescription: "Runs a shell script and returns its JSON output",
			ToolCategory:    "system",
			ToolTags:        []string{"system", "shell"},
			ToolVersion:     "1.0.0",
			Input: tools.ToolSchema{
				"script": {
					Type:        "string",
					Description: "Script body to execute",
					Required:    true,
				},
				"shell": {
					Type:         "string",
					Description:  "Shell to run the script with",
					DefaultValue: "bash",
					Options:      []interface{}{"bash", "sh"},
				},
				"inputs": {
					Type:        "object",
					Description: "Values passed to the script on stdin and in SKILLET_INPUTS",
				},
				"env": {
					Type:        "object",
					Description: "Extra environment variables for the script",
				},
			},
			Output: tools.ToolSchema{
				"stdout": {Type: "string", Description: "Raw stdout when the script prints no JSON object"},
			},
		},
		cacheDir: cacheDir,
	}
}

func (t *RunScriptTool) Execute(ctx context.Context, input map[string]interface{}, output *tools.OutputContext) error {
	script, _ := input["script"].(string)
	shell, _ := input["shell"].(string)
	if shell == "" {
		shell = "bash"
	}

	scriptPath, err := t.getOrPrepare(script)
	if err != nil {
		return fmt.Errorf("preparing script: %w", err)
	}

	scriptInputs, _ := input["inputs"].(map[string]interface{})
	if scriptInputs == nil {
		scriptInputs = map[string]interface{}{}
	}
	inputJSON, err := json.Marshal(scriptInputs)
	if err != nil {
		return fmt.Errorf("encoding script inputs: %w", err)
	}

	execInput := scriptInput{
		Inputs: scriptInputs,
		Env: map[string]string{
			"SKILLET_INPUTS": string(inputJSON),
		},
	}
	if extra, ok := input["env"].(map[string]interface{}); ok {
		for key, value := range extra {
			execInput.Env[key] = fmt.Sprintf("%v", value)
		}
	}

	stdinJSON, err := json.Marshal(execInput)
	if err != nil {
		return fmt.Errorf("encoding script stdin: %w", err)
	}

	cmd := exec.Command(shell, scriptPath)
	cmd.Stdin = bytes.NewReader(stdinJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Env = os.Environ()
	for key, value := range execInput.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting script: %w", err)
	}
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			if stderr.Len() > 0 {
				var scriptErr scriptError
				if jsonErr := json.Unmarshal(stderr.Bytes(), &scriptErr); jsonErr == nil && scriptErr.Message != "" {
					return fmt.Errorf("script failed: %s", scriptErr.Message)
				}
				return fmt.Errorf("script failed: %s", stderr.String())
			}
			return fmt.Errorf("script failed: %w: %s", err, stdout.String())
		}
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return fmt.Errorf("script cancelled: %w", ctx.Err())
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		output.Set("stdout", stdout.String())
		return nil
	}

	output.SetAll(parsed)
	return nil
}

// getOrPrepare writes the script to a content-addressed cache file and
// returns its path. Re-running the same script body reuses the file.
func (t *RunScriptTool) getOrPrepare(script string) (string, error) {
	if err := os.MkdirAll(t.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	hash := sha256.Sum256([]byte(script))
	cacheKey := hex.EncodeToString(hash[:])
	scriptPath := filepath.Join(t.cacheDir, fmt.Sprintf("script_%s.sh", cacheKey[:12]))

	if _, err := os.Stat(scriptPath); err == nil {
		return scriptPath, nil
	}

	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("writing script: %w", err)
	}
	return scriptPath, nil
}

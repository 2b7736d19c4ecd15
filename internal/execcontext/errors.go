package execcontext

import "fmt"

// ErrorCode classifies execution failures so callers can branch on the
// kind of failure instead of matching message strings.
type ErrorCode string

const (
	ErrSkillParse         ErrorCode = "SKILL_PARSE"
	ErrConditionParse     ErrorCode = "CONDITION_PARSE"
	ErrTemplateRender     ErrorCode = "TEMPLATE_RENDER"
	ErrToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	ErrToolExecution      ErrorCode = "TOOL_EXECUTION"
	ErrLLMInvocation      ErrorCode = "LLM_INVOCATION"
	ErrAwaitValidation    ErrorCode = "AWAIT_VALIDATION"
	ErrOutputValidation   ErrorCode = "OUTPUT_VALIDATION"
	ErrExecutionNotFound  ErrorCode = "EXECUTION_NOT_FOUND"
	ErrExecutionCompleted ErrorCode = "EXECUTION_ALREADY_COMPLETED"
	ErrExecutionCancelled ErrorCode = "EXECUTION_CANCELLED"
	ErrStateStore         ErrorCode = "STATE_STORE"
)

// ExecError is the structured error carried in result envelopes and step
// results. StepName is empty for failures that are not tied to a single
// step (snapshot lookups, output contract violations).
type ExecError struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	StepName string    `json:"stepName,omitempty"`
}

func (e *ExecError) Error() string {
	if e.StepName != "" {
		return fmt.Sprintf("%s: %s (step %q)", e.Code, e.Message, e.StepName)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewExecError builds an ExecError with a formatted message.
func NewExecError(code ErrorCode, stepName, format string, args ...interface{}) *ExecError {
	return &ExecError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		StepName: stepName,
	}
}

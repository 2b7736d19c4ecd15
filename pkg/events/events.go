// Package events provides types and interfaces for observing skill execution
// progress. This package enables monitoring of the execution lifecycle, from
// the first step to completion, including pause points where an execution is
// awaiting user input.
//
// The core types allow for real-time progress monitoring of Skillet skill
// executions, providing detailed information about each step's execution
// state, timing, and any errors that occur along the way.
package events

import (
	"time"
)

// ExecutionEventType represents the type of execution event that occurred
// while a skill was running. These events provide granular visibility into
// the execution lifecycle.
type ExecutionEventType string

const (
	// EventExecutionStarted is emitted when a skill begins execution.
	EventExecutionStarted ExecutionEventType = "execution_started"

	// EventExecutionCompleted is emitted when a skill successfully completes.
	EventExecutionCompleted ExecutionEventType = "execution_completed"

	// EventExecutionFailed is emitted when a skill fails and cannot continue.
	EventExecutionFailed ExecutionEventType = "execution_failed"

	// EventExecutionAwaiting is emitted when an execution pauses at an await
	// step and a snapshot has been persisted.
	EventExecutionAwaiting ExecutionEventType = "execution_awaiting"

	// EventExecutionResumed is emitted when a paused execution picks up
	// again after user input arrives.
	EventExecutionResumed ExecutionEventType = "execution_resumed"

	// EventExecutionCancelled is emitted when a paused execution is
	// cancelled before it can be resumed.
	EventExecutionCancelled ExecutionEventType = "execution_cancelled"

	// EventExecutionExpired is emitted when a paused execution outlives the
	// await timeout and is retired by the sweeper.
	EventExecutionExpired ExecutionEventType = "execution_expired"

	// EventStepStarted is emitted when an individual step begins execution.
	EventStepStarted ExecutionEventType = "step_started"

	// EventStepCompleted is emitted when a step successfully completes.
	EventStepCompleted ExecutionEventType = "step_completed"

	// EventStepFailed is emitted when a step fails during execution.
	EventStepFailed ExecutionEventType = "step_failed"

	// EventStepSkipped is emitted when a step is skipped because its when
	// condition evaluated to false.
	EventStepSkipped ExecutionEventType = "step_skipped"
)

// ExecutionEvent represents a single event that occurred during skill
// execution. It contains detailed information about what happened, when it
// happened, and contextual metadata about the execution state.
type ExecutionEvent struct {
	// Type specifies the kind of execution event that occurred.
	Type ExecutionEventType `json:"type"`
	// Timestamp indicates when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// ExecutionID is the unique identifier for the skill execution.
	ExecutionID string `json:"execution_id"`
	// SkillID identifies the skill being executed.
	SkillID string `json:"skill_id,omitempty"`
	// StepName is the name of the step associated with this event (optional).
	StepName string `json:"step_name,omitempty"`
	// StepIndex is the zero-based index of the step in the skill (optional).
	StepIndex int `json:"step_index,omitempty"`
	// Duration represents how long the operation took (for completion events).
	Duration time.Duration `json:"duration,omitempty"`
	// Error contains the error message if the event represents a failure.
	Error string `json:"error,omitempty"`
	// Text provides additional descriptive information about the event.
	Text string `json:"text,omitempty"`
	// Metadata contains additional structured data specific to the event type.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Listener defines the interface for tracking skill execution progress.
// Implementations of this interface can monitor executions in real-time,
// receiving events as they occur and being notified when tracking should
// stop.
type Listener interface {
	// StartListening begins monitoring the provided channel for execution
	// events. This method is called when skill execution begins.
	StartListening(events <-chan ExecutionEvent)

	// StopListening signals that progress listening should end.
	StopListening()
}

// NoopListener is a Listener implementation that performs no operations.
// It can be used as a default listener when progress tracking is not needed
// or as a fallback when other tracking mechanisms are unavailable.
type NoopListener struct{}

// StartListening implements the Listener interface but performs no operation.
func (n *NoopListener) StartListening(events <-chan ExecutionEvent) {}

// StopListening implements the Listener interface but performs no operation.
func (n *NoopListener) StopListening() {}

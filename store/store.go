//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package store provides the durable records of skill invocations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/woyin/refly-sub002/event"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrStatusRegression is returned when a status update would move a
	// result backwards in its lifecycle.
	ErrStatusRegression = errors.New("store: action result status regression")
	// ErrAlreadyFinalized is returned on a second terminal write for the
	// same (resultID, version).
	ErrAlreadyFinalized = errors.New("store: action result already finalized")
)

// Status is the lifecycle status of an ActionResult.
type Status string

// Action result status constants. Transitions are
// waiting -> executing -> {finish | failed} and never regress.
const (
	StatusWaiting   Status = "waiting"
	StatusExecuting Status = "executing"
	StatusFinish    Status = "finish"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends the result lifecycle.
func (s Status) Terminal() bool {
	return s == StatusFinish || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusExecuting || next.Terminal()
	case StatusExecuting:
		return next.Terminal()
	default:
		return false
	}
}

// ActionResult is the durable record of one invocation attempt,
// identified by (ResultID, Version).
type ActionResult struct {
	ResultID string `json:"resultId"`
	Version  int    `json:"version"`
	// UID is the owning user id.
	UID string `json:"uid"`
	// SkillName names the invoked skill.
	SkillName string `json:"skillName"`
	// Status is the lifecycle status.
	Status Status `json:"status"`
	// ErrorType is the classified error type for failed results.
	ErrorType string `json:"errorType,omitempty"`
	// Errors is the ordered list of error messages.
	Errors []string `json:"errors,omitempty"`
	// ParentResultID is the optional parent result.
	ParentResultID string `json:"parentResultId,omitempty"`
	// WorkflowNodeID is the optional workflow-node linkage.
	WorkflowNodeID string `json:"workflowNodeId,omitempty"`
	// PilotStepID is the optional pilot-step linkage.
	PilotStepID string `json:"pilotStepId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Step is the durable form of one named content accumulator of a run.
type Step struct {
	ResultID string `json:"resultId"`
	Version  int    `json:"version"`
	// Name is the step name, unique within the run.
	Name string `json:"name"`
	// Order is the first-seen order of the step within the run.
	Order int `json:"order"`
	// Content is the accumulated generated text.
	Content string `json:"content,omitempty"`
	// ReasoningContent is the accumulated reasoning text.
	ReasoningContent string `json:"reasoningContent,omitempty"`
	// StructuredData is the merged structured payload of the step.
	StructuredData map[string]any `json:"structuredData,omitempty"`
	// Artifacts lists the files attached to the step.
	Artifacts []event.GeneratedFile `json:"artifacts,omitempty"`
	// Logs is the ordered log lines of the step.
	Logs []event.LogEntry `json:"logs,omitempty"`
	// Usages is the token usage observed while the step was active.
	Usages []event.Usage `json:"usages,omitempty"`
}

// MessageType discriminates conversational message records.
type MessageType string

// Message type constants.
const (
	// MessageTypeAssistant is an assistant message with accumulated text.
	MessageTypeAssistant MessageType = "assistant"
	// MessageTypeTool is a tool message carrying a tool call.
	MessageTypeTool MessageType = "tool"
)

// Message is a higher-level conversational unit produced by the run.
type Message struct {
	// ID is the stable message id, used for skip-duplicate writes.
	ID       string      `json:"id"`
	ResultID string      `json:"resultId"`
	Version  int         `json:"version"`
	Type     MessageType `json:"type"`
	// Content is the accumulated assistant text.
	Content string `json:"content,omitempty"`
	// ReasoningContent is the accumulated reasoning text.
	ReasoningContent string `json:"reasoningContent,omitempty"`
	// Usage is the token usage attributed to the message.
	Usage *event.Usage `json:"usage,omitempty"`
	// ToolCall is the tool call meta for tool messages.
	ToolCall *event.ToolCall `json:"toolCall,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ToolCallStatus is the lifecycle status of a tool call record.
type ToolCallStatus string

// Tool call status constants.
const (
	ToolCallExecuting ToolCallStatus = "executing"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ToolCallResult is the durable record of one tool invocation. It is created
// once in executing state before the call resolves and updated at most once
// more to a terminal state; upserts are keyed by CallID.
type ToolCallResult struct {
	// CallID is unique per tool invocation within a run.
	CallID   string `json:"callId"`
	ResultID string `json:"resultId"`
	Version  int    `json:"version"`
	// Name is the tool name.
	Name string `json:"name"`
	// ToolsetID is the toolset the tool belongs to.
	ToolsetID string `json:"toolsetId,omitempty"`
	// Status is the lifecycle status.
	Status ToolCallStatus `json:"status"`
	// Input is the JSON-encoded tool input.
	Input string `json:"input,omitempty"`
	// Output is the tool output for completed calls.
	Output string `json:"output,omitempty"`
	// ErrorMessage is the tool error for failed calls.
	ErrorMessage string `json:"errorMessage,omitempty"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// WorkflowNodeUpdate is the linked workflow-node write applied at finalize.
type WorkflowNodeUpdate struct {
	NodeID string `json:"nodeId"`
	Status string `json:"status"`
}

// PilotStepUpdate is the linked pilot-step write applied at finalize.
type PilotStepUpdate struct {
	StepID string `json:"stepId"`
	Status string `json:"status"`
}

// Finalization is the single atomic terminal write of one invocation.
type Finalization struct {
	// Result carries the terminal status, error type and error messages.
	Result *ActionResult
	// Steps is the flushed step content, ordered by first-seen order.
	Steps []*Step
	// Messages is the final message flush.
	Messages []*Message
	// SkipDuplicateMessages skips messages already saved by auto-save.
	SkipDuplicateMessages bool
	// WorkflowNode is the optional linked workflow-node update.
	WorkflowNode *WorkflowNodeUpdate
	// PilotStep is the optional linked pilot-step update.
	PilotStep *PilotStepUpdate
}

// Service is the persistence collaborator of the execution engine.
type Service interface {
	// CreateActionResult creates the record of a new invocation attempt.
	CreateActionResult(ctx context.Context, result *ActionResult) error

	// UpdateActionResultStatus advances the non-terminal status of a result.
	// Illegal transitions return ErrStatusRegression.
	UpdateActionResultStatus(ctx context.Context, resultID string, version int, status Status) error

	// GetActionResult returns the result record or ErrNotFound.
	GetActionResult(ctx context.Context, resultID string, version int) (*ActionResult, error)

	// UpsertToolCallResult creates or updates a tool call record keyed by
	// CallID. Upserts are idempotent.
	UpsertToolCallResult(ctx context.Context, result *ToolCallResult) error

	// ListToolCallResults returns all tool call records of a run in start order.
	ListToolCallResults(ctx context.Context, resultID string, version int) ([]*ToolCallResult, error)

	// CreateMessages writes a batch of messages. With skipDuplicates set,
	// messages whose ID already exists are silently skipped.
	CreateMessages(ctx context.Context, messages []*Message, skipDuplicates bool) error

	// FinalizeInvocation applies the terminal write of one invocation in a
	// single atomic transaction. A second terminal write for the same
	// (resultID, version) returns ErrAlreadyFinalized.
	FinalizeInvocation(ctx context.Context, fin *Finalization) error

	// Close closes the service.
	Close() error
}

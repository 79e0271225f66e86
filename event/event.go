//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package event provides the event stream emitted during a skill invocation.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of an invocation event. The set is closed: the
// coordinator dispatches events with an exhaustive switch over these values.
type Type string

// Event type constants.
const (
	// TypeStart marks the beginning of the invocation stream.
	TypeStart Type = "start"
	// TypeStream carries a partial content delta.
	TypeStream Type = "stream"
	// TypeToolCallStart marks the start of one tool invocation.
	TypeToolCallStart Type = "tool_call_start"
	// TypeToolCallEnd marks the successful end of one tool invocation.
	TypeToolCallEnd Type = "tool_call_end"
	// TypeToolCallError marks the failure of one tool invocation.
	TypeToolCallError Type = "tool_call_error"
	// TypeTokenUsage carries token usage attribution for one model turn.
	TypeTokenUsage Type = "token_usage"
	// TypeStructuredData carries a structured payload produced by the run.
	TypeStructuredData Type = "structured_data"
	// TypeLog carries a log line produced by the run.
	TypeLog Type = "log"
	// TypeError carries a stream-level error.
	TypeError Type = "error"
	// TypeEnd marks the end of the invocation stream.
	TypeEnd Type = "end"
)

// Tool call status values as reported by the tool runtime itself. The tracker
// classifies success/failure from this field, not from transport success.
const (
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

// GeneratedFile describes a file produced by a successful tool call.
type GeneratedFile struct {
	// Name is the display name of the file.
	Name string `json:"name"`
	// StorageKey is the stable storage key of the file. Attachment
	// de-duplication within one run is keyed by this value.
	StorageKey string `json:"storageKey"`
	// URL is the optional URL where the file can be accessed.
	URL string `json:"url,omitempty"`
	// MimeType is the IANA MIME type of the file.
	MimeType string `json:"mimeType,omitempty"`
}

// ToolCall carries the identity and payload of one tool invocation.
type ToolCall struct {
	// ID is unique per tool invocation within a run.
	ID string `json:"id"`
	// Name is the tool name.
	Name string `json:"name"`
	// ToolsetID is the id of the toolset the tool belongs to.
	ToolsetID string `json:"toolsetId,omitempty"`
	// Arguments is the JSON-encoded tool input.
	Arguments string `json:"arguments,omitempty"`
	// Status is the tool-reported status, only set on end events.
	Status string `json:"status,omitempty"`
	// Output is the tool output, only set on end events.
	Output string `json:"output,omitempty"`
	// ErrorMessage is the tool-reported error, only set on error/end events.
	ErrorMessage string `json:"errorMessage,omitempty"`
	// Files lists files generated by the tool, only set on end events.
	Files []GeneratedFile `json:"files,omitempty"`
}

// Usage represents token usage attribution for one model turn.
type Usage struct {
	// Provider is the model provider name.
	Provider string `json:"provider"`
	// Model is the model name.
	Model string `json:"model"`
	// InputTokens is the number of prompt tokens.
	InputTokens int `json:"inputTokens"`
	// OutputTokens is the number of completion tokens.
	OutputTokens int `json:"outputTokens"`
	// CacheTokens is the number of tokens served from provider cache.
	CacheTokens int `json:"cacheTokens,omitempty"`
}

// LogEntry is a log line produced during the run.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ErrorDetail carries a stream-level error payload.
type ErrorDetail struct {
	// Type is the classified error type, see the engine error taxonomy.
	Type string `json:"type"`
	// Message is the human-readable error message.
	Message string `json:"message"`
}

// Event is one element of the live event sequence of a skill invocation.
// Exactly the fields relevant to Type are populated.
type Event struct {
	// Type is the event kind tag.
	Type Type `json:"type"`

	// ID is the unique identifier of the event.
	ID string `json:"id"`

	// ResultID identifies the invocation attempt the event belongs to.
	ResultID string `json:"resultId"`

	// Version is the version of the invocation attempt.
	Version int `json:"version"`

	// Timestamp is the time the event was produced.
	Timestamp time.Time `json:"timestamp"`

	// StepName names the step the event contributes to.
	StepName string `json:"stepName,omitempty"`

	// Content is the partial generated text for stream events.
	Content string `json:"content,omitempty"`

	// ReasoningContent is the partial reasoning text for stream events.
	ReasoningContent string `json:"reasoningContent,omitempty"`

	// MessageID is the stable message id tool call events are rendered under.
	MessageID string `json:"messageId,omitempty"`

	// ToolCall carries tool call payload for tool_call_* events.
	ToolCall *ToolCall `json:"toolCall,omitempty"`

	// Usage carries token usage for token_usage events.
	Usage *Usage `json:"usage,omitempty"`

	// StructuredData carries the payload of structured_data events.
	StructuredData map[string]any `json:"structuredData,omitempty"`

	// Log carries the payload of log events.
	Log *LogEntry `json:"log,omitempty"`

	// Error carries the payload of error events.
	Error *ErrorDetail `json:"error,omitempty"`
}

// Option is a function that can be used to configure the Event.
type Option func(*Event)

// WithStepName sets the step name for the event.
func WithStepName(name string) Option {
	return func(e *Event) {
		e.StepName = name
	}
}

// WithContent sets the content delta for the event.
func WithContent(content, reasoning string) Option {
	return func(e *Event) {
		e.Content = content
		e.ReasoningContent = reasoning
	}
}

// WithToolCall sets the tool call payload and its stable message id.
func WithToolCall(call *ToolCall, messageID string) Option {
	return func(e *Event) {
		e.ToolCall = call
		e.MessageID = messageID
	}
}

// WithUsage sets the token usage payload for the event.
func WithUsage(usage *Usage) Option {
	return func(e *Event) {
		e.Usage = usage
	}
}

// WithStructuredData sets the structured payload for the event.
func WithStructuredData(data map[string]any) Option {
	return func(e *Event) {
		e.StructuredData = data
	}
}

// WithLog sets the log payload for the event.
func WithLog(level, message string) Option {
	return func(e *Event) {
		e.Log = &LogEntry{Level: level, Message: message}
	}
}

// New creates a new Event with generated ID and timestamp.
func New(resultID string, version int, typ Type, opts ...Option) *Event {
	e := &Event{
		Type:      typ,
		ID:        uuid.New().String(),
		ResultID:  resultID,
		Version:   version,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewError creates a new error Event with the specified error details.
func NewError(resultID string, version int, errType, message string) *Event {
	e := New(resultID, version, TypeError)
	e.Error = &ErrorDetail{Type: errType, Message: message}
	return e
}

// Clone creates a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.ToolCall != nil {
		tc := *e.ToolCall
		tc.Files = make([]GeneratedFile, len(e.ToolCall.Files))
		copy(tc.Files, e.ToolCall.Files)
		clone.ToolCall = &tc
	}
	if e.Usage != nil {
		u := *e.Usage
		clone.Usage = &u
	}
	if e.StructuredData != nil {
		clone.StructuredData = make(map[string]any, len(e.StructuredData))
		for k, v := range e.StructuredData {
			clone.StructuredData[k] = v
		}
	}
	if e.Log != nil {
		l := *e.Log
		clone.Log = &l
	}
	if e.Error != nil {
		ed := *e.Error
		clone.Error = &ed
	}
	return &clone
}

// IsOutput reports whether the event counts as observed output for the
// purpose of the stream-idle watchdog.
func (e *Event) IsOutput() bool {
	if e == nil {
		return false
	}
	switch e.Type {
	case TypeStream, TypeToolCallStart, TypeToolCallEnd, TypeToolCallError,
		TypeStructuredData, TypeLog:
		return true
	default:
		return false
	}
}

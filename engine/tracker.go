//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/woyin/refly-sub002/event"
	"github.com/woyin/refly-sub002/store"
	"github.com/woyin/refly-sub002/telemetry/trace"
)

// toolCallTracker is the per-run state machine of tool invocations:
// (none) -> executing -> {completed | failed}. The executing record is
// persisted before the call resolves so a crash mid-call still leaves a
// recoverable record. De-duplication maps are scoped to the run and cleared
// at finalize.
type toolCallTracker struct {
	store    store.Service
	resultID string
	version  int

	// messageIDs maps seen callIDs to the stable message id their output
	// events are rendered under. Presence doubles as the dedupe set.
	messageIDs map[string]string
	// attached tracks storage keys already attached to the run.
	attached map[string]struct{}
	// spans holds the open per-call trace spans.
	spans map[string]oteltrace.Span
	// startedAt remembers start times for terminal records.
	startedAt map[string]time.Time
}

func newToolCallTracker(svc store.Service, resultID string, version int) *toolCallTracker {
	return &toolCallTracker{
		store:      svc,
		resultID:   resultID,
		version:    version,
		messageIDs: make(map[string]string),
		attached:   make(map[string]struct{}),
		spans:      make(map[string]oteltrace.Span),
		startedAt:  make(map[string]time.Time),
	}
}

// HandleStart records the start of a tool call and returns the
// tool_call_start output event. Duplicate starts for the same id return nil.
func (t *toolCallTracker) HandleStart(ctx context.Context, call *event.ToolCall) (*event.Event, error) {
	if call == nil || call.ID == "" {
		return nil, nil
	}
	if _, seen := t.messageIDs[call.ID]; seen {
		return nil, nil
	}
	messageID := uuid.New().String()
	t.messageIDs[call.ID] = messageID
	now := time.Now()
	t.startedAt[call.ID] = now

	_, span := trace.Tracer.Start(ctx,
		fmt.Sprintf("%s %s", trace.SpanPrefixExecuteTool, call.Name))
	t.spans[call.ID] = span

	record := &store.ToolCallResult{
		CallID:    call.ID,
		ResultID:  t.resultID,
		Version:   t.version,
		Name:      call.Name,
		ToolsetID: call.ToolsetID,
		Status:    store.ToolCallExecuting,
		Input:     call.Arguments,
		StartedAt: now,
	}
	if err := t.store.UpsertToolCallResult(ctx, record); err != nil {
		return nil, fmt.Errorf("persist tool call start %s: %w", call.ID, err)
	}

	out := event.New(t.resultID, t.version, event.TypeToolCallStart,
		event.WithToolCall(call, messageID))
	return out, nil
}

// HandleEnd records the end of a tool call. Success or failure is classified
// from the tool's own reported status field, not transport success. The
// returned files are the generated files not yet attached in this run.
func (t *toolCallTracker) HandleEnd(ctx context.Context, call *event.ToolCall) (*event.Event, []event.GeneratedFile, error) {
	if call == nil || call.ID == "" {
		return nil, nil, nil
	}
	messageID, seen := t.messageIDs[call.ID]
	if !seen {
		// End without a start: register the call so the terminal record
		// still exists.
		messageID = uuid.New().String()
		t.messageIDs[call.ID] = messageID
		t.startedAt[call.ID] = time.Now()
	}
	t.endSpan(call.ID)

	now := time.Now()
	record := &store.ToolCallResult{
		CallID:      call.ID,
		ResultID:    t.resultID,
		Version:     t.version,
		Name:        call.Name,
		ToolsetID:   call.ToolsetID,
		Input:       call.Arguments,
		Output:      call.Output,
		StartedAt:   t.startedAt[call.ID],
		CompletedAt: &now,
	}

	outType := event.TypeToolCallEnd
	var files []event.GeneratedFile
	if call.Status == event.ToolStatusSuccess {
		record.Status = store.ToolCallCompleted
		files = t.filterNewFiles(call.Files)
	} else {
		record.Status = store.ToolCallFailed
		record.ErrorMessage = call.ErrorMessage
		if record.ErrorMessage == "" {
			record.ErrorMessage = fmt.Sprintf("tool %s reported status %q", call.Name, call.Status)
		}
		outType = event.TypeToolCallError
	}
	if err := t.store.UpsertToolCallResult(ctx, record); err != nil {
		return nil, nil, fmt.Errorf("persist tool call end %s: %w", call.ID, err)
	}

	out := event.New(t.resultID, t.version, outType,
		event.WithToolCall(call, messageID))
	return out, files, nil
}

// HandleError records a tool call error and returns the tool_call_error
// output event.
func (t *toolCallTracker) HandleError(ctx context.Context, call *event.ToolCall) (*event.Event, error) {
	if call == nil || call.ID == "" {
		return nil, nil
	}
	messageID, seen := t.messageIDs[call.ID]
	if !seen {
		messageID = uuid.New().String()
		t.messageIDs[call.ID] = messageID
		t.startedAt[call.ID] = time.Now()
	}
	t.endSpan(call.ID)

	now := time.Now()
	record := &store.ToolCallResult{
		CallID:       call.ID,
		ResultID:     t.resultID,
		Version:      t.version,
		Name:         call.Name,
		ToolsetID:    call.ToolsetID,
		Status:       store.ToolCallFailed,
		Input:        call.Arguments,
		ErrorMessage: call.ErrorMessage,
		StartedAt:    t.startedAt[call.ID],
		CompletedAt:  &now,
	}
	if err := t.store.UpsertToolCallResult(ctx, record); err != nil {
		return nil, fmt.Errorf("persist tool call error %s: %w", call.ID, err)
	}

	out := event.New(t.resultID, t.version, event.TypeToolCallError,
		event.WithToolCall(call, messageID))
	return out, nil
}

// MessageID returns the stable message id assigned to a call.
func (t *toolCallTracker) MessageID(callID string) (string, bool) {
	id, ok := t.messageIDs[callID]
	return id, ok
}

// filterNewFiles returns the files whose storage key has not been attached
// in this run yet and marks them attached.
func (t *toolCallTracker) filterNewFiles(files []event.GeneratedFile) []event.GeneratedFile {
	var out []event.GeneratedFile
	for _, file := range files {
		if file.StorageKey == "" {
			out = append(out, file)
			continue
		}
		if _, done := t.attached[file.StorageKey]; done {
			continue
		}
		t.attached[file.StorageKey] = struct{}{}
		out = append(out, file)
	}
	return out
}

func (t *toolCallTracker) endSpan(callID string) {
	if span, ok := t.spans[callID]; ok {
		span.End()
		delete(t.spans, callID)
	}
}

// Clear releases the run-scoped state, ending any spans still open.
func (t *toolCallTracker) Clear() {
	for id, span := range t.spans {
		span.End()
		delete(t.spans, id)
	}
	t.messageIDs = make(map[string]string)
	t.attached = make(map[string]struct{})
	t.startedAt = make(map[string]time.Time)
}

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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/woyin/refly-sub002/event"
	"github.com/woyin/refly-sub002/log"
	"github.com/woyin/refly-sub002/store"
)

// messageAggregator buffers the conversational messages of one run. The run
// alternates assistant segments and tool messages; a tool call closes the
// current assistant segment. Completed messages are auto-saved on an
// independent timer so partial output survives a crash; the final flush
// relies on skip-duplicate writes so nothing is persisted twice. Dispose
// must be called at finalize to stop the timer.
type messageAggregator struct {
	mu       sync.Mutex
	store    store.Service
	resultID string
	version  int

	// current is the open assistant segment, nil when none.
	current *store.Message
	// completed is the ordered list of closed messages.
	completed []*store.Message
	// saved tracks message ids already written by auto-save.
	saved map[string]struct{}

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newMessageAggregator(svc store.Service, resultID string, version int, interval time.Duration) *messageAggregator {
	return &messageAggregator{
		store:    svc,
		resultID: resultID,
		version:  version,
		saved:    make(map[string]struct{}),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the auto-save loop.
func (a *messageAggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.autoSaveLoop(ctx)
}

// Dispose stops the auto-save timer exactly once.
func (a *messageAggregator) Dispose() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
	a.wg.Wait()
}

func (a *messageAggregator) autoSaveLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.autoSave(ctx)
		}
	}
}

// autoSave best-effort-persists completed messages not yet saved. Failures
// are logged and retried on the next tick.
func (a *messageAggregator) autoSave(ctx context.Context) {
	a.mu.Lock()
	var batch []*store.Message
	for _, msg := range a.completed {
		if _, done := a.saved[msg.ID]; done {
			continue
		}
		cp := *msg
		batch = append(batch, &cp)
	}
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := a.store.CreateMessages(ctx, batch, true); err != nil {
		log.Warnf("Message auto-save failed for result %s v%d: %v", a.resultID, a.version, err)
		return
	}
	a.mu.Lock()
	for _, msg := range batch {
		a.saved[msg.ID] = struct{}{}
	}
	a.mu.Unlock()
}

// AppendAssistant appends a content delta to the open assistant segment,
// opening one if needed.
func (a *messageAggregator) AppendAssistant(content, reasoning string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		a.current = &store.Message{
			ID:        uuid.New().String(),
			ResultID:  a.resultID,
			Version:   a.version,
			Type:      store.MessageTypeAssistant,
			CreatedAt: time.Now(),
		}
	}
	a.current.Content += content
	a.current.ReasoningContent += reasoning
}

// SetUsage attributes token usage to the open assistant segment.
func (a *messageAggregator) SetUsage(usage event.Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil && len(a.completed) > 0 {
		last := a.completed[len(a.completed)-1]
		if last.Type == store.MessageTypeAssistant {
			u := usage
			last.Usage = &u
			return
		}
	}
	if a.current == nil {
		return
	}
	u := usage
	a.current.Usage = &u
}

// AddToolMessage closes the current assistant segment and appends a tool
// message under the tracker-assigned stable message id.
func (a *messageAggregator) AddToolMessage(messageID string, call *event.ToolCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeSegmentLocked()
	cp := *call
	a.completed = append(a.completed, &store.Message{
		ID:        messageID,
		ResultID:  a.resultID,
		Version:   a.version,
		Type:      store.MessageTypeTool,
		ToolCall:  &cp,
		CreatedAt: time.Now(),
	})
}

func (a *messageAggregator) closeSegmentLocked() {
	if a.current == nil {
		return
	}
	if a.current.Content == "" && a.current.ReasoningContent == "" {
		a.current = nil
		return
	}
	a.completed = append(a.completed, a.current)
	a.current = nil
}

// Flush closes the open segment and returns all messages in order. The
// caller persists them with skip-duplicate semantics so messages already
// written by auto-save are not persisted twice.
func (a *messageAggregator) Flush() []*store.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeSegmentLocked()
	out := make([]*store.Message, 0, len(a.completed))
	for _, msg := range a.completed {
		cp := *msg
		out = append(out, &cp)
	}
	return out
}

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
	"strings"
	"sync"
	"time"

	"github.com/woyin/refly-sub002/cache"
	"github.com/woyin/refly-sub002/event"
	"github.com/woyin/refly-sub002/log"
	"github.com/woyin/refly-sub002/store"
)

const (
	// defaultStepName receives events that do not name a step.
	defaultStepName = "answer"
	// attachmentStepName receives files generated by successful tool calls.
	attachmentStepName = "attachments"
)

// stepAggregator buffers step content for one run. Persistence is two-tier:
// a periodic best-effort snapshot to the fast cache (failures logged, never
// raised) and the mandatory final flush through the coordinator's atomic
// finalize write.
type stepAggregator struct {
	mu       sync.Mutex
	cache    cache.Service
	resultID string
	version  int

	order  []string
	steps  map[string]*store.Step
	usages []event.Usage
	dirty  bool

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newStepAggregator(cacheSvc cache.Service, resultID string, version int, interval time.Duration) *stepAggregator {
	return &stepAggregator{
		cache:    cacheSvc,
		resultID: resultID,
		version:  version,
		steps:    make(map[string]*store.Step),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the periodic snapshot loop.
func (a *stepAggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.snapshotLoop(ctx)
}

// Stop stops the snapshot loop exactly once.
func (a *stepAggregator) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
	a.wg.Wait()
}

func (a *stepAggregator) snapshotLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.snapshot(ctx)
		}
	}
}

// snapshot best-effort-saves the current steps to the fast cache. The cache
// is never authoritative, so failures are logged and swallowed.
func (a *stepAggregator) snapshot(ctx context.Context) {
	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return
	}
	steps := a.flushLocked()
	a.dirty = false
	a.mu.Unlock()

	err := a.cache.SaveSnapshot(ctx, &cache.Snapshot{
		ResultID:  a.resultID,
		Version:   a.version,
		Steps:     steps,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		log.Warnf("Step snapshot failed for result %s v%d: %v", a.resultID, a.version, err)
	}
}

func (a *stepAggregator) step(name string) *store.Step {
	if name == "" {
		name = defaultStepName
	}
	step, ok := a.steps[name]
	if !ok {
		step = &store.Step{
			ResultID: a.resultID,
			Version:  a.version,
			Name:     name,
			Order:    len(a.order),
		}
		a.steps[name] = step
		a.order = append(a.order, name)
	}
	return step
}

// AppendContent appends a content delta to the named step.
func (a *stepAggregator) AppendContent(stepName, content, reasoning string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	step := a.step(stepName)
	step.Content += content
	step.ReasoningContent += reasoning
	a.dirty = true
}

// MergeStructured merges a structured payload into the named step.
func (a *stepAggregator) MergeStructured(stepName string, data map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	step := a.step(stepName)
	if step.StructuredData == nil {
		step.StructuredData = make(map[string]any, len(data))
	}
	for k, v := range data {
		step.StructuredData[k] = v
	}
	a.dirty = true
}

// AppendLog appends a log line to the named step.
func (a *stepAggregator) AppendLog(stepName string, entry event.LogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	step := a.step(stepName)
	step.Logs = append(step.Logs, entry)
	a.dirty = true
}

// AttachFiles appends generated files to the canvas-attachment step. The
// caller is responsible for storage-key de-duplication.
func (a *stepAggregator) AttachFiles(files []event.GeneratedFile) {
	if len(files) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	step := a.step(attachmentStepName)
	step.Artifacts = append(step.Artifacts, files...)
	a.dirty = true
}

// AddUsage records token usage for the named step and for run-level billing.
func (a *stepAggregator) AddUsage(stepName string, usage event.Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	step := a.step(stepName)
	step.Usages = append(step.Usages, usage)
	a.usages = append(a.usages, usage)
	a.dirty = true
}

// Usages returns the token usage observed so far, one item per model turn.
func (a *stepAggregator) Usages() []event.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]event.Usage, len(a.usages))
	copy(out, a.usages)
	return out
}

// ContentText returns the concatenated generated text of all steps in
// order, used for best-effort usage estimation on aborted runs.
func (a *stepAggregator) ContentText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sb strings.Builder
	for _, name := range a.order {
		sb.WriteString(a.steps[name].Content)
	}
	return sb.String()
}

// Artifacts returns the files attached to the run so far.
func (a *stepAggregator) Artifacts() []event.GeneratedFile {
	a.mu.Lock()
	defer a.mu.Unlock()
	step, ok := a.steps[attachmentStepName]
	if !ok {
		return nil
	}
	out := make([]event.GeneratedFile, len(step.Artifacts))
	copy(out, step.Artifacts)
	return out
}

// Flush returns deep copies of the accumulated steps in first-seen order.
func (a *stepAggregator) Flush() []*store.Step {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

func (a *stepAggregator) flushLocked() []*store.Step {
	out := make([]*store.Step, 0, len(a.order))
	for i, name := range a.order {
		cp := *a.steps[name]
		cp.Order = i
		out = append(out, &cp)
	}
	return out
}

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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	abortinmemory "github.com/woyin/refly-sub002/abort/inmemory"
	artifactinmemory "github.com/woyin/refly-sub002/artifact/inmemory"
	cacheinmemory "github.com/woyin/refly-sub002/cache/inmemory"
	"github.com/woyin/refly-sub002/credit"
	"github.com/woyin/refly-sub002/event"
	"github.com/woyin/refly-sub002/queue"
	queueinmemory "github.com/woyin/refly-sub002/queue/inmemory"
	"github.com/woyin/refly-sub002/skill"
	"github.com/woyin/refly-sub002/store"
	storeinmemory "github.com/woyin/refly-sub002/store/inmemory"
)

// fakeRuntime plays a scripted event sequence. With block set it emits
// nothing and waits for context cancellation, simulating a hung provider.
type fakeRuntime struct {
	events []*event.Event
	delay  time.Duration
	err    error
	block  bool
}

func (r *fakeRuntime) Stream(ctx context.Context, _ *RunConfig) (<-chan *event.Event, error) {
	if r.err != nil {
		return nil, r.err
	}
	ch := make(chan *event.Event)
	go func() {
		defer close(ch)
		if r.block {
			<-ctx.Done()
			return
		}
		for _, ev := range r.events {
			if r.delay > 0 {
				time.Sleep(r.delay)
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// runtimeFunc adapts a function to the Runtime interface.
type runtimeFunc func(ctx context.Context, cfg *RunConfig) (<-chan *event.Event, error)

func (f runtimeFunc) Stream(ctx context.Context, cfg *RunConfig) (<-chan *event.Event, error) {
	return f(ctx, cfg)
}

// fakeCreditService records billing calls and lets tests script the answers.
type fakeCreditService struct {
	mu sync.Mutex

	canUse           bool
	denyMessage      string
	requiresRecharge bool

	tokenItems []credit.UsageItem
	toolJobs   []*credit.ToolUsageJob
	mediaJobs  []*credit.MediaUsageJob
}

func newFakeCreditService() *fakeCreditService {
	return &fakeCreditService{canUse: true}
}

func (f *fakeCreditService) CheckRequestCreditUsage(context.Context, string, string, string) (*credit.CheckResult, error) {
	return &credit.CheckResult{CanUse: f.canUse, Message: f.denyMessage}, nil
}

func (f *fakeCreditService) SyncBatchTokenCreditUsage(_ context.Context, items []credit.UsageItem) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenItems = append(f.tokenItems, items...)
	return f.requiresRecharge, nil
}

func (f *fakeCreditService) SyncToolCreditUsage(_ context.Context, job *credit.ToolUsageJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolJobs = append(f.toolJobs, job)
	return nil
}

func (f *fakeCreditService) SyncMediaCreditUsage(_ context.Context, job *credit.MediaUsageJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaJobs = append(f.mediaJobs, job)
	return nil
}

func (f *fakeCreditService) TokenItems() []credit.UsageItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]credit.UsageItem, len(f.tokenItems))
	copy(out, f.tokenItems)
	return out
}

func (f *fakeCreditService) ToolJobs() []*credit.ToolUsageJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*credit.ToolUsageJob, len(f.toolJobs))
	copy(out, f.toolJobs)
	return out
}

func (f *fakeCreditService) MediaJobs() []*credit.MediaUsageJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*credit.MediaUsageJob, len(f.mediaJobs))
	copy(out, f.mediaJobs)
	return out
}

type testFixture struct {
	engine    *Engine
	store     *storeinmemory.Service
	cache     *cacheinmemory.Service
	queue     *queueinmemory.Queue
	flags     *abortinmemory.FlagStore
	artifacts *artifactinmemory.Service
	credit    *fakeCreditService
}

func newTestFixture(t *testing.T, runtime Runtime, opts ...Option) *testFixture {
	t.Helper()

	fx := &testFixture{
		store:     storeinmemory.NewService(),
		cache:     cacheinmemory.NewService(),
		queue:     queueinmemory.NewQueue(),
		flags:     abortinmemory.NewFlagStore(),
		artifacts: artifactinmemory.NewService(),
		credit:    newFakeCreditService(),
	}
	base := []Option{
		WithRuntime(runtime),
		WithStore(fx.store),
		WithCache(fx.cache),
		WithQueue(fx.queue),
		WithAbortFlagStore(fx.flags),
		WithArtifactService(fx.artifacts),
		WithCreditService(fx.credit),
		WithAbortPollInterval(10 * time.Millisecond),
		WithSnapshotInterval(10 * time.Millisecond),
		WithAutoSaveInterval(10 * time.Millisecond),
	}
	engine, err := New(append(base, opts...)...)
	require.NoError(t, err)
	fx.engine = engine
	t.Cleanup(func() { require.NoError(t, engine.Close()) })
	return fx
}

func testRequest() *skill.Request {
	return &skill.Request{
		User:      skill.User{UID: "user-1"},
		ResultID:  "result-1",
		Version:   1,
		SkillName: "commonQnA",
		Input:     "What is the capital of France?",
		Model:     skill.ModelConfig{Provider: "openai", Model: "gpt-4o"},
		Mode:      skill.ModeChat,
	}
}

func collect(t *testing.T, ch <-chan *event.Event) []*event.Event {
	t.Helper()
	var out []*event.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("timed out draining event stream")
		}
	}
}

func eventTypes(events []*event.Event) []event.Type {
	out := make([]event.Type, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestRunSuccess(t *testing.T) {
	runtime := &fakeRuntime{events: []*event.Event{
		event.New("result-1", 1, event.TypeStream, event.WithContent("The capital ", "")),
		event.New("result-1", 1, event.TypeStream, event.WithContent("is Paris.", "")),
		event.New("result-1", 1, event.TypeTokenUsage, event.WithUsage(&event.Usage{
			Provider: "openai", Model: "gpt-4o", InputTokens: 12, OutputTokens: 5,
		})),
		event.New("result-1", 1, event.TypeEnd),
	}}
	fx := newTestFixture(t, runtime)
	req := testRequest()

	result, err := fx.engine.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, store.StatusFinish, result.Status)
	require.Empty(t, result.ErrorType)
	require.Empty(t, result.Errors)

	steps := fx.store.ListSteps(req.ResultID, req.Version)
	require.Len(t, steps, 1)
	require.Equal(t, "answer", steps[0].Name)
	require.Equal(t, "The capital is Paris.", steps[0].Content)
	require.Len(t, steps[0].Usages, 1)

	messages := fx.store.ListMessages(req.ResultID, req.Version)
	require.Len(t, messages, 1)
	require.Equal(t, store.MessageTypeAssistant, messages[0].Type)
	require.Equal(t, "The capital is Paris.", messages[0].Content)
	require.NotNil(t, messages[0].Usage)
	require.Equal(t, 5, messages[0].Usage.OutputTokens)

	items := fx.credit.TokenItems()
	require.Len(t, items, 1)
	require.False(t, items[0].Estimated)
	require.Equal(t, "user-1", items[0].UID)

	snapshot, err := fx.cache.LoadSnapshot(context.Background(), req.ResultID, req.Version)
	require.NoError(t, err)
	require.Nil(t, snapshot)
	require.False(t, fx.flags.JobStarted(req.ResultID))
}

func TestRunEmitsStartAndEnd(t *testing.T) {
	runtime := &fakeRuntime{events: []*event.Event{
		event.New("result-1", 1, event.TypeStream, event.WithContent("hi", "")),
	}}
	fx := newTestFixture(t, runtime)

	events, err := fx.engine.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	got := collect(t, events)

	types := eventTypes(got)
	require.NotEmpty(t, types)
	require.Equal(t, event.TypeStart, types[0])
	require.Equal(t, event.TypeEnd, types[len(types)-1])
	require.Contains(t, types, event.TypeStream)
}

func TestRunWithToolCalls(t *testing.T) {
	files := []event.GeneratedFile{{
		Name: "chart.png", StorageKey: "sk-1", MimeType: "image/png",
	}}
	runtime := &fakeRuntime{events: []*event.Event{
		event.New("result-1", 1, event.TypeToolCallStart, event.WithToolCall(&event.ToolCall{
			ID: "call-1", Name: "web_search", ToolsetID: "ts-1", Arguments: `{"q":"paris"}`,
		}, "")),
		event.New("result-1", 1, event.TypeToolCallEnd, event.WithToolCall(&event.ToolCall{
			ID: "call-1", Name: "web_search", ToolsetID: "ts-1",
			Status: event.ToolStatusSuccess, Output: "results...", Files: files,
		}, "")),
		event.New("result-1", 1, event.TypeStream, event.WithContent("done", "")),
		event.New("result-1", 1, event.TypeEnd),
	}}
	fx := newTestFixture(t, runtime)
	req := testRequest()

	result, err := fx.engine.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, store.StatusFinish, result.Status)

	records, err := fx.store.ListToolCallResults(context.Background(), req.ResultID, req.Version)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, store.ToolCallCompleted, records[0].Status)
	require.Equal(t, "results...", records[0].Output)
	require.NotNil(t, records[0].CompletedAt)

	var attachments *store.Step
	for _, step := range fx.store.ListSteps(req.ResultID, req.Version) {
		if step.Name == "attachments" {
			attachments = step
		}
	}
	require.NotNil(t, attachments)
	require.Len(t, attachments.Artifacts, 1)
	require.Equal(t, "sk-1", attachments.Artifacts[0].StorageKey)

	var toolMessages int
	for _, msg := range fx.store.ListMessages(req.ResultID, req.Version) {
		if msg.Type == store.MessageTypeTool {
			toolMessages++
			require.NotNil(t, msg.ToolCall)
			require.Equal(t, "call-1", msg.ToolCall.ID)
		}
	}
	require.Equal(t, 1, toolMessages)

	require.Eventually(t, func() bool {
		return len(fx.credit.ToolJobs()) == 1 && len(fx.credit.MediaJobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "ts-1", fx.credit.ToolJobs()[0].ToolsetID)
	require.Equal(t, "image/png", fx.credit.MediaJobs()[0].MimeType)
}

func TestToolFailureDoesNotFailRun(t *testing.T) {
	runtime := &fakeRuntime{events: []*event.Event{
		event.New("result-1", 1, event.TypeToolCallStart, event.WithToolCall(&event.ToolCall{
			ID: "call-1", Name: "web_search", ToolsetID: "ts-1",
		}, "")),
		event.New("result-1", 1, event.TypeToolCallError, event.WithToolCall(&event.ToolCall{
			ID: "call-1", Name: "web_search", ToolsetID: "ts-1",
			ErrorMessage: "rate limited",
		}, "")),
		event.New("result-1", 1, event.TypeStream, event.WithContent("answer anyway", "")),
		event.New("result-1", 1, event.TypeEnd),
	}}
	fx := newTestFixture(t, runtime)
	req := testRequest()

	result, err := fx.engine.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, store.StatusFinish, result.Status)
	require.Empty(t, result.ErrorType)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "toolExecutionError")
	require.Contains(t, result.Errors[0], "rate limited")

	records, err := fx.store.ListToolCallResults(context.Background(), req.ResultID, req.Version)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, store.ToolCallFailed, records[0].Status)
}

func TestAbortMarksUserAbortAndBillsEstimate(t *testing.T) {
	runtime := &fakeRuntime{block: true}
	fx := newTestFixture(t, runtime)
	req := testRequest()

	events, err := fx.engine.Invoke(context.Background(), req)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, fx.engine.Abort(context.Background(), req.ResultID, req.Version))

	collect(t, events)
	result, err := fx.store.GetActionResult(context.Background(), req.ResultID, req.Version)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, result.Status)
	require.Equal(t, ErrorTypeUserAbort, result.ErrorType)

	items := fx.credit.TokenItems()
	require.Len(t, items, 1)
	require.True(t, items[0].Estimated)
	require.Positive(t, items[0].Usage.InputTokens)
}

func TestAbortBeatsCooperativeStreamClose(t *testing.T) {
	// The runtime reacts to its own abort the fastest way possible: the
	// stream is already closed when the main loop first looks at it, so
	// the cancelled token and the closed stream are ready simultaneously.
	var fx *testFixture
	runtime := runtimeFunc(func(_ context.Context, cfg *RunConfig) (<-chan *event.Event, error) {
		if err := fx.engine.Abort(context.Background(), cfg.ResultID, cfg.Version); err != nil {
			t.Errorf("abort failed: %v", err)
		}
		ch := make(chan *event.Event)
		close(ch)
		return ch, nil
	})
	fx = newTestFixture(t, runtime)

	for i := 0; i < 20; i++ {
		req := testRequest()
		req.ResultID = fmt.Sprintf("result-%d", i)

		events, err := fx.engine.Invoke(context.Background(), req)
		require.NoError(t, err)
		collect(t, events)

		result, err := fx.store.GetActionResult(context.Background(), req.ResultID, req.Version)
		require.NoError(t, err)
		require.Equal(t, store.StatusFailed, result.Status, "run %d", i)
		require.Equal(t, ErrorTypeUserAbort, result.ErrorType, "run %d", i)
	}
}

func TestEventsAfterAbortAreDropped(t *testing.T) {
	var fx *testFixture
	runtime := runtimeFunc(func(ctx context.Context, cfg *RunConfig) (<-chan *event.Event, error) {
		ch := make(chan *event.Event)
		go func() {
			defer close(ch)
			select {
			case ch <- event.New(cfg.ResultID, cfg.Version, event.TypeStream,
				event.WithContent("partial", "")):
			case <-ctx.Done():
				return
			}
			if err := fx.engine.Abort(context.Background(), cfg.ResultID, cfg.Version); err != nil {
				t.Errorf("abort failed: %v", err)
			}
			select {
			case ch <- event.New(cfg.ResultID, cfg.Version, event.TypeStream,
				event.WithContent("after cancel", "")):
			case <-ctx.Done():
			}
		}()
		return ch, nil
	})
	fx = newTestFixture(t, runtime)
	req := testRequest()

	events, err := fx.engine.Invoke(context.Background(), req)
	require.NoError(t, err)
	collect(t, events)

	result, err := fx.store.GetActionResult(context.Background(), req.ResultID, req.Version)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, result.Status)
	require.Equal(t, ErrorTypeUserAbort, result.ErrorType)

	for _, step := range fx.store.ListSteps(req.ResultID, req.Version) {
		require.NotContains(t, step.Content, "after cancel")
	}
}

func TestCrossProcessAbortFlagStopsRun(t *testing.T) {
	runtime := &fakeRuntime{block: true}
	fx := newTestFixture(t, runtime)
	req := testRequest()

	events, err := fx.engine.Invoke(context.Background(), req)
	require.NoError(t, err)

	// Set only the durable flag, as a cancel request landing on another
	// node would; the poller must pick it up.
	require.NoError(t, fx.flags.RequestAbort(context.Background(), req.ResultID, req.Version))

	collect(t, events)
	result, err := fx.store.GetActionResult(context.Background(), req.ResultID, req.Version)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, result.Status)
	require.Equal(t, ErrorTypeUserAbort, result.ErrorType)
}

func TestIdleTimeoutFailsRun(t *testing.T) {
	runtime := &fakeRuntime{block: true}
	fx := newTestFixture(t, runtime, WithIdleTimeout(50*time.Millisecond))
	req := testRequest()

	result, err := fx.engine.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, result.Status)
	require.Equal(t, ErrorTypeTimeout, result.ErrorType)
	// A timed-out run billed nothing: no provider usage ever arrived.
	require.Empty(t, fx.credit.TokenItems())
}

func TestIdleWatchdogDisarmsAfterFirstOutput(t *testing.T) {
	runtime := &fakeRuntime{
		delay: 30 * time.Millisecond,
		events: []*event.Event{
			event.New("result-1", 1, event.TypeStream, event.WithContent("a", "")),
			event.New("result-1", 1, event.TypeStream, event.WithContent("b", "")),
			event.New("result-1", 1, event.TypeStream, event.WithContent("c", "")),
			event.New("result-1", 1, event.TypeEnd),
		},
	}
	// The threshold outlives the first delta but not the whole run.
	fx := newTestFixture(t, runtime, WithIdleTimeout(60*time.Millisecond))

	result, err := fx.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, store.StatusFinish, result.Status)
}

func TestStreamErrorTriggersFallbackSave(t *testing.T) {
	runtime := &fakeRuntime{events: []*event.Event{
		event.New("result-1", 1, event.TypeToolCallStart, event.WithToolCall(&event.ToolCall{
			ID: "call-1", Name: "generate_doc", ToolsetID: "ts-1",
		}, "")),
		event.New("result-1", 1, event.TypeToolCallEnd, event.WithToolCall(&event.ToolCall{
			ID: "call-1", Name: "generate_doc", ToolsetID: "ts-1",
			Status: event.ToolStatusSuccess, Output: "# Draft\ncontent",
		}, "")),
		event.NewError("result-1", 1, "providerError", "provider exploded"),
	}}
	fx := newTestFixture(t, runtime)
	req := testRequest()

	result, err := fx.engine.Run(context.Background(), req)
	require.NoError(t, err)
	// The saved document downgrades the failure to a recoverable outcome.
	require.Equal(t, store.StatusFinish, result.Status)
	require.Empty(t, result.ErrorType)
	require.Contains(t, result.Errors, "provider exploded")

	key := "user-1/result-1/1/" + fallbackDocName
	art, err := fx.artifacts.LoadArtifact(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, art)
	require.Contains(t, string(art.Data), "generate_doc")
	require.Contains(t, string(art.Data), "# Draft")

	steps := fx.store.ListSteps(req.ResultID, req.Version)
	require.NotEmpty(t, steps)
	require.Contains(t, steps[0].Content, fallbackDocName)
}

func TestCreditExhaustedAtFinalizeOverridesSuccess(t *testing.T) {
	runtime := &fakeRuntime{events: []*event.Event{
		event.New("result-1", 1, event.TypeStream, event.WithContent("answer", "")),
		event.New("result-1", 1, event.TypeTokenUsage, event.WithUsage(&event.Usage{
			Provider: "openai", Model: "gpt-4o", InputTokens: 10, OutputTokens: 10,
		})),
		event.New("result-1", 1, event.TypeEnd),
	}}
	fx := newTestFixture(t, runtime)
	fx.credit.requiresRecharge = true
	req := testRequest()

	result, err := fx.engine.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, result.Status)
	require.Equal(t, ErrorTypeCreditExhausted, result.ErrorType)
}

func TestCreditAdmissionRejectsInvoke(t *testing.T) {
	fx := newTestFixture(t, &fakeRuntime{})
	fx.credit.canUse = false
	fx.credit.denyMessage = "balance too low"

	_, err := fx.engine.Invoke(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrCreditNotAvailable)
	require.Contains(t, err.Error(), "balance too low")

	// The rejected request must not leave a record behind.
	_, err = fx.store.GetActionResult(context.Background(), "result-1", 1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWorkflowAndPilotLinkage(t *testing.T) {
	runtime := &fakeRuntime{events: []*event.Event{
		event.New("result-1", 1, event.TypeStream, event.WithContent("ok", "")),
		event.New("result-1", 1, event.TypeEnd),
	}}
	fx := newTestFixture(t, runtime)
	req := testRequest()
	req.Mode = skill.ModeWorkflow
	req.WorkflowNodeID = "node-1"
	req.PilotStepID = "pilot-1"

	result, err := fx.engine.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, store.StatusFinish, result.Status)

	nodeStatus, ok := fx.store.WorkflowNodeStatus("node-1")
	require.True(t, ok)
	require.Equal(t, string(store.StatusFinish), nodeStatus)
	pilotStatus, ok := fx.store.PilotStepStatus("pilot-1")
	require.True(t, ok)
	require.Equal(t, string(store.StatusFinish), pilotStatus)

	// Workflow runs skip autoName but still sync the pilot step.
	require.Eventually(t, func() bool {
		return len(fx.queue.Jobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	jobs := fx.queue.Jobs()
	require.Equal(t, queue.JobPilotSync, jobs[0].Type)
	require.Equal(t, "pilot-1", jobs[0].Payload["pilotStepId"])
}

func TestChatRunEnqueuesAutoName(t *testing.T) {
	runtime := &fakeRuntime{events: []*event.Event{
		event.New("result-1", 1, event.TypeStream, event.WithContent("ok", "")),
		event.New("result-1", 1, event.TypeEnd),
	}}
	fx := newTestFixture(t, runtime)

	_, err := fx.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(fx.queue.Jobs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, queue.JobAutoName, fx.queue.Jobs()[0].Type)
}

func TestHardFailureSkipsDownstreamJobs(t *testing.T) {
	runtime := &fakeRuntime{events: []*event.Event{
		event.NewError("result-1", 1, "providerError", "boom"),
	}}
	fx := newTestFixture(t, runtime)

	result, err := fx.engine.Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, result.Status)

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, fx.queue.Jobs())
}

func TestStructuredDataAndLogsLandOnSteps(t *testing.T) {
	runtime := &fakeRuntime{events: []*event.Event{
		event.New("result-1", 1, event.TypeStructuredData,
			event.WithStepName("analysis"),
			event.WithStructuredData(map[string]any{"score": 0.9})),
		event.New("result-1", 1, event.TypeStructuredData,
			event.WithStepName("analysis"),
			event.WithStructuredData(map[string]any{"verdict": "good"})),
		event.New("result-1", 1, event.TypeLog,
			event.WithStepName("analysis"),
			event.WithLog("info", "analysis finished")),
		event.New("result-1", 1, event.TypeEnd),
	}}
	fx := newTestFixture(t, runtime)
	req := testRequest()

	result, err := fx.engine.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, store.StatusFinish, result.Status)

	steps := fx.store.ListSteps(req.ResultID, req.Version)
	require.Len(t, steps, 1)
	require.Equal(t, "analysis", steps[0].Name)
	require.Equal(t, 0.9, steps[0].StructuredData["score"])
	require.Equal(t, "good", steps[0].StructuredData["verdict"])
	require.Len(t, steps[0].Logs, 1)
	require.Equal(t, "analysis finished", steps[0].Logs[0].Message)
}

func TestDuplicateToolCallStartIgnored(t *testing.T) {
	start := event.New("result-1", 1, event.TypeToolCallStart, event.WithToolCall(&event.ToolCall{
		ID: "call-1", Name: "web_search",
	}, ""))
	runtime := &fakeRuntime{events: []*event.Event{
		start,
		start.Clone(),
		event.New("result-1", 1, event.TypeToolCallEnd, event.WithToolCall(&event.ToolCall{
			ID: "call-1", Name: "web_search", Status: event.ToolStatusSuccess, Output: "ok",
		}, "")),
		event.New("result-1", 1, event.TypeEnd),
	}}
	fx := newTestFixture(t, runtime)

	events, err := fx.engine.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	got := collect(t, events)

	var starts int
	for _, ev := range got {
		if ev.Type == event.TypeToolCallStart {
			starts++
		}
	}
	require.Equal(t, 1, starts)

	records, err := fx.store.ListToolCallResults(context.Background(), "result-1", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestInvokeValidation(t *testing.T) {
	fx := newTestFixture(t, &fakeRuntime{})

	_, err := fx.engine.Invoke(context.Background(), nil)
	require.Error(t, err)

	_, err = fx.engine.Invoke(context.Background(), &skill.Request{ResultID: "r"})
	require.Error(t, err)
}

func TestNewRequiresRuntime(t *testing.T) {
	_, err := New()
	require.Error(t, err)
}

func TestNonPositiveIntervalsFallBackToDefaults(t *testing.T) {
	runtime := &fakeRuntime{events: []*event.Event{
		event.New("result-1", 1, event.TypeStream, event.WithContent("ok", "")),
		event.New("result-1", 1, event.TypeEnd),
	}}
	fx := newTestFixture(t, runtime,
		WithSnapshotInterval(0),
		WithAutoSaveInterval(-time.Second),
	)
	require.Equal(t, defaultSnapshotInterval, fx.engine.opts.snapshotInterval)
	require.Equal(t, defaultAutoSaveInterval, fx.engine.opts.autoSaveInterval)

	events, err := fx.engine.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	collect(t, events)

	result, err := fx.store.GetActionResult(context.Background(), "result-1", 1)
	require.NoError(t, err)
	require.Equal(t, store.StatusFinish, result.Status)
}

func TestFinalizeRunsExactlyOnce(t *testing.T) {
	fx := newTestFixture(t, &fakeRuntime{})
	e := fx.engine
	req := testRequest()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, fx.store.CreateActionResult(ctx, &store.ActionResult{
		ResultID:  req.ResultID,
		Version:   req.Version,
		UID:       req.User.UID,
		SkillName: req.SkillName,
		Status:    store.StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	token := e.opts.registry.Register(req.ResultID)
	inv := &invocation{
		engine: e,
		req:    req,
		token:  token,
		out:    make(chan *event.Event, defaultEventBuffer),
	}
	inv.tracker = newToolCallTracker(e.opts.store, req.ResultID, req.Version)
	inv.stepAgg = newStepAggregator(e.opts.cache, req.ResultID, req.Version, e.opts.snapshotInterval)
	inv.msgAgg = newMessageAggregator(e.opts.store, req.ResultID, req.Version, e.opts.autoSaveInterval)
	inv.supervisor = newSupervisor(token, e.opts.flags, req.ResultID, req.Version,
		e.opts.abortPollInterval, 0)

	// The first finalize wins; a late failure from another exit path must
	// leave no trace: no second terminal write, no extra events.
	inv.finalize(ctx, nil)
	inv.finalize(ctx, errors.New("late failure"))

	result, err := fx.store.GetActionResult(ctx, req.ResultID, req.Version)
	require.NoError(t, err)
	require.Equal(t, store.StatusFinish, result.Status)
	require.Empty(t, result.ErrorType)
	require.Empty(t, result.Errors)

	close(inv.out)
	var ends, errEvents int
	for ev := range inv.out {
		switch ev.Type {
		case event.TypeEnd:
			ends++
		case event.TypeError:
			errEvents++
		}
	}
	require.Equal(t, 1, ends)
	require.Zero(t, errEvents)
}

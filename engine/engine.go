//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package engine provides the skill execution engine. It drives one skill
// invocation from request to terminal persisted state: it streams the
// runtime's events to the caller, accumulates steps and messages, tracks
// tool calls, supervises cancellation and idle timeouts, bills credit usage
// and finalizes everything in a single atomic write.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/woyin/refly-sub002/abort"
	abortinmemory "github.com/woyin/refly-sub002/abort/inmemory"
	"github.com/woyin/refly-sub002/artifact"
	artifactinmemory "github.com/woyin/refly-sub002/artifact/inmemory"
	"github.com/woyin/refly-sub002/cache"
	cacheinmemory "github.com/woyin/refly-sub002/cache/inmemory"
	"github.com/woyin/refly-sub002/credit"
	"github.com/woyin/refly-sub002/event"
	"github.com/woyin/refly-sub002/log"
	"github.com/woyin/refly-sub002/queue"
	queueinmemory "github.com/woyin/refly-sub002/queue/inmemory"
	"github.com/woyin/refly-sub002/skill"
	"github.com/woyin/refly-sub002/store"
	storeinmemory "github.com/woyin/refly-sub002/store/inmemory"
	"github.com/woyin/refly-sub002/telemetry/trace"
)

// Default tuning values.
const (
	defaultAbortPollInterval = 3 * time.Second
	defaultSnapshotInterval  = 2 * time.Second
	defaultAutoSaveInterval  = 5 * time.Second
	defaultEventBuffer       = 64
	defaultWorkerPoolSize    = 16
)

// Runtime produces the live event stream of one skill invocation. The model
// loop, prompt assembly and tool dispatch live behind this interface; the
// engine only consumes the resulting events. The returned channel must be
// closed by the runtime when the stream ends.
type Runtime interface {
	Stream(ctx context.Context, cfg *RunConfig) (<-chan *event.Event, error)
}

// Options holds the configurable collaborators and tuning of the engine.
type Options struct {
	runtime   Runtime
	store     store.Service
	cache     cache.Service
	queue     queue.Queue
	credit    credit.Service
	artifacts artifact.Service
	resolver  skill.ToolsetResolver
	registry  *abort.Registry
	flags     abort.FlagStore

	abortPollInterval time.Duration
	idleTimeout       time.Duration
	snapshotInterval  time.Duration
	autoSaveInterval  time.Duration
	eventBuffer       int
	workerPoolSize    int
}

// Option configures the engine.
type Option func(*Options)

// WithRuntime sets the skill runtime. Required.
func WithRuntime(runtime Runtime) Option {
	return func(o *Options) { o.runtime = runtime }
}

// WithStore sets the durable persistence service.
func WithStore(svc store.Service) Option {
	return func(o *Options) { o.store = svc }
}

// WithCache sets the fast snapshot cache.
func WithCache(svc cache.Service) Option {
	return func(o *Options) { o.cache = svc }
}

// WithQueue sets the downstream notification queue.
func WithQueue(q queue.Queue) Option {
	return func(o *Options) { o.queue = q }
}

// WithCreditService sets the credit metering service.
func WithCreditService(svc credit.Service) Option {
	return func(o *Options) { o.credit = svc }
}

// WithArtifactService sets the artifact storage service.
func WithArtifactService(svc artifact.Service) Option {
	return func(o *Options) { o.artifacts = svc }
}

// WithToolsetResolver sets the toolset resolver.
func WithToolsetResolver(resolver skill.ToolsetResolver) Option {
	return func(o *Options) { o.resolver = resolver }
}

// WithAbortFlagStore sets the durable cross-process abort flag store.
func WithAbortFlagStore(flags abort.FlagStore) Option {
	return func(o *Options) { o.flags = flags }
}

// WithAbortPollInterval sets how often the durable abort flag is polled.
func WithAbortPollInterval(interval time.Duration) Option {
	return func(o *Options) { o.abortPollInterval = interval }
}

// WithIdleTimeout sets the stream-idle threshold. A non-positive value
// disables the idle watchdog entirely.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(o *Options) { o.idleTimeout = timeout }
}

// WithSnapshotInterval sets the step snapshot cadence.
func WithSnapshotInterval(interval time.Duration) Option {
	return func(o *Options) { o.snapshotInterval = interval }
}

// WithAutoSaveInterval sets the message auto-save cadence.
func WithAutoSaveInterval(interval time.Duration) Option {
	return func(o *Options) { o.autoSaveInterval = interval }
}

// WithEventBuffer sets the outbound event channel buffer size.
func WithEventBuffer(size int) Option {
	return func(o *Options) { o.eventBuffer = size }
}

// WithWorkerPoolSize sets the size of the downstream job worker pool.
func WithWorkerPoolSize(size int) Option {
	return func(o *Options) { o.workerPoolSize = size }
}

// Engine executes skill invocations. It is safe for concurrent use; each
// invocation carries its own run-scoped state.
type Engine struct {
	opts     Options
	reporter *credit.Reporter
	pool     *ants.Pool
}

// New creates an execution engine. A runtime is required; every other
// collaborator defaults to an in-memory implementation suited for tests and
// single-node deployments.
func New(opts ...Option) (*Engine, error) {
	options := Options{
		abortPollInterval: defaultAbortPollInterval,
		snapshotInterval:  defaultSnapshotInterval,
		autoSaveInterval:  defaultAutoSaveInterval,
		eventBuffer:       defaultEventBuffer,
		workerPoolSize:    defaultWorkerPoolSize,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.runtime == nil {
		return nil, errors.New("engine: runtime is required")
	}
	if options.store == nil {
		options.store = storeinmemory.NewService()
	}
	if options.cache == nil {
		options.cache = cacheinmemory.NewService()
	}
	if options.queue == nil {
		options.queue = queueinmemory.NewQueue()
	}
	if options.credit == nil {
		options.credit = credit.NewNoopService()
	}
	if options.artifacts == nil {
		options.artifacts = artifactinmemory.NewService()
	}
	if options.flags == nil {
		options.flags = abortinmemory.NewFlagStore()
	}
	if options.registry == nil {
		options.registry = abort.NewRegistry()
	}
	if options.abortPollInterval <= 0 {
		options.abortPollInterval = defaultAbortPollInterval
	}
	if options.snapshotInterval <= 0 {
		options.snapshotInterval = defaultSnapshotInterval
	}
	if options.autoSaveInterval <= 0 {
		options.autoSaveInterval = defaultAutoSaveInterval
	}
	if options.eventBuffer <= 0 {
		options.eventBuffer = defaultEventBuffer
	}

	pool, err := ants.NewPool(options.workerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Engine{
		opts:     options,
		reporter: credit.NewReporter(options.credit),
		pool:     pool,
	}, nil
}

// Invoke starts one skill invocation and returns its live event stream. The
// invocation runs to a terminal persisted state even if the caller stops
// consuming; the channel is closed after the end event.
func (e *Engine) Invoke(ctx context.Context, req *skill.Request) (<-chan *event.Event, error) {
	if req == nil || req.ResultID == "" {
		return nil, errors.New("engine: request with resultId is required")
	}
	if req.User.UID == "" {
		return nil, errors.New("engine: request user uid is required")
	}

	check, err := e.opts.credit.CheckRequestCreditUsage(ctx, req.User.UID,
		req.Model.Provider, req.Model.Model)
	if err != nil {
		return nil, fmt.Errorf("check credit usage: %w", err)
	}
	if !check.CanUse {
		return nil, fmt.Errorf("%w: %s", ErrCreditNotAvailable, check.Message)
	}

	now := time.Now()
	result := &store.ActionResult{
		ResultID:       req.ResultID,
		Version:        req.Version,
		UID:            req.User.UID,
		SkillName:      req.SkillName,
		Status:         store.StatusWaiting,
		ParentResultID: req.ParentResultID,
		WorkflowNodeID: req.WorkflowNodeID,
		PilotStepID:    req.PilotStepID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.opts.store.CreateActionResult(ctx, result); err != nil {
		return nil, fmt.Errorf("create action result: %w", err)
	}

	token := e.opts.registry.Register(req.ResultID)
	if err := e.opts.flags.MarkJobStarted(ctx, req.ResultID); err != nil {
		log.Warnf("Mark job started failed for result %s: %v", req.ResultID, err)
	}

	inv := &invocation{
		engine: e,
		req:    req,
		token:  token,
		out:    make(chan *event.Event, e.opts.eventBuffer),
	}
	// The run must reach its terminal state even if the caller's context
	// ends, so the background goroutine detaches from cancellation while
	// keeping request-scoped values for tracing.
	go inv.run(context.WithoutCancel(ctx))
	return inv.out, nil
}

// Run executes one invocation synchronously: it drains the event stream and
// returns the terminal action result.
func (e *Engine) Run(ctx context.Context, req *skill.Request) (*store.ActionResult, error) {
	events, err := e.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	for range events {
	}
	return e.opts.store.GetActionResult(ctx, req.ResultID, req.Version)
}

// Abort requests cancellation of a running invocation. The durable flag is
// set first so the request reaches runs executing on other nodes; the local
// token is cancelled for sub-poll-interval latency on this node.
func (e *Engine) Abort(ctx context.Context, resultID string, version int) error {
	if err := e.opts.flags.RequestAbort(ctx, resultID, version); err != nil {
		return fmt.Errorf("request abort: %w", err)
	}
	e.opts.registry.Cancel(resultID, ErrUserAborted)
	return nil
}

// Close releases the worker pool and closes the owned collaborators.
func (e *Engine) Close() error {
	e.pool.Release()
	var errs []error
	if err := e.opts.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.opts.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.opts.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.opts.flags.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// invocation is the run-scoped state of one executing skill invocation.
type invocation struct {
	engine *Engine
	req    *skill.Request
	cfg    *RunConfig
	token  *abort.Token
	out    chan *event.Event

	supervisor *supervisor
	tracker    *toolCallTracker
	stepAgg    *stepAggregator
	msgAgg     *messageAggregator

	mu        sync.Mutex
	runErrs   []string
	finalized sync.Once
}

func (inv *invocation) run(ctx context.Context) {
	defer close(inv.out)

	e := inv.engine
	req := inv.req

	ctx, span := trace.Tracer.Start(ctx, trace.SpanInvocation)
	defer span.End()

	inv.tracker = newToolCallTracker(e.opts.store, req.ResultID, req.Version)
	inv.stepAgg = newStepAggregator(e.opts.cache, req.ResultID, req.Version, e.opts.snapshotInterval)
	inv.msgAgg = newMessageAggregator(e.opts.store, req.ResultID, req.Version, e.opts.autoSaveInterval)
	inv.supervisor = newSupervisor(inv.token, e.opts.flags, req.ResultID, req.Version,
		e.opts.abortPollInterval, e.opts.idleTimeout)

	if err := e.opts.store.UpdateActionResultStatus(ctx, req.ResultID, req.Version,
		store.StatusExecuting); err != nil {
		inv.finalize(ctx, fmt.Errorf("mark executing: %w", err))
		return
	}
	inv.emit(event.New(req.ResultID, req.Version, event.TypeStart))

	cfg, err := buildRunConfig(ctx, req, e.opts.resolver)
	if err != nil {
		inv.finalize(ctx, err)
		return
	}
	inv.cfg = cfg

	inv.supervisor.Start(ctx)
	inv.stepAgg.Start(ctx)
	inv.msgAgg.Start(ctx)

	// The runtime observes cancellation through this derived context.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	inv.token.OnCancel(func(error) { cancelRun() })

	stream, err := e.opts.runtime.Stream(runCtx, cfg)
	if err != nil {
		inv.finalize(ctx, fmt.Errorf("start runtime stream: %w", err))
		return
	}

	for {
		// A cancelled token always wins. The runtime closes its stream
		// cooperatively after cancellation, so both select cases become
		// ready at once and the pick between them is random.
		if inv.token.Cancelled() {
			inv.finalize(ctx, inv.token.Reason())
			return
		}
		select {
		case <-inv.token.Done():
			inv.finalize(ctx, inv.token.Reason())
			return
		case ev, ok := <-stream:
			if !ok {
				// Reason is nil unless the close followed a cancel.
				inv.finalize(ctx, inv.token.Reason())
				return
			}
			if inv.token.Cancelled() {
				inv.finalize(ctx, inv.token.Reason())
				return
			}
			if done, err := inv.dispatch(ctx, ev); err != nil || done {
				inv.finalize(ctx, err)
				return
			}
		}
	}
}

// dispatch routes one runtime event through the run-scoped accumulators and
// forwards the outbound form to the caller. It returns done when the stream
// has logically ended and an error when the run must fail.
func (inv *invocation) dispatch(ctx context.Context, ev *event.Event) (bool, error) {
	if ev == nil {
		return false, nil
	}
	if ev.IsOutput() {
		inv.supervisor.NoteOutput()
	}

	switch ev.Type {
	case event.TypeStart:
		// The coordinator already emitted its own start event.
		return false, nil

	case event.TypeStream:
		inv.stepAgg.AppendContent(ev.StepName, ev.Content, ev.ReasoningContent)
		inv.msgAgg.AppendAssistant(ev.Content, ev.ReasoningContent)
		inv.emit(ev)
		return false, nil

	case event.TypeToolCallStart:
		out, err := inv.tracker.HandleStart(ctx, ev.ToolCall)
		if err != nil {
			log.Warnf("Tool call start persistence failed for result %s: %v",
				inv.req.ResultID, err)
		}
		if out != nil {
			inv.emit(out)
		}
		return false, nil

	case event.TypeToolCallEnd:
		out, files, err := inv.tracker.HandleEnd(ctx, ev.ToolCall)
		if err != nil {
			log.Warnf("Tool call end persistence failed for result %s: %v",
				inv.req.ResultID, err)
		}
		if out == nil {
			return false, nil
		}
		inv.stepAgg.AttachFiles(files)
		inv.msgAgg.AddToolMessage(out.MessageID, ev.ToolCall)
		if out.Type == event.TypeToolCallError {
			inv.recordToolError(ev.ToolCall)
		}
		inv.emit(out)
		return false, nil

	case event.TypeToolCallError:
		out, err := inv.tracker.HandleError(ctx, ev.ToolCall)
		if err != nil {
			log.Warnf("Tool call error persistence failed for result %s: %v",
				inv.req.ResultID, err)
		}
		if out == nil {
			return false, nil
		}
		inv.msgAgg.AddToolMessage(out.MessageID, ev.ToolCall)
		inv.recordToolError(ev.ToolCall)
		inv.emit(out)
		return false, nil

	case event.TypeTokenUsage:
		if ev.Usage != nil {
			inv.stepAgg.AddUsage(ev.StepName, *ev.Usage)
			inv.msgAgg.SetUsage(*ev.Usage)
		}
		inv.emit(ev)
		return false, nil

	case event.TypeStructuredData:
		inv.stepAgg.MergeStructured(ev.StepName, ev.StructuredData)
		inv.emit(ev)
		return false, nil

	case event.TypeLog:
		if ev.Log != nil {
			inv.stepAgg.AppendLog(ev.StepName, *ev.Log)
		}
		inv.emit(ev)
		return false, nil

	case event.TypeError:
		msg := "runtime stream error"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		return true, errors.New(msg)

	case event.TypeEnd:
		return true, nil

	default:
		log.Warnf("Dropping event of unknown type %q for result %s",
			ev.Type, inv.req.ResultID)
		return false, nil
	}
}

// recordToolError remembers a per-tool-call failure. Tool failures are
// surfaced on the result's error list but never fail the invocation.
func (inv *invocation) recordToolError(call *event.ToolCall) {
	if call == nil {
		return
	}
	msg := call.ErrorMessage
	if msg == "" {
		msg = "tool call failed"
	}
	inv.mu.Lock()
	inv.runErrs = append(inv.runErrs,
		fmt.Sprintf("%s: %s (%s)", ErrorTypeToolExecution, msg, call.Name))
	inv.mu.Unlock()
}

// emit forwards an event to the caller. It applies backpressure while the
// run is live; after cancellation the caller may be gone, so delivery turns
// best-effort.
func (inv *invocation) emit(ev *event.Event) {
	select {
	case inv.out <- ev:
	case <-inv.token.Done():
		select {
		case inv.out <- ev:
		default:
		}
	}
}

// finalize drives the invocation to its terminal persisted state. It runs
// exactly once per invocation regardless of how the run ended.
func (inv *invocation) finalize(ctx context.Context, runErr error) {
	inv.finalized.Do(func() {
		inv.doFinalize(ctx, runErr)
	})
}

func (inv *invocation) doFinalize(ctx context.Context, runErr error) {
	e := inv.engine
	req := inv.req

	inv.supervisor.Stop()
	inv.msgAgg.Dispose()
	inv.stepAgg.Stop()
	defer inv.tracker.Clear()
	defer e.opts.registry.Unregister(req.ResultID)

	classified := classifyError(runErr)

	toolRecords, err := e.opts.store.ListToolCallResults(ctx, req.ResultID, req.Version)
	if err != nil {
		log.Warnf("Listing tool call records failed for result %s v%d: %v",
			req.ResultID, req.Version, err)
	}

	// Non-abort failures get a fallback save of completed tool output
	// before the final flush, so the document reference lands in the steps.
	// A successful save downgrades the failure: the work is preserved and
	// the run completes with a recoverable notice instead of a hard error.
	if classified != nil && !classified.Abort() {
		notice, err := saveFallbackDocument(ctx, e.opts.artifacts,
			req.ResultID, req.Version, req.User.UID, toolRecords)
		if err != nil {
			log.Warnf("Fallback save failed for result %s v%d: %v",
				req.ResultID, req.Version, err)
		} else if notice != nil {
			inv.stepAgg.AppendContent(notice.StepName, notice.Content, "")
			inv.emit(notice)
			log.Infof("Recovered result %s v%d from %s failure via fallback save",
				req.ResultID, req.Version, classified.Type)
			inv.mu.Lock()
			inv.runErrs = append(inv.runErrs, classified.Message)
			inv.mu.Unlock()
			classified = nil
		}
	}

	// Billing happens on success and on user abort, before the atomic
	// write: a recharge demand must surface as the terminal failure.
	if classified == nil || classified.Abort() {
		if err := inv.bill(ctx, classified, toolRecords); err != nil {
			if errors.Is(err, credit.ErrCreditExhausted) {
				classified = &ClassifiedError{
					Type:    ErrorTypeCreditExhausted,
					Message: err.Error(),
				}
			} else {
				log.Errorf("Credit billing failed for result %s v%d: %v",
					req.ResultID, req.Version, err)
			}
		}
	}

	status := store.StatusFinish
	errorType := ""
	inv.mu.Lock()
	errs := append([]string(nil), inv.runErrs...)
	inv.mu.Unlock()
	if classified != nil {
		status = store.StatusFailed
		errorType = classified.Type
		errs = append(errs, classified.Message)
	}

	now := time.Now()
	fin := &store.Finalization{
		Result: &store.ActionResult{
			ResultID:       req.ResultID,
			Version:        req.Version,
			UID:            req.User.UID,
			SkillName:      req.SkillName,
			Status:         status,
			ErrorType:      errorType,
			Errors:         errs,
			ParentResultID: req.ParentResultID,
			WorkflowNodeID: req.WorkflowNodeID,
			PilotStepID:    req.PilotStepID,
			UpdatedAt:      now,
		},
		Steps:                 inv.stepAgg.Flush(),
		Messages:              inv.msgAgg.Flush(),
		SkipDuplicateMessages: true,
	}
	if req.WorkflowNodeID != "" {
		fin.WorkflowNode = &store.WorkflowNodeUpdate{
			NodeID: req.WorkflowNodeID,
			Status: string(status),
		}
	}
	if req.PilotStepID != "" {
		fin.PilotStep = &store.PilotStepUpdate{
			StepID: req.PilotStepID,
			Status: string(status),
		}
	}

	if err := e.opts.store.FinalizeInvocation(ctx, fin); err != nil {
		if errors.Is(err, store.ErrAlreadyFinalized) {
			log.Infof("Result %s v%d already finalized, skipping terminal write",
				req.ResultID, req.Version)
		} else {
			log.Errorf("Finalize write failed for result %s v%d: %v",
				req.ResultID, req.Version, err)
			inv.emit(event.NewError(req.ResultID, req.Version,
				ErrorTypeSystem, fmt.Sprintf("finalize write failed: %v", err)))
		}
	}

	if err := e.opts.cache.DeleteSnapshot(ctx, req.ResultID, req.Version); err != nil {
		log.Warnf("Snapshot cleanup failed for result %s v%d: %v",
			req.ResultID, req.Version, err)
	}
	if err := e.opts.flags.DequeueStartedJob(ctx, req.ResultID); err != nil {
		log.Warnf("Started-job cleanup failed for result %s: %v", req.ResultID, err)
	}

	// Downstream jobs are fire-and-forget and skipped on hard failures;
	// a user abort still produced a result worth naming and syncing.
	if classified == nil || classified.Abort() {
		inv.enqueueDownstreamJobs(ctx)
	}

	if classified != nil {
		inv.emit(event.NewError(req.ResultID, req.Version, classified.Type, classified.Message))
	}
	inv.emit(event.New(req.ResultID, req.Version, event.TypeEnd))
}

// bill reports the run's usage to the credit service. Missing provider usage
// on aborted runs is estimated from the content actually produced.
func (inv *invocation) bill(ctx context.Context, classified *ClassifiedError,
	toolRecords []*store.ToolCallResult) error {
	usages := inv.stepAgg.Usages()
	estimated := false
	if len(usages) == 0 && classified.Abort() && inv.cfg != nil {
		estimator, err := credit.NewEstimator(inv.req.Model.Model)
		if err != nil {
			log.Warnf("Usage estimator unavailable for model %s: %v",
				inv.req.Model.Model, err)
		} else {
			usage, err := estimator.EstimateUsage(inv.req.Model.Provider,
				inv.req.Model.Model, inv.req.Input, inv.stepAgg.ContentText())
			if err != nil {
				log.Warnf("Usage estimation failed for result %s: %v",
					inv.req.ResultID, err)
			} else if usage.InputTokens > 0 || usage.OutputTokens > 0 {
				usages = append(usages, *usage)
				estimated = true
			}
		}
	}
	return inv.engine.reporter.Report(ctx, &credit.ReportJob{
		UID:        inv.req.User.UID,
		ResultID:   inv.req.ResultID,
		Version:    inv.req.Version,
		Usages:     usages,
		Estimated:  estimated,
		ToolCalls:  toolRecords,
		MediaFiles: inv.stepAgg.Artifacts(),
	})
}

// enqueueDownstreamJobs hands the post-run notification jobs to the worker
// pool. Enqueue failures are logged and never affect the finalized result.
func (inv *invocation) enqueueDownstreamJobs(ctx context.Context) {
	e := inv.engine
	req := inv.req

	type pending struct {
		jobType queue.JobType
		payload map[string]any
	}
	var jobs []pending
	if req.Mode != skill.ModeWorkflow {
		jobs = append(jobs, pending{
			jobType: queue.JobAutoName,
			payload: map[string]any{
				"uid":      req.User.UID,
				"resultId": req.ResultID,
				"version":  req.Version,
			},
		})
	}
	if req.PilotStepID != "" {
		jobs = append(jobs, pending{
			jobType: queue.JobPilotSync,
			payload: map[string]any{
				"uid":         req.User.UID,
				"resultId":    req.ResultID,
				"version":     req.Version,
				"pilotStepId": req.PilotStepID,
			},
		})
	}

	for _, job := range jobs {
		job := job
		err := e.pool.Submit(func() {
			if err := e.opts.queue.Enqueue(ctx, job.jobType, job.payload); err != nil {
				log.Warnf("Enqueue %s job failed for result %s: %v",
					job.jobType, req.ResultID, err)
			}
		})
		if err != nil {
			log.Warnf("Submit %s job failed for result %s: %v",
				job.jobType, req.ResultID, err)
		}
	}
}

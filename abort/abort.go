//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package abort provides cancellation primitives for skill invocations.
//
// Cancellation has two halves. The Token/Registry half is in-process: a token
// is registered per resultID while the run executes and cancelling it stops
// the run cooperatively. The FlagStore half is durable and cross-process: a
// cancel request received on another node sets a flag that the executing
// node polls. The flag is an eventually-consistent signal, not a lock;
// callers must not assume sub-poll-interval cancellation latency.
package abort

import (
	"context"
	"sync"
)

// Token is the explicit cancellation context of one invocation. Cancel is
// idempotent; listeners registered after cancellation fire immediately.
type Token struct {
	mu        sync.Mutex
	done      chan struct{}
	reason    error
	cancelled bool
	listeners []func(error)
}

// NewToken creates a new cancellation token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel cancels the token with the given reason. Only the first call has
// any effect.
func (t *Token) Cancel(reason error) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.reason = reason
	listeners := t.listeners
	t.listeners = nil
	close(t.done)
	t.mu.Unlock()

	for _, listener := range listeners {
		listener(reason)
	}
}

// OnCancel registers a listener invoked once when the token is cancelled.
// If the token is already cancelled the listener fires immediately.
func (t *Token) OnCancel(listener func(error)) {
	t.mu.Lock()
	if t.cancelled {
		reason := t.reason
		t.mu.Unlock()
		listener(reason)
		return
	}
	t.listeners = append(t.listeners, listener)
	t.mu.Unlock()
}

// Done returns a channel closed when the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Cancelled reports whether the token has been cancelled.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Reason returns the cancellation reason, nil if not cancelled.
func (t *Token) Reason() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Registry holds the in-process cancellation tokens keyed by resultID.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewRegistry creates a new token registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

// Register creates and registers a token for the resultID, replacing any
// previous registration.
func (r *Registry) Register(resultID string) *Token {
	token := NewToken()
	r.mu.Lock()
	r.tokens[resultID] = token
	r.mu.Unlock()
	return token
}

// Get returns the registered token for the resultID.
func (r *Registry) Get(resultID string) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[resultID]
	return token, ok
}

// Cancel cancels the registered token for the resultID, if any.
func (r *Registry) Cancel(resultID string, reason error) bool {
	token, ok := r.Get(resultID)
	if !ok {
		return false
	}
	token.Cancel(reason)
	return true
}

// Unregister removes the token for the resultID.
func (r *Registry) Unregister(resultID string) {
	r.mu.Lock()
	delete(r.tokens, resultID)
	r.mu.Unlock()
}

// FlagStore is the durable, externally checkable abort flag collaborator.
type FlagStore interface {
	// RequestAbort sets the abort flag for (resultID, version).
	RequestAbort(ctx context.Context, resultID string, version int) error

	// IsAbortRequested reports whether the abort flag is set.
	IsAbortRequested(ctx context.Context, resultID string, version int) (bool, error)

	// MarkJobStarted records that the run started executing on some node.
	MarkJobStarted(ctx context.Context, resultID string) error

	// DequeueStartedJob removes the started-job record at finalize.
	DequeueStartedJob(ctx context.Context, resultID string) error

	// Close closes the store.
	Close() error
}

//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory implementation of the store service.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/woyin/refly-sub002/store"
)

var _ store.Service = (*Service)(nil)

type resultKey struct {
	resultID string
	version  int
}

// Service is an in-memory store service. It is safe for concurrent use and
// intended for tests and single-process deployments.
type Service struct {
	mu        sync.RWMutex
	results   map[resultKey]*store.ActionResult
	steps     map[resultKey][]*store.Step
	messages  map[resultKey][]*store.Message
	msgIDs    map[string]struct{}
	toolCalls map[resultKey][]*store.ToolCallResult
	nodes     map[string]string
	pilots    map[string]string
	finalized map[resultKey]struct{}
}

// NewService creates a new in-memory store service.
func NewService() *Service {
	return &Service{
		results:   make(map[resultKey]*store.ActionResult),
		steps:     make(map[resultKey][]*store.Step),
		messages:  make(map[resultKey][]*store.Message),
		msgIDs:    make(map[string]struct{}),
		toolCalls: make(map[resultKey][]*store.ToolCallResult),
		nodes:     make(map[string]string),
		pilots:    make(map[string]string),
		finalized: make(map[resultKey]struct{}),
	}
}

// CreateActionResult creates the record of a new invocation attempt.
func (s *Service) CreateActionResult(_ context.Context, result *store.ActionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *result
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.results[resultKey{result.ResultID, result.Version}] = &cp
	return nil
}

// UpdateActionResultStatus advances the non-terminal status of a result.
func (s *Service) UpdateActionResultStatus(_ context.Context, resultID string, version int, status store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resultKey{resultID, version}
	result, ok := s.results[key]
	if !ok {
		return store.ErrNotFound
	}
	if !result.Status.CanTransition(status) {
		return store.ErrStatusRegression
	}
	result.Status = status
	result.UpdatedAt = time.Now()
	return nil
}

// GetActionResult returns a copy of the result record.
func (s *Service) GetActionResult(_ context.Context, resultID string, version int) (*store.ActionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[resultKey{resultID, version}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *result
	cp.Errors = append([]string(nil), result.Errors...)
	return &cp, nil
}

// UpsertToolCallResult creates or updates a tool call record keyed by CallID.
func (s *Service) UpsertToolCallResult(_ context.Context, result *store.ToolCallResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resultKey{result.ResultID, result.Version}
	cp := *result
	for i, existing := range s.toolCalls[key] {
		if existing.CallID == result.CallID {
			s.toolCalls[key][i] = &cp
			return nil
		}
	}
	s.toolCalls[key] = append(s.toolCalls[key], &cp)
	return nil
}

// ListToolCallResults returns all tool call records of a run in start order.
func (s *Service) ListToolCallResults(_ context.Context, resultID string, version int) ([]*store.ToolCallResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.toolCalls[resultKey{resultID, version}]
	out := make([]*store.ToolCallResult, len(records))
	for i, record := range records {
		cp := *record
		out[i] = &cp
	}
	return out, nil
}

// CreateMessages writes a batch of messages, optionally skipping duplicates.
func (s *Service) CreateMessages(_ context.Context, messages []*store.Message, skipDuplicates bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createMessagesLocked(messages, skipDuplicates)
	return nil
}

func (s *Service) createMessagesLocked(messages []*store.Message, skipDuplicates bool) {
	for _, msg := range messages {
		if _, seen := s.msgIDs[msg.ID]; seen {
			if skipDuplicates {
				continue
			}
			// Overwrite in place to keep the id unique.
			key := resultKey{msg.ResultID, msg.Version}
			for i, existing := range s.messages[key] {
				if existing.ID == msg.ID {
					cp := *msg
					s.messages[key][i] = &cp
					break
				}
			}
			continue
		}
		cp := *msg
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		s.msgIDs[msg.ID] = struct{}{}
		key := resultKey{msg.ResultID, msg.Version}
		s.messages[key] = append(s.messages[key], &cp)
	}
}

// FinalizeInvocation applies the terminal write of one invocation atomically.
// The whole write happens under one lock so readers never observe a partial
// finalize.
func (s *Service) FinalizeInvocation(_ context.Context, fin *store.Finalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resultKey{fin.Result.ResultID, fin.Result.Version}
	if _, done := s.finalized[key]; done {
		return store.ErrAlreadyFinalized
	}
	current, ok := s.results[key]
	if !ok {
		return store.ErrNotFound
	}
	if !fin.Result.Status.Terminal() || !current.Status.CanTransition(fin.Result.Status) {
		return store.ErrStatusRegression
	}

	current.Status = fin.Result.Status
	current.ErrorType = fin.Result.ErrorType
	current.Errors = append([]string(nil), fin.Result.Errors...)
	current.UpdatedAt = time.Now()

	steps := make([]*store.Step, len(fin.Steps))
	for i, step := range fin.Steps {
		cp := *step
		steps[i] = &cp
	}
	s.steps[key] = steps

	s.createMessagesLocked(fin.Messages, fin.SkipDuplicateMessages)

	if fin.WorkflowNode != nil {
		s.nodes[fin.WorkflowNode.NodeID] = fin.WorkflowNode.Status
	}
	if fin.PilotStep != nil {
		s.pilots[fin.PilotStep.StepID] = fin.PilotStep.Status
	}

	s.finalized[key] = struct{}{}
	return nil
}

// ListSteps returns the persisted steps of a run in order. Test helper.
func (s *Service) ListSteps(resultID string, version int) []*store.Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := s.steps[resultKey{resultID, version}]
	out := make([]*store.Step, len(steps))
	for i, step := range steps {
		cp := *step
		out[i] = &cp
	}
	return out
}

// ListMessages returns the persisted messages of a run in order. Test helper.
func (s *Service) ListMessages(resultID string, version int) []*store.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[resultKey{resultID, version}]
	out := make([]*store.Message, len(messages))
	for i, msg := range messages {
		cp := *msg
		out[i] = &cp
	}
	return out
}

// WorkflowNodeStatus returns the last status written for a workflow node.
func (s *Service) WorkflowNodeStatus(nodeID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.nodes[nodeID]
	return status, ok
}

// PilotStepStatus returns the last status written for a pilot step.
func (s *Service) PilotStepStatus(stepID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.pilots[stepID]
	return status, ok
}

// Close closes the service.
func (s *Service) Close() error {
	return nil
}

//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory abort flag store.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/woyin/refly-sub002/abort"
)

var _ abort.FlagStore = (*FlagStore)(nil)

// FlagStore is an in-memory abort flag store. It only covers single-process
// deployments; cross-process cancellation requires a shared backend.
type FlagStore struct {
	mu      sync.Mutex
	flags   map[string]struct{}
	started map[string]struct{}
}

// NewFlagStore creates a new in-memory abort flag store.
func NewFlagStore() *FlagStore {
	return &FlagStore{
		flags:   make(map[string]struct{}),
		started: make(map[string]struct{}),
	}
}

func flagKey(resultID string, version int) string {
	return fmt.Sprintf("%s:%d", resultID, version)
}

// RequestAbort sets the abort flag for (resultID, version).
func (s *FlagStore) RequestAbort(_ context.Context, resultID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[flagKey(resultID, version)] = struct{}{}
	return nil
}

// IsAbortRequested reports whether the abort flag is set.
func (s *FlagStore) IsAbortRequested(_ context.Context, resultID string, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.flags[flagKey(resultID, version)]
	return ok, nil
}

// MarkJobStarted records that the run started executing.
func (s *FlagStore) MarkJobStarted(_ context.Context, resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started[resultID] = struct{}{}
	return nil
}

// DequeueStartedJob removes the started-job record.
func (s *FlagStore) DequeueStartedJob(_ context.Context, resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.started, resultID)
	return nil
}

// JobStarted reports whether the started-job record exists. Test helper.
func (s *FlagStore) JobStarted(resultID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.started[resultID]
	return ok
}

// Close closes the store.
func (s *FlagStore) Close() error {
	return nil
}

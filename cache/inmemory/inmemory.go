//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory snapshot cache.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/woyin/refly-sub002/cache"
)

var _ cache.Service = (*Service)(nil)

// Service is an in-memory snapshot cache, safe for concurrent use.
type Service struct {
	mu        sync.RWMutex
	snapshots map[string]*cache.Snapshot
}

// NewService creates a new in-memory snapshot cache.
func NewService() *Service {
	return &Service{snapshots: make(map[string]*cache.Snapshot)}
}

func snapshotKey(resultID string, version int) string {
	return fmt.Sprintf("%s:%d", resultID, version)
}

// SaveSnapshot stores the snapshot, replacing any previous one.
func (s *Service) SaveSnapshot(_ context.Context, snapshot *cache.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snapshot
	s.snapshots[snapshotKey(snapshot.ResultID, snapshot.Version)] = &cp
	return nil
}

// LoadSnapshot returns the stored snapshot or nil when none exists.
func (s *Service) LoadSnapshot(_ context.Context, resultID string, version int) (*cache.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[snapshotKey(resultID, version)]
	if !ok {
		return nil, nil
	}
	cp := *snapshot
	return &cp, nil
}

// DeleteSnapshot removes the snapshot.
func (s *Service) DeleteSnapshot(_ context.Context, resultID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, snapshotKey(resultID, version))
	return nil
}

// Close closes the service.
func (s *Service) Close() error {
	return nil
}

//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory artifact service.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/woyin/refly-sub002/artifact"
)

var _ artifact.Service = (*Service)(nil)

// Service is an in-memory artifact service, safe for concurrent use.
type Service struct {
	mu        sync.RWMutex
	artifacts map[string]*artifact.Artifact
}

// NewService creates a new in-memory artifact service.
func NewService() *Service {
	return &Service{artifacts: make(map[string]*artifact.Artifact)}
}

// SaveArtifact saves an artifact and returns its storage key.
func (s *Service) SaveArtifact(_ context.Context, info artifact.RunInfo, filename string, art *artifact.Artifact) (string, error) {
	key := fmt.Sprintf("%s/%s/%d/%s", info.UID, info.ResultID, info.Version, filename)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *art
	cp.Data = append([]byte(nil), art.Data...)
	s.artifacts[key] = &cp
	return key, nil
}

// LoadArtifact gets an artifact by storage key, nil if not found.
func (s *Service) LoadArtifact(_ context.Context, storageKey string) (*artifact.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	art, ok := s.artifacts[storageKey]
	if !ok {
		return nil, nil
	}
	cp := *art
	cp.Data = append([]byte(nil), art.Data...)
	return &cp, nil
}

// DeleteArtifact deletes an artifact by storage key.
func (s *Service) DeleteArtifact(_ context.Context, storageKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, storageKey)
	return nil
}

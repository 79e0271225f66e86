//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package cache provides the fast snapshot cache for in-flight invocations.
//
// The cache is a best-effort tier: snapshot failures are logged by callers and
// never fail the run, and the cache must never be treated as authoritative.
// The durable store written at finalize is the single point of truth.
package cache

import (
	"context"
	"time"

	"github.com/woyin/refly-sub002/store"
)

// Snapshot is the periodically saved in-flight state of one invocation.
type Snapshot struct {
	ResultID string `json:"resultId"`
	Version  int    `json:"version"`
	// Steps is the step content accumulated so far.
	Steps []*store.Step `json:"steps"`
	// UpdatedAt is the time the snapshot was taken.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Service is the snapshot cache collaborator.
type Service interface {
	// SaveSnapshot stores the snapshot, replacing any previous one.
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error

	// LoadSnapshot returns the stored snapshot or nil when none exists.
	LoadSnapshot(ctx context.Context, resultID string, version int) (*Snapshot, error)

	// DeleteSnapshot removes the snapshot. Called at finalize, after the
	// durable write, so the fast tier never outlives the run.
	DeleteSnapshot(ctx context.Context, resultID string, version int) error

	// Close closes the service.
	Close() error
}

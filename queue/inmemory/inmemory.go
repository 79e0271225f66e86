//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory job queue.
package inmemory

import (
	"context"
	"sync"

	"github.com/woyin/refly-sub002/queue"
)

var _ queue.Queue = (*Queue)(nil)

// Queue is an in-memory job queue, safe for concurrent use.
type Queue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

// NewQueue creates a new in-memory job queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue enqueues one job.
func (q *Queue) Enqueue(_ context.Context, jobType queue.JobType, payload map[string]any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, queue.Job{Type: jobType, Payload: payload})
	return nil
}

// Jobs returns a copy of the enqueued jobs in order. Test helper.
func (q *Queue) Jobs() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]queue.Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Close closes the queue.
func (q *Queue) Close() error {
	return nil
}

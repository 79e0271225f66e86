//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package queue provides the downstream notification job queue.
//
// Jobs are fire-and-forget: enqueue failures are logged by the caller and
// never fail the invocation that produced them.
package queue

import "context"

// JobType names a downstream job kind.
type JobType string

// Downstream job types produced by the execution engine.
const (
	// JobAutoName asks for an automatic title for the conversation.
	JobAutoName JobType = "autoName"
	// JobPilotSync synchronizes the linked pilot step after a run.
	JobPilotSync JobType = "pilotSync"
)

// Job is one enqueued downstream job.
type Job struct {
	// Type is the job kind.
	Type JobType `json:"type"`
	// Payload is the job payload.
	Payload map[string]any `json:"payload"`
}

// Queue is the downstream notification collaborator.
type Queue interface {
	// Enqueue enqueues one job.
	Enqueue(ctx context.Context, jobType JobType, payload map[string]any) error

	// Close closes the queue.
	Close() error
}

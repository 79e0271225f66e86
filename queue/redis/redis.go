//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a redis-streams job queue.
//
// Storage structure:
// Jobs: jobs:{jobType} -> stream [payload -> Job(json)]
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/woyin/refly-sub002/queue"
)

var _ queue.Queue = (*Queue)(nil)

const defaultMaxLen = 10000

// QueueOpts is the options for the redis job queue.
type QueueOpts struct {
	url         string
	redisClient redis.UniversalClient
	maxLen      int64
}

// QueueOption is the option for the redis job queue.
type QueueOption func(*QueueOpts)

// WithRedisClient sets the redis client.
func WithRedisClient(client redis.UniversalClient) QueueOption {
	return func(opts *QueueOpts) {
		opts.redisClient = client
	}
}

// WithRedisURL sets the redis url used to build a client when no client is set.
func WithRedisURL(url string) QueueOption {
	return func(opts *QueueOpts) {
		opts.url = url
	}
}

// WithMaxLen sets the approximate maximum stream length.
func WithMaxLen(maxLen int64) QueueOption {
	return func(opts *QueueOpts) {
		opts.maxLen = maxLen
	}
}

// Queue is the redis-streams job queue.
type Queue struct {
	client redis.UniversalClient
	maxLen int64
}

// NewQueue creates a new redis job queue.
func NewQueue(options ...QueueOption) (*Queue, error) {
	opts := QueueOpts{maxLen: defaultMaxLen}
	for _, opt := range options {
		opt(&opts)
	}
	client := opts.redisClient
	if client == nil {
		if opts.url == "" {
			return nil, fmt.Errorf("redis queue: no client and no url provided")
		}
		redisOpts, err := redis.ParseURL(opts.url)
		if err != nil {
			return nil, fmt.Errorf("redis queue: parse url %s: %w", opts.url, err)
		}
		client = redis.NewClient(redisOpts)
	}
	return &Queue{client: client, maxLen: opts.maxLen}, nil
}

func streamKey(jobType queue.JobType) string {
	return fmt.Sprintf("jobs:%s", jobType)
}

// Enqueue appends one job to the stream of its job type.
func (q *Queue) Enqueue(ctx context.Context, jobType queue.JobType, payload map[string]any) error {
	data, err := json.Marshal(queue.Job{Type: jobType, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(jobType),
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{"payload": data},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	return nil
}

// Close closes the underlying redis client.
func (q *Queue) Close() error {
	return q.client.Close()
}

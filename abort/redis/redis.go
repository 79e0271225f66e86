//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a redis-backed abort flag store.
//
// Storage structure:
// AbortFlag: abort:{resultID}:{version} -> "1" (expireTime)
// StartedJob: started:jobs -> list [resultID]
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/woyin/refly-sub002/abort"
)

var _ abort.FlagStore = (*FlagStore)(nil)

const (
	defaultFlagTTL = time.Hour

	startedJobsKey = "started:jobs"
)

// FlagStoreOpts is the options for the redis abort flag store.
type FlagStoreOpts struct {
	url         string
	redisClient redis.UniversalClient
	flagTTL     time.Duration
}

// FlagStoreOption is the option for the redis abort flag store.
type FlagStoreOption func(*FlagStoreOpts)

// WithRedisClient sets the redis client.
func WithRedisClient(client redis.UniversalClient) FlagStoreOption {
	return func(opts *FlagStoreOpts) {
		opts.redisClient = client
	}
}

// WithRedisURL sets the redis url used to build a client when no client is set.
func WithRedisURL(url string) FlagStoreOption {
	return func(opts *FlagStoreOpts) {
		opts.url = url
	}
}

// WithFlagTTL sets the abort flag expiration time.
func WithFlagTTL(ttl time.Duration) FlagStoreOption {
	return func(opts *FlagStoreOpts) {
		opts.flagTTL = ttl
	}
}

// FlagStore is the redis abort flag store.
type FlagStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewFlagStore creates a new redis abort flag store.
func NewFlagStore(options ...FlagStoreOption) (*FlagStore, error) {
	opts := FlagStoreOpts{flagTTL: defaultFlagTTL}
	for _, opt := range options {
		opt(&opts)
	}
	client := opts.redisClient
	if client == nil {
		if opts.url == "" {
			return nil, fmt.Errorf("redis abort: no client and no url provided")
		}
		redisOpts, err := redis.ParseURL(opts.url)
		if err != nil {
			return nil, fmt.Errorf("redis abort: parse url %s: %w", opts.url, err)
		}
		client = redis.NewClient(redisOpts)
	}
	return &FlagStore{client: client, ttl: opts.flagTTL}, nil
}

func flagKey(resultID string, version int) string {
	return fmt.Sprintf("abort:{%s}:%d", resultID, version)
}

// RequestAbort sets the abort flag for (resultID, version). The flag carries
// a TTL so stale flags cannot cancel a future re-run.
func (s *FlagStore) RequestAbort(ctx context.Context, resultID string, version int) error {
	key := flagKey(resultID, version)
	if err := s.client.Set(ctx, key, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("set abort flag %s: %w", key, err)
	}
	return nil
}

// IsAbortRequested reports whether the abort flag is set.
func (s *FlagStore) IsAbortRequested(ctx context.Context, resultID string, version int) (bool, error) {
	key := flagKey(resultID, version)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check abort flag %s: %w", key, err)
	}
	return n > 0, nil
}

// MarkJobStarted records that the run started executing on some node.
func (s *FlagStore) MarkJobStarted(ctx context.Context, resultID string) error {
	if err := s.client.LPush(ctx, startedJobsKey, resultID).Err(); err != nil {
		return fmt.Errorf("mark job started %s: %w", resultID, err)
	}
	return nil
}

// DequeueStartedJob removes the started-job record at finalize.
func (s *FlagStore) DequeueStartedJob(ctx context.Context, resultID string) error {
	if err := s.client.LRem(ctx, startedJobsKey, 1, resultID).Err(); err != nil {
		return fmt.Errorf("dequeue started job %s: %w", resultID, err)
	}
	return nil
}

// Close closes the underlying redis client.
func (s *FlagStore) Close() error {
	return s.client.Close()
}

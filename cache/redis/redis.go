//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a redis-backed snapshot cache.
//
// Storage structure:
// Snapshot: snapshot:{resultID}:{version} -> Snapshot(json) (expireTime)
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/woyin/refly-sub002/cache"
)

var _ cache.Service = (*Service)(nil)

const defaultSnapshotTTL = 24 * time.Hour

// ServiceOpts is the options for the redis snapshot cache.
type ServiceOpts struct {
	url         string
	redisClient redis.UniversalClient
	snapshotTTL time.Duration
}

// ServiceOption is the option for the redis snapshot cache.
type ServiceOption func(*ServiceOpts)

// WithRedisClient sets the redis client.
func WithRedisClient(client redis.UniversalClient) ServiceOption {
	return func(opts *ServiceOpts) {
		opts.redisClient = client
	}
}

// WithRedisURL sets the redis url used to build a client when no client is set.
// scheme: redis://<username>:<password>@<host>:<port>/<db>?<options>
func WithRedisURL(url string) ServiceOption {
	return func(opts *ServiceOpts) {
		opts.url = url
	}
}

// WithSnapshotTTL sets the snapshot expiration time.
func WithSnapshotTTL(ttl time.Duration) ServiceOption {
	return func(opts *ServiceOpts) {
		opts.snapshotTTL = ttl
	}
}

// Service is the redis snapshot cache.
type Service struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewService creates a new redis snapshot cache.
func NewService(options ...ServiceOption) (*Service, error) {
	opts := ServiceOpts{snapshotTTL: defaultSnapshotTTL}
	for _, opt := range options {
		opt(&opts)
	}
	client := opts.redisClient
	if client == nil {
		if opts.url == "" {
			return nil, fmt.Errorf("redis cache: no client and no url provided")
		}
		redisOpts, err := redis.ParseURL(opts.url)
		if err != nil {
			return nil, fmt.Errorf("redis cache: parse url %s: %w", opts.url, err)
		}
		client = redis.NewClient(redisOpts)
	}
	return &Service{client: client, ttl: opts.snapshotTTL}, nil
}

func snapshotKey(resultID string, version int) string {
	return fmt.Sprintf("snapshot:{%s}:%d", resultID, version)
}

// SaveSnapshot stores the snapshot, replacing any previous one.
func (s *Service) SaveSnapshot(ctx context.Context, snapshot *cache.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := snapshotKey(snapshot.ResultID, snapshot.Version)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot or nil when none exists.
func (s *Service) LoadSnapshot(ctx context.Context, resultID string, version int) (*cache.Snapshot, error) {
	key := snapshotKey(resultID, version)
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	var snapshot cache.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", key, err)
	}
	return &snapshot, nil
}

// DeleteSnapshot removes the snapshot.
func (s *Service) DeleteSnapshot(ctx context.Context, resultID string, version int) error {
	key := snapshotKey(resultID, version)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying redis client.
func (s *Service) Close() error {
	return s.client.Close()
}

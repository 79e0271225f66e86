//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package cos provides a Tencent Cloud Object Storage (COS) implementation of
// the artifact service.
//
// The object name format is {uid}/{resultID}/{version}/{filename}; the object
// name doubles as the storage key returned by SaveArtifact.
//
// Authentication:
// The service requires COS credentials which can be provided via:
// - Environment variables: COS_SECRETID and COS_SECRETKEY (recommended)
// - Option functions: WithSecretID() and WithSecretKey()
package cos

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	cos "github.com/tencentyun/cos-go-sdk-v5"

	"github.com/woyin/refly-sub002/artifact"
)

var _ artifact.Service = (*Service)(nil)

const defaultTimeout = 60 * time.Second

// Service is a Tencent Cloud Object Storage implementation of the artifact
// service.
type Service struct {
	cosClient client
}

// NewService creates a new COS artifact service.
//
// Example usage:
//
//	// Using environment variables (set COS_SECRETID and COS_SECRETKEY)
//	service, err := cos.NewService("https://bucket.cos.region.myqcloud.com")
//
//	// Using option functions
//	service, err := cos.NewService(
//	    "https://bucket.cos.region.myqcloud.com",
//	    cos.WithSecretID("your-secret-id"),
//	    cos.WithSecretKey("your-secret-key"),
//	    cos.WithTimeout(30*time.Second),
//	)
func NewService(bucketURL string, opts ...Option) (*Service, error) {
	cli, err := buildClient(bucketURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{cosClient: cli}, nil
}

func objectName(info artifact.RunInfo, filename string) string {
	return fmt.Sprintf("%s/%s/%d/%s", info.UID, info.ResultID, info.Version, filename)
}

// SaveArtifact uploads the artifact and returns its storage key.
func (s *Service) SaveArtifact(ctx context.Context, info artifact.RunInfo, filename string, art *artifact.Artifact) (string, error) {
	name := objectName(info, filename)
	reader := bytes.NewReader(art.Data)
	if err := s.cosClient.PutObject(ctx, name, reader, art.MimeType); err != nil {
		return "", fmt.Errorf("upload artifact %s: %w", name, err)
	}
	return name, nil
}

// LoadArtifact downloads an artifact by storage key, nil if not found.
func (s *Service) LoadArtifact(ctx context.Context, storageKey string) (*artifact.Artifact, error) {
	respBody, respHeader, err := s.cosClient.GetObject(ctx, storageKey)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("download artifact %s: %w", storageKey, err)
	}
	defer respBody.Close()

	data, err := io.ReadAll(respBody)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", storageKey, err)
	}

	contentType := respHeader.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &artifact.Artifact{
		Data:     data,
		MimeType: contentType,
	}, nil
}

// DeleteArtifact deletes an artifact by storage key.
func (s *Service) DeleteArtifact(ctx context.Context, storageKey string) error {
	if err := s.cosClient.DeleteObject(ctx, storageKey); err != nil && !cos.IsNotFoundError(err) {
		return fmt.Errorf("delete artifact %s: %w", storageKey, err)
	}
	return nil
}

//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package artifact provides the definition and service for run artifacts.
package artifact

import "context"

// Artifact defines a content artifact produced by or for a run, such as the
// fallback document saved when a run fails with recoverable tool output.
type Artifact struct {
	// Data contains the raw bytes (required).
	Data []byte `json:"data,omitempty"`
	// MimeType is the IANA standard MIME type of the data (required).
	MimeType string `json:"mime_type,omitempty"`
	// Name is an optional display name of the artifact.
	Name string `json:"name,omitempty"`
}

// RunInfo identifies the invocation an artifact belongs to.
type RunInfo struct {
	// UID is the id of the owning user.
	UID string
	// ResultID is the id of the invocation attempt.
	ResultID string
	// Version is the version of the invocation attempt.
	Version int
}

// Service defines the interface for artifact storage and retrieval.
type Service interface {
	// SaveArtifact saves an artifact scoped to a run and returns its
	// stable storage key.
	SaveArtifact(ctx context.Context, info RunInfo, filename string, art *Artifact) (string, error)

	// LoadArtifact gets an artifact by storage key, nil if not found.
	LoadArtifact(ctx context.Context, storageKey string) (*Artifact, error)

	// DeleteArtifact deletes an artifact by storage key.
	DeleteArtifact(ctx context.Context, storageKey string) error
}

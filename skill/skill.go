//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package skill provides the request types for skill invocations.
package skill

import (
	"context"
	"time"
)

// RunMode selects how the invocation is driven.
type RunMode string

// Run mode constants.
const (
	// ModeChat is a plain conversational run.
	ModeChat RunMode = "chat"
	// ModeWorkflow is a run executing on behalf of a workflow node.
	ModeWorkflow RunMode = "workflow"
	// ModePilot is a run executing one pilot step.
	ModePilot RunMode = "pilot"
)

// TargetType identifies what an invocation result is attached to.
type TargetType string

// Target type constants.
const (
	// TargetNone means the result is not attached to anything.
	TargetNone TargetType = ""
	// TargetCanvasNode attaches the result to a canvas node.
	TargetCanvasNode TargetType = "canvasNode"
)

// User identifies the requesting user.
type User struct {
	// UID is the user id.
	UID string `json:"uid"`
	// PreferredLocale is the user's preferred display locale, may be empty.
	PreferredLocale string `json:"preferredLocale,omitempty"`
}

// Image is an input image reference.
type Image struct {
	// URL is where the image can be fetched.
	URL string `json:"url"`
	// StorageKey is the stable storage key of the image.
	StorageKey string `json:"storageKey,omitempty"`
}

// ContextRef references a piece of context provided to the run.
type ContextRef struct {
	// Type is the context entity type (document, resource, selection...).
	Type string `json:"type"`
	// EntityID is the id of the referenced entity.
	EntityID string `json:"entityId"`
	// Metadata carries entity-specific extras.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Target is the optional canvas/workflow entity the result attaches to.
type Target struct {
	// Type is the target entity type.
	Type TargetType `json:"type"`
	// EntityID is the id of the target entity.
	EntityID string `json:"entityId"`
}

// ModelConfig selects the provider and model for the run.
type ModelConfig struct {
	// Provider is the model provider name.
	Provider string `json:"provider"`
	// Model is the model name.
	Model string `json:"model"`
	// MaxOutputTokens caps the completion length, 0 means provider default.
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

// HistoryResult is a prior invocation result included as conversation history.
type HistoryResult struct {
	// ResultID identifies the prior result.
	ResultID string `json:"resultId"`
	// Version is the version of the prior result.
	Version int `json:"version"`
	// Input is the user input of the prior turn.
	Input string `json:"input"`
	// Content is the assistant output of the prior turn.
	Content string `json:"content"`
	// CreatedAt orders history turns oldest-first.
	CreatedAt time.Time `json:"createdAt"`
}

// ToolsetRef selects a toolset for the run.
type ToolsetRef struct {
	// ID is the toolset id.
	ID string `json:"id"`
	// Tools optionally narrows the selection to specific tool names.
	Tools []string `json:"tools,omitempty"`
}

// ResolvedTool is one tool instance resolved for a run.
type ResolvedTool struct {
	// Name is the tool name, unique within the run.
	Name string `json:"name"`
	// ToolsetID is the toolset the tool was resolved from.
	ToolsetID string `json:"toolsetId"`
	// Description is the tool description handed to the runtime.
	Description string `json:"description,omitempty"`
}

// ToolsetResolver resolves toolset references into concrete tool instances.
// Credential resolution happens behind this interface.
type ToolsetResolver interface {
	// Resolve resolves the given toolset references for the user.
	Resolve(ctx context.Context, uid string, refs []ToolsetRef) ([]ResolvedTool, error)
}

// Request is the immutable input of one skill invocation.
type Request struct {
	// User is the requesting user.
	User User `json:"user"`
	// ResultID identifies the invocation attempt.
	ResultID string `json:"resultId"`
	// Version is the version of the invocation attempt.
	Version int `json:"version"`
	// SkillName names the skill to invoke.
	SkillName string `json:"skillName"`
	// Input is the user input text.
	Input string `json:"input"`
	// Images are the input images.
	Images []Image `json:"images,omitempty"`
	// Context references the entities provided as run context.
	Context []ContextRef `json:"context,omitempty"`
	// Target is the optional entity the result attaches to.
	Target *Target `json:"target,omitempty"`
	// Toolsets selects the toolsets available to the run.
	Toolsets []ToolsetRef `json:"toolsets,omitempty"`
	// Model selects the provider and model.
	Model ModelConfig `json:"model"`
	// History is the prior-result history, possibly with duplicates.
	History []HistoryResult `json:"history,omitempty"`
	// Mode selects how the invocation is driven.
	Mode RunMode `json:"mode,omitempty"`
	// Locale is the requested display locale, may be empty.
	Locale string `json:"locale,omitempty"`
	// WorkflowNodeID links the result to a workflow node, may be empty.
	WorkflowNodeID string `json:"workflowNodeId,omitempty"`
	// PilotStepID links the result to a pilot step, may be empty.
	PilotStepID string `json:"pilotStepId,omitempty"`
	// ParentResultID is the optional parent result id.
	ParentResultID string `json:"parentResultId,omitempty"`
}

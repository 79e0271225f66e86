//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/woyin/refly-sub002/artifact"
	"github.com/woyin/refly-sub002/event"
	"github.com/woyin/refly-sub002/store"
)

const fallbackDocName = "recovered-tool-results.md"

// buildFallbackDocument renders the tool call records of a failed run into a
// markdown document so the work already done by tools is not lost. Records
// without output still appear so the user can see what ran.
func buildFallbackDocument(records []*store.ToolCallResult) string {
	var sb strings.Builder
	sb.WriteString("# Recovered tool results\n\n")
	sb.WriteString("The run did not complete, but the following tool calls had already finished.\n")
	for _, record := range records {
		sb.WriteString(fmt.Sprintf("\n## %s\n\n", record.Name))
		sb.WriteString(fmt.Sprintf("- Status: %s\n", record.Status))
		if record.ToolsetID != "" {
			sb.WriteString(fmt.Sprintf("- Toolset: %s\n", record.ToolsetID))
		}
		if record.Input != "" {
			sb.WriteString(fmt.Sprintf("\n**Input**\n\n```json\n%s\n```\n", record.Input))
		}
		if record.Output != "" {
			sb.WriteString(fmt.Sprintf("\n**Output**\n\n```\n%s\n```\n", record.Output))
		}
		if record.ErrorMessage != "" {
			sb.WriteString(fmt.Sprintf("\n**Error**: %s\n", record.ErrorMessage))
		}
	}
	return sb.String()
}

// saveFallbackDocument persists the tool output of a failed run as a markdown
// artifact and returns a recoverable stream event pointing the user at it.
// It returns (nil, nil) when there is nothing worth saving.
func saveFallbackDocument(ctx context.Context, artifacts artifact.Service,
	resultID string, version int, uid string,
	records []*store.ToolCallResult) (*event.Event, error) {
	if artifacts == nil {
		return nil, nil
	}
	var completed []*store.ToolCallResult
	for _, record := range records {
		if record.Status == store.ToolCallCompleted && record.Output != "" {
			completed = append(completed, record)
		}
	}
	if len(completed) == 0 {
		return nil, nil
	}

	doc := buildFallbackDocument(completed)
	storageKey, err := artifacts.SaveArtifact(ctx,
		artifact.RunInfo{UID: uid, ResultID: resultID, Version: version},
		fallbackDocName,
		&artifact.Artifact{
			Data:     []byte(doc),
			MimeType: "text/markdown",
			Name:     fallbackDocName,
		})
	if err != nil {
		return nil, fmt.Errorf("save fallback document: %w", err)
	}

	notice := fmt.Sprintf(
		"\n\nThe run was interrupted, but the output of %d completed tool call(s) was saved to %q.",
		len(completed), fallbackDocName)
	out := event.New(resultID, version, event.TypeStream,
		event.WithStepName(defaultStepName),
		event.WithContent(notice, ""))
	out.StructuredData = map[string]any{
		"recoveredDocument": event.GeneratedFile{
			Name:       fallbackDocName,
			StorageKey: storageKey,
			MimeType:   "text/markdown",
		},
	}
	return out, nil
}

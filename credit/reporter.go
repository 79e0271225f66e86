//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

package credit

import (
	"context"
	"fmt"

	"github.com/woyin/refly-sub002/event"
	"github.com/woyin/refly-sub002/log"
	"github.com/woyin/refly-sub002/store"
)

// ReportJob carries everything the reporter needs to bill one finished run.
type ReportJob struct {
	// UID is the billed user.
	UID string
	// ResultID and Version identify the run.
	ResultID string
	Version  int
	// Usages is the token usage observed during the run, one item per
	// model turn, in order.
	Usages []event.Usage
	// Estimated marks Usages as derived from partial content.
	Estimated bool
	// ToolCalls is the tool call records of the run.
	ToolCalls []*store.ToolCallResult
	// MediaFiles is the files generated by successful tool calls.
	MediaFiles []event.GeneratedFile
}

// Reporter derives usage records from an aggregated run and hands them to
// the credit service. Token billing is authoritative: a requiresRecharge
// answer fails the report with ErrCreditExhausted. Tool and media billing
// are best-effort and only logged on failure; both behaviors are kept as
// observed upstream.
type Reporter struct {
	service Service
}

// NewReporter creates a new credit usage reporter.
func NewReporter(service Service) *Reporter {
	if service == nil {
		service = NewNoopService()
	}
	return &Reporter{service: service}
}

// Report bills one finished run. It must be invoked at most once per
// (resultID, version); the engine guarantees this via its finalize guard.
func (r *Reporter) Report(ctx context.Context, job *ReportJob) error {
	if err := r.reportTokens(ctx, job); err != nil {
		return err
	}
	r.reportTools(ctx, job)
	r.reportMedia(ctx, job)
	return nil
}

func (r *Reporter) reportTokens(ctx context.Context, job *ReportJob) error {
	if len(job.Usages) == 0 {
		return nil
	}
	items := make([]UsageItem, 0, len(job.Usages))
	for _, usage := range job.Usages {
		items = append(items, UsageItem{
			UID:       job.UID,
			ResultID:  job.ResultID,
			Version:   job.Version,
			Usage:     usage,
			Estimated: job.Estimated,
		})
	}
	requiresRecharge, err := r.service.SyncBatchTokenCreditUsage(ctx, items)
	if err != nil {
		return fmt.Errorf("sync token credit usage: %w", err)
	}
	if requiresRecharge {
		return ErrCreditExhausted
	}
	return nil
}

func (r *Reporter) reportTools(ctx context.Context, job *ReportJob) {
	calls := make(map[string]int)
	for _, record := range job.ToolCalls {
		if record.Status != store.ToolCallCompleted {
			continue
		}
		calls[record.ToolsetID]++
	}
	for toolsetID, count := range calls {
		err := r.service.SyncToolCreditUsage(ctx, &ToolUsageJob{
			UID:       job.UID,
			ResultID:  job.ResultID,
			Version:   job.Version,
			ToolsetID: toolsetID,
			Calls:     count,
		})
		if err != nil {
			log.Warnf("Tool credit billing failed for toolset %s (result %s): %v",
				toolsetID, job.ResultID, err)
		}
	}
}

func (r *Reporter) reportMedia(ctx context.Context, job *ReportJob) {
	media := make(map[string]int)
	for _, file := range job.MediaFiles {
		if file.MimeType == "" {
			continue
		}
		media[file.MimeType]++
	}
	for mimeType, count := range media {
		err := r.service.SyncMediaCreditUsage(ctx, &MediaUsageJob{
			UID:      job.UID,
			ResultID: job.ResultID,
			Version:  job.Version,
			MimeType: mimeType,
			Count:    count,
		})
		if err != nil {
			log.Warnf("Media credit billing failed for %s (result %s): %v",
				mimeType, job.ResultID, err)
		}
	}
}

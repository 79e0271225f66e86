//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

// Package credit provides the credit metering collaborator of the engine.
package credit

import (
	"context"
	"errors"

	"github.com/woyin/refly-sub002/event"
)

// ErrCreditExhausted is returned when billing reports that the user must
// recharge before further usage.
var ErrCreditExhausted = errors.New("credit: insufficient credit, recharge required")

// CheckResult is the pre-run credit admission decision.
type CheckResult struct {
	// CanUse reports whether the request may run.
	CanUse bool `json:"canUse"`
	// Message explains a negative decision.
	Message string `json:"message,omitempty"`
}

// UsageItem attributes one model turn's token usage to a run.
type UsageItem struct {
	UID      string      `json:"uid"`
	ResultID string      `json:"resultId"`
	Version  int         `json:"version"`
	Usage    event.Usage `json:"usage"`
	// Estimated marks usage derived from partial content rather than
	// reported by the provider.
	Estimated bool `json:"estimated,omitempty"`
}

// ToolUsageJob bills the tool calls of one run.
type ToolUsageJob struct {
	UID      string `json:"uid"`
	ResultID string `json:"resultId"`
	Version  int    `json:"version"`
	// ToolsetID is the toolset billed.
	ToolsetID string `json:"toolsetId"`
	// Calls is the number of completed calls against the toolset.
	Calls int `json:"calls"`
}

// MediaUsageJob bills media generated by one run.
type MediaUsageJob struct {
	UID      string `json:"uid"`
	ResultID string `json:"resultId"`
	Version  int    `json:"version"`
	// MimeType is the media type billed.
	MimeType string `json:"mimeType"`
	// Count is the number of generated media items.
	Count int `json:"count"`
}

// Service is the credit ledger collaborator. The deduction algorithm lives
// behind this interface.
type Service interface {
	// CheckRequestCreditUsage decides whether the request may run at all.
	CheckRequestCreditUsage(ctx context.Context, uid, provider, model string) (*CheckResult, error)

	// SyncBatchTokenCreditUsage bills a batch of token usage items. A true
	// requiresRecharge surfaces as a CreditExhausted failure of the run.
	SyncBatchTokenCreditUsage(ctx context.Context, items []UsageItem) (requiresRecharge bool, err error)

	// SyncToolCreditUsage bills tool usage. Failures are logged by the
	// reporter and never fail the run.
	SyncToolCreditUsage(ctx context.Context, job *ToolUsageJob) error

	// SyncMediaCreditUsage bills generated media. Failures are logged by
	// the reporter and never fail the run.
	SyncMediaCreditUsage(ctx context.Context, job *MediaUsageJob) error
}

// NoopService is a Service that admits everything and bills nothing.
type NoopService struct{}

// NewNoopService creates a new no-op credit service.
func NewNoopService() *NoopService {
	return &NoopService{}
}

// CheckRequestCreditUsage always admits the request.
func (*NoopService) CheckRequestCreditUsage(context.Context, string, string, string) (*CheckResult, error) {
	return &CheckResult{CanUse: true}, nil
}

// SyncBatchTokenCreditUsage accepts the batch without billing.
func (*NoopService) SyncBatchTokenCreditUsage(context.Context, []UsageItem) (bool, error) {
	return false, nil
}

// SyncToolCreditUsage accepts the job without billing.
func (*NoopService) SyncToolCreditUsage(context.Context, *ToolUsageJob) error {
	return nil
}

// SyncMediaCreditUsage accepts the job without billing.
func (*NoopService) SyncMediaCreditUsage(context.Context, *MediaUsageJob) error {
	return nil
}

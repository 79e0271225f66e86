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
	"errors"
	"strings"

	"github.com/woyin/refly-sub002/credit"
)

// Classified error type constants, persisted on ActionResult.ErrorType.
const (
	// ErrorTypeUserAbort is a cancellation requested by the user.
	ErrorTypeUserAbort = "userAbort"
	// ErrorTypeTimeout covers both idle and execution timeouts.
	ErrorTypeTimeout = "timeout"
	// ErrorTypeNetwork is a transport-level failure talking to the runtime.
	ErrorTypeNetwork = "networkError"
	// ErrorTypeTokenLimit is a model context/output token limit failure.
	ErrorTypeTokenLimit = "tokenLimitExceeded"
	// ErrorTypeCreditExhausted is an insufficient-credit failure.
	ErrorTypeCreditExhausted = "creditExhausted"
	// ErrorTypeToolExecution is a per-tool-call failure; by itself it never
	// fails the invocation.
	ErrorTypeToolExecution = "toolExecutionError"
	// ErrorTypeSystem is the catch-all failure type.
	ErrorTypeSystem = "systemError"
)

// Sentinel errors raised by the engine itself.
var (
	// ErrUserAborted is the cancellation reason for user-requested aborts.
	ErrUserAborted = errors.New("engine: invocation aborted by user")
	// ErrIdleTimeout is the cancellation reason when no output was
	// observed within the configured idle threshold.
	ErrIdleTimeout = errors.New("engine: no output within idle timeout")
	// ErrCreditNotAvailable is returned when the pre-run credit check
	// rejects the request.
	ErrCreditNotAvailable = errors.New("engine: request rejected by credit check")
)

// ClassifiedError is the outcome of classifying a stream-level failure.
type ClassifiedError struct {
	// Type is one of the ErrorType constants.
	Type string
	// Message is the original error message.
	Message string
}

// Abort reports whether the failure is a user cancellation.
func (c *ClassifiedError) Abort() bool {
	return c != nil && c.Type == ErrorTypeUserAbort
}

var creditPatterns = []string{
	"insufficient credit",
	"credit exhausted",
	"recharge required",
	"quota exceeded",
}

var abortPatterns = []string{
	"abort",
	"canceled",
	"cancelled",
}

var timeoutPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

var networkPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"eof",
}

var tokenLimitPatterns = []string{
	"token limit",
	"context length",
	"maximum context",
	"max tokens",
	"too many tokens",
}

// classifyError categorizes a caught failure into the error taxonomy.
// Credit-related messages take precedence over abort-pattern matching so a
// credit-triggered abort is never misreported as a user cancellation.
func classifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	if errors.Is(err, credit.ErrCreditExhausted) || errors.Is(err, ErrCreditNotAvailable) ||
		matchAny(lower, creditPatterns) {
		return &ClassifiedError{Type: ErrorTypeCreditExhausted, Message: msg}
	}
	if errors.Is(err, ErrUserAborted) || errors.Is(err, context.Canceled) ||
		matchAny(lower, abortPatterns) {
		return &ClassifiedError{Type: ErrorTypeUserAbort, Message: msg}
	}
	if errors.Is(err, ErrIdleTimeout) || errors.Is(err, context.DeadlineExceeded) ||
		matchAny(lower, timeoutPatterns) {
		return &ClassifiedError{Type: ErrorTypeTimeout, Message: msg}
	}
	if matchAny(lower, tokenLimitPatterns) {
		return &ClassifiedError{Type: ErrorTypeTokenLimit, Message: msg}
	}
	if matchAny(lower, networkPatterns) {
		return &ClassifiedError{Type: ErrorTypeNetwork, Message: msg}
	}
	return &ClassifiedError{Type: ErrorTypeSystem, Message: msg}
}

func matchAny(msg string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

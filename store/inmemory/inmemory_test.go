//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/woyin/refly-sub002/store"
)

func newResult(resultID string, version int) *store.ActionResult {
	return &store.ActionResult{
		ResultID:  resultID,
		Version:   version,
		UID:       "user-1",
		SkillName: "commonQnA",
		Status:    store.StatusWaiting,
	}
}

func TestActionResultLifecycle(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	require.NoError(t, svc.CreateActionResult(ctx, newResult("result-1", 1)))

	got, err := svc.GetActionResult(ctx, "result-1", 1)
	require.NoError(t, err)
	require.Equal(t, store.StatusWaiting, got.Status)

	require.NoError(t, svc.UpdateActionResultStatus(ctx, "result-1", 1, store.StatusExecuting))
	got, err = svc.GetActionResult(ctx, "result-1", 1)
	require.NoError(t, err)
	require.Equal(t, store.StatusExecuting, got.Status)

	// Regressions are rejected.
	err = svc.UpdateActionResultStatus(ctx, "result-1", 1, store.StatusWaiting)
	require.ErrorIs(t, err, store.ErrStatusRegression)
}

func TestGetActionResultNotFound(t *testing.T) {
	svc := NewService()
	_, err := svc.GetActionResult(context.Background(), "missing", 1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestVersionsAreIndependent(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	require.NoError(t, svc.CreateActionResult(ctx, newResult("result-1", 1)))
	require.NoError(t, svc.CreateActionResult(ctx, newResult("result-1", 2)))
	require.NoError(t, svc.UpdateActionResultStatus(ctx, "result-1", 1, store.StatusExecuting))

	got, err := svc.GetActionResult(ctx, "result-1", 2)
	require.NoError(t, err)
	require.Equal(t, store.StatusWaiting, got.Status)
}

func TestUpsertToolCallResult(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	require.NoError(t, svc.UpsertToolCallResult(ctx, &store.ToolCallResult{
		CallID: "call-1", ResultID: "result-1", Version: 1,
		Name: "web_search", Status: store.ToolCallExecuting,
	}))
	require.NoError(t, svc.UpsertToolCallResult(ctx, &store.ToolCallResult{
		CallID: "call-2", ResultID: "result-1", Version: 1,
		Name: "web_search", Status: store.ToolCallExecuting,
	}))
	// Terminal upsert replaces the executing record of the same call.
	require.NoError(t, svc.UpsertToolCallResult(ctx, &store.ToolCallResult{
		CallID: "call-1", ResultID: "result-1", Version: 1,
		Name: "web_search", Status: store.ToolCallCompleted, Output: "ok",
	}))

	records, err := svc.ListToolCallResults(ctx, "result-1", 1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "call-1", records[0].CallID)
	require.Equal(t, store.ToolCallCompleted, records[0].Status)
	require.Equal(t, store.ToolCallExecuting, records[1].Status)
}

func TestCreateMessagesSkipDuplicates(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	first := &store.Message{ID: "msg-1", ResultID: "result-1", Version: 1,
		Type: store.MessageTypeAssistant, Content: "hello"}
	require.NoError(t, svc.CreateMessages(ctx, []*store.Message{first}, false))

	dup := &store.Message{ID: "msg-1", ResultID: "result-1", Version: 1,
		Type: store.MessageTypeAssistant, Content: "changed"}
	require.NoError(t, svc.CreateMessages(ctx, []*store.Message{dup}, true))

	msgs := svc.ListMessages("result-1", 1)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Content)

	// Without skip, the write overwrites in place.
	require.NoError(t, svc.CreateMessages(ctx, []*store.Message{dup}, false))
	msgs = svc.ListMessages("result-1", 1)
	require.Len(t, msgs, 1)
	require.Equal(t, "changed", msgs[0].Content)
}

func TestFinalizeInvocation(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	require.NoError(t, svc.CreateActionResult(ctx, newResult("result-1", 1)))
	require.NoError(t, svc.UpdateActionResultStatus(ctx, "result-1", 1, store.StatusExecuting))

	fin := &store.Finalization{
		Result: &store.ActionResult{
			ResultID: "result-1", Version: 1, Status: store.StatusFinish,
		},
		Steps: []*store.Step{{ResultID: "result-1", Version: 1, Name: "answer", Content: "done"}},
		Messages: []*store.Message{{ID: "msg-1", ResultID: "result-1", Version: 1,
			Type: store.MessageTypeAssistant, Content: "done"}},
		SkipDuplicateMessages: true,
		WorkflowNode:          &store.WorkflowNodeUpdate{NodeID: "node-1", Status: "finish"},
		PilotStep:             &store.PilotStepUpdate{StepID: "pilot-1", Status: "finish"},
	}
	require.NoError(t, svc.FinalizeInvocation(ctx, fin))

	got, err := svc.GetActionResult(ctx, "result-1", 1)
	require.NoError(t, err)
	require.Equal(t, store.StatusFinish, got.Status)
	require.Len(t, svc.ListSteps("result-1", 1), 1)
	require.Len(t, svc.ListMessages("result-1", 1), 1)

	nodeStatus, ok := svc.WorkflowNodeStatus("node-1")
	require.True(t, ok)
	require.Equal(t, "finish", nodeStatus)
	pilotStatus, ok := svc.PilotStepStatus("pilot-1")
	require.True(t, ok)
	require.Equal(t, "finish", pilotStatus)
}

func TestFinalizeInvocationExactlyOnce(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	require.NoError(t, svc.CreateActionResult(ctx, newResult("result-1", 1)))
	fin := &store.Finalization{Result: &store.ActionResult{
		ResultID: "result-1", Version: 1, Status: store.StatusFinish,
	}}
	require.NoError(t, svc.FinalizeInvocation(ctx, fin))

	err := svc.FinalizeInvocation(ctx, fin)
	require.ErrorIs(t, err, store.ErrAlreadyFinalized)
}

func TestFinalizeInvocationRejectsNonTerminal(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	require.NoError(t, svc.CreateActionResult(ctx, newResult("result-1", 1)))
	err := svc.FinalizeInvocation(ctx, &store.Finalization{
		Result: &store.ActionResult{ResultID: "result-1", Version: 1, Status: store.StatusExecuting},
	})
	require.ErrorIs(t, err, store.ErrStatusRegression)
}

func TestFinalizeInvocationUnknownResult(t *testing.T) {
	svc := NewService()
	err := svc.FinalizeInvocation(context.Background(), &store.Finalization{
		Result: &store.ActionResult{ResultID: "missing", Version: 1, Status: store.StatusFailed},
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatusTransitions(t *testing.T) {
	require.True(t, store.StatusWaiting.CanTransition(store.StatusExecuting))
	require.True(t, store.StatusWaiting.CanTransition(store.StatusFailed))
	require.True(t, store.StatusExecuting.CanTransition(store.StatusFinish))
	require.False(t, store.StatusExecuting.CanTransition(store.StatusWaiting))
	require.False(t, store.StatusFinish.CanTransition(store.StatusFailed))
	require.True(t, store.StatusFinish.Terminal())
	require.False(t, store.StatusExecuting.Terminal())
}

//
// Tencent is pleased to support the open source community by making refly available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// refly is licensed under the Apache License Version 2.0.
//
//

package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	ev := New("result-1", 2, TypeStream,
		WithStepName("answer"),
		WithContent("hello", "thinking"))

	require.Equal(t, TypeStream, ev.Type)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, "result-1", ev.ResultID)
	require.Equal(t, 2, ev.Version)
	require.False(t, ev.Timestamp.IsZero())
	require.Equal(t, "answer", ev.StepName)
	require.Equal(t, "hello", ev.Content)
	require.Equal(t, "thinking", ev.ReasoningContent)
}

func TestNewEventIDsUnique(t *testing.T) {
	a := New("result-1", 1, TypeStream)
	b := New("result-1", 1, TypeStream)
	require.NotEqual(t, a.ID, b.ID)
}

func TestNewError(t *testing.T) {
	ev := NewError("result-1", 1, "systemError", "boom")
	require.Equal(t, TypeError, ev.Type)
	require.NotNil(t, ev.Error)
	require.Equal(t, "systemError", ev.Error.Type)
	require.Equal(t, "boom", ev.Error.Message)
}

func TestClone(t *testing.T) {
	ev := New("result-1", 1, TypeToolCallEnd,
		WithToolCall(&ToolCall{
			ID:    "call-1",
			Name:  "web_search",
			Files: []GeneratedFile{{Name: "a", StorageKey: "sk-a"}},
		}, "msg-1"),
		WithUsage(&Usage{InputTokens: 1}),
		WithStructuredData(map[string]any{"k": "v"}),
		WithLog("info", "hi"))

	clone := ev.Clone()
	require.Equal(t, ev.ID, clone.ID)

	// Mutating the clone must not reach the original.
	clone.ToolCall.Files[0].StorageKey = "mutated"
	clone.Usage.InputTokens = 99
	clone.StructuredData["k"] = "mutated"
	clone.Log.Message = "mutated"

	require.Equal(t, "sk-a", ev.ToolCall.Files[0].StorageKey)
	require.Equal(t, 1, ev.Usage.InputTokens)
	require.Equal(t, "v", ev.StructuredData["k"])
	require.Equal(t, "hi", ev.Log.Message)

	var nilEv *Event
	require.Nil(t, nilEv.Clone())
}

func TestIsOutput(t *testing.T) {
	outputs := []Type{TypeStream, TypeToolCallStart, TypeToolCallEnd,
		TypeToolCallError, TypeStructuredData, TypeLog}
	for _, typ := range outputs {
		require.True(t, New("r", 1, typ).IsOutput(), string(typ))
	}
	nonOutputs := []Type{TypeStart, TypeTokenUsage, TypeError, TypeEnd}
	for _, typ := range nonOutputs {
		require.False(t, New("r", 1, typ).IsOutput(), string(typ))
	}
	var nilEv *Event
	require.False(t, nilEv.IsOutput())
}

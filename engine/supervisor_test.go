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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/woyin/refly-sub002/abort"
	abortinmemory "github.com/woyin/refly-sub002/abort/inmemory"
)

func TestSupervisorPollsAbortFlag(t *testing.T) {
	flags := abortinmemory.NewFlagStore()
	token := abort.NewToken()
	sup := newSupervisor(token, flags, "result-1", 1, 10*time.Millisecond, 0)
	sup.Start(context.Background())
	defer sup.Stop()

	require.NoError(t, flags.RequestAbort(context.Background(), "result-1", 1))

	select {
	case <-token.Done():
	case <-time.After(time.Second):
		t.Fatal("token not cancelled after abort flag was set")
	}
	require.ErrorIs(t, token.Reason(), ErrUserAborted)
}

func TestSupervisorIdleTimeoutFires(t *testing.T) {
	flags := abortinmemory.NewFlagStore()
	token := abort.NewToken()
	sup := newSupervisor(token, flags, "result-1", 1, time.Minute, 30*time.Millisecond)
	sup.Start(context.Background())
	defer sup.Stop()

	select {
	case <-token.Done():
	case <-time.After(time.Second):
		t.Fatal("token not cancelled after idle threshold")
	}
	require.ErrorIs(t, token.Reason(), ErrIdleTimeout)
}

func TestSupervisorIdleTimeoutDisarmedByOutput(t *testing.T) {
	flags := abortinmemory.NewFlagStore()
	token := abort.NewToken()
	sup := newSupervisor(token, flags, "result-1", 1, time.Minute, 40*time.Millisecond)
	sup.Start(context.Background())
	defer sup.Stop()

	sup.NoteOutput()
	time.Sleep(80 * time.Millisecond)
	require.False(t, token.Cancelled())
}

func TestSupervisorIdleTimeoutDisabled(t *testing.T) {
	flags := abortinmemory.NewFlagStore()
	token := abort.NewToken()
	sup := newSupervisor(token, flags, "result-1", 1, time.Minute, 0)
	sup.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	require.False(t, token.Cancelled())
	sup.Stop()
}

func TestSupervisorStopIsIdempotent(t *testing.T) {
	flags := abortinmemory.NewFlagStore()
	token := abort.NewToken()
	sup := newSupervisor(token, flags, "result-1", 1, 10*time.Millisecond, 10*time.Millisecond)
	sup.Start(context.Background())
	sup.Stop()
	sup.Stop()
}

func TestSupervisorStopsOnTokenCancel(t *testing.T) {
	flags := abortinmemory.NewFlagStore()
	token := abort.NewToken()
	sup := newSupervisor(token, flags, "result-1", 1, 10*time.Millisecond, 0)
	sup.Start(context.Background())

	token.Cancel(errors.New("external cancel"))
	// Stop must return promptly because both loops exit on token.Done.
	done := make(chan struct{})
	go func() {
		sup.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop after token cancellation")
	}
}

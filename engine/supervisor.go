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
	"sync"
	"sync/atomic"
	"time"

	"github.com/woyin/refly-sub002/abort"
	"github.com/woyin/refly-sub002/log"
)

// supervisor owns the two background checks of one invocation: the
// cross-process abort poll and the stream-idle watchdog. Both are
// cooperative; they cancel the run's token and the main loop reacts at its
// next dispatch boundary. Stop is idempotent and must be called on every
// exit path so no timer can outlive the run.
type supervisor struct {
	token *abort.Token
	flags abort.FlagStore

	resultID string
	version  int

	pollInterval time.Duration
	idleTimeout  time.Duration

	outputSeen atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newSupervisor(token *abort.Token, flags abort.FlagStore, resultID string, version int,
	pollInterval, idleTimeout time.Duration) *supervisor {
	return &supervisor{
		token:        token,
		flags:        flags,
		resultID:     resultID,
		version:      version,
		pollInterval: pollInterval,
		idleTimeout:  idleTimeout,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the background checks. The idle watchdog is disabled
// entirely when the configured threshold is not positive.
func (s *supervisor) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.pollAbort(ctx)

	if s.idleTimeout > 0 {
		s.wg.Add(1)
		go s.watchIdle()
	}
}

// NoteOutput records that an output event has been observed. The idle
// watchdog self-disables after the first observation.
func (s *supervisor) NoteOutput() {
	s.outputSeen.Store(true)
}

// Stop stops both checks exactly once and waits for them to exit.
func (s *supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// pollAbort queries the durable abort flag at a fixed interval. The run may
// execute on a different node than the one that received the cancel request,
// so the in-process token alone is not enough.
func (s *supervisor) pollAbort(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.token.Done():
			return
		case <-ticker.C:
			requested, err := s.flags.IsAbortRequested(ctx, s.resultID, s.version)
			if err != nil {
				log.Warnf("Abort flag check failed for result %s v%d: %v",
					s.resultID, s.version, err)
				continue
			}
			if requested {
				log.Infof("Abort flag set for result %s v%d, cancelling run",
					s.resultID, s.version)
				s.token.Cancel(ErrUserAborted)
				return
			}
		}
	}
}

// watchIdle cancels the run when no output event arrives within the idle
// threshold. Once any output has been observed the watchdog exits: a
// different execution-duration policy applies from then on.
func (s *supervisor) watchIdle() {
	defer s.wg.Done()

	timer := time.NewTimer(s.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.token.Done():
			return
		case <-timer.C:
			if s.outputSeen.Load() {
				return
			}
			s.token.Cancel(fmt.Errorf("%w: no output within %v",
				ErrIdleTimeout, s.idleTimeout))
			return
		}
	}
}

// SPDX-FileCopyrightText: 2024 The censys-oss authors
// SPDX-License-Identifier: MIT

package runtime

import (
	"context"
	"testing"
	"time"
)

func TestEventLoopRuntimePostAndSubmit(t *testing.T) {
	rt := NewEventLoopRuntime()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go rt.Run(ctx)

	done := make(chan DomainTag, 1)
	rt.SubmitBlocking(func() {
		rt.PostToEventLoop(func() {
			done <- rt.CurrentDomainTag()
		}, "req-7")
	})

	select {
	case got := <-done:
		if got != "req-7" {
			t.Fatalf("domain tag = %v, want req-7", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted job to run")
	}
}

func TestEventLoopRuntimeStopsOnContextCancel(t *testing.T) {
	rt := NewEventLoopRuntime()
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(stopped)
	}()

	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

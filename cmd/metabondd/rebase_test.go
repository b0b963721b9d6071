package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingRebaser struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingRebaser) Rebase(context.Context) (bool, error) {
	c.calls.Add(1)
	if c.fail {
		return false, errors.New("boom")
	}
	return true, nil
}

func TestRebaseLoopTicksUntilCancelled(t *testing.T) {
	for _, fail := range []bool{false, true} {
		r := &countingRebaser{fail: fail}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			rebaseLoop(ctx, r, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
			close(done)
		}()

		deadline := time.After(2 * time.Second)
		for r.calls.Load() < 3 {
			select {
			case <-deadline:
				t.Fatalf("expected repeated rebases, got %d", r.calls.Load())
			case <-time.After(time.Millisecond):
			}
		}
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("rebase loop did not stop after cancel")
		}
	}
}

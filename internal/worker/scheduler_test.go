package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingJob struct {
	calls atomic.Int32
	err   error
}

func (j *countingJob) Run(ctx context.Context) error {
	j.calls.Add(1)
	return j.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsImmediatelyAndOnInterval(t *testing.T) {
	fast := &countingJob{}
	failing := &countingJob{err: errors.New("boom")}
	s := NewScheduler(newTestLogger(),
		Task{Name: "fast", Interval: 10 * time.Millisecond, Job: fast},
		Task{Name: "failing", Interval: time.Hour, Job: failing},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for fast.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("fast job calls = %d, want >= 3", fast.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	if failing.calls.Load() != 1 {
		t.Errorf("failing job calls = %d, want 1 (run at startup only)", failing.calls.Load())
	}
}

func TestScheduler_SkipsInvalidInterval(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(newTestLogger(), Task{Name: "disabled", Interval: 0, Job: job})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)

	if job.calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", job.calls.Load())
	}
}

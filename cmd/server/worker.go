package main

import (
	"context"
	"log/slog"
	"time"
)

// stopGrace is added to the grader timeout so the attempt in flight can
// finish its grading call after a shutdown signal.
const stopGrace = 10 * time.Second

type worker interface {
	Run(ctx context.Context) error
	Stop()
}

// runWorker runs w until ctx is done, then asks it to stop. w keeps a live
// context for up to grace so it can finish the work in hand; after that its
// context is cancelled.
func runWorker(ctx context.Context, w worker, grace time.Duration) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	w.Stop()
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		slog.Warn("worker did not stop in time, cancelling", "grace", grace)
		cancel()
		return <-done
	}
}

package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/p-n-ai/pai-quiz/internal/platform/metrics"
)

const (
	DefaultBatchSize    = 10
	DefaultPollInterval = 5 * time.Second

	maxErrorLength = 500
)

// Clock abstracts time for the orchestrator loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now().UTC() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Orchestrator drives pending attempts through grading, one batch per cycle.
type Orchestrator struct {
	store     AttemptStore
	grader    Grader
	clock     Clock
	metrics   *metrics.Metrics
	batchSize int
	interval  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates an orchestrator over store using grader.
func NewOrchestrator(store AttemptStore, grader Grader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		grader:    grader,
		clock:     realClock{},
		batchSize: DefaultBatchSize,
		interval:  DefaultPollInterval,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stop asks Run to return. The attempt being graded is finished first.
// Safe to call more than once.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
}

func (o *Orchestrator) stopped() bool {
	select {
	case <-o.stop:
		return true
	default:
		return false
	}
}

// Run processes batches until Stop is called or ctx is done. Cycle errors
// are logged and the loop keeps going.
func (o *Orchestrator) Run(ctx context.Context) error {
	slog.Info("grading orchestrator started", "batch_size", o.batchSize, "interval", o.interval)
	defer slog.Info("grading orchestrator stopped")

	for {
		if o.stopped() || ctx.Err() != nil {
			return nil
		}
		if _, err := o.RunOnce(ctx); err != nil {
			slog.Error("grading cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-o.stop:
			return nil
		case <-o.clock.After(o.interval):
		}
	}
}

// RunOnce grades up to one batch of pending attempts, oldest first, and
// returns how many reached a terminal state.
func (o *Orchestrator) RunOnce(ctx context.Context) (int, error) {
	cycleID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "grading.RunOnce")
	defer span.End()
	span.SetAttributes(attribute.String("cycle_id", cycleID))

	pending, err := o.store.ListPending(ctx, o.batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("listing pending attempts: %w", err)
	}
	o.metrics.BatchSize(len(pending))
	if len(pending) == 0 {
		return 0, nil
	}
	slog.Info("grading batch", "cycle_id", cycleID, "attempts", len(pending))

	done := 0
	for i := range pending {
		if o.stopped() || ctx.Err() != nil {
			slog.Info("grading batch interrupted", "cycle_id", cycleID, "remaining", len(pending)-i)
			break
		}
		if o.process(ctx, cycleID, &pending[i]) {
			done++
		}
	}
	return done, nil
}

// process grades one attempt. It reports whether the attempt was claimed
// and moved to a terminal state.
func (o *Orchestrator) process(ctx context.Context, cycleID string, a *Attempt) bool {
	log := slog.With("cycle_id", cycleID, "attempt_id", a.ID, "topic_id", a.TopicID)

	claimed, err := o.store.MarkProcessing(ctx, a.ID, o.clock.Now())
	if err != nil {
		log.Error("claiming attempt failed", "error", err)
		return false
	}
	if !claimed {
		log.Debug("attempt already claimed elsewhere")
		return false
	}
	a.Status = StatusProcessing

	// Terminal writes must land even when ctx is being cancelled.
	writeCtx := context.WithoutCancel(ctx)

	if err := o.grade(ctx, a); err != nil {
		reason := failureReason(err)
		log.Warn("grading attempt failed", "reason", reason, "error", err)
		if err := o.store.Fail(writeCtx, a.ID, reason, o.clock.Now()); err != nil {
			log.Error("persisting grading failure failed", "error", err)
			return false
		}
		o.metrics.AttemptFinished(StatusFailed.String())
		return true
	}

	a.Status = StatusCompleted
	a.GradingError = nil
	a.LastUpdatedAt = o.clock.Now()
	if err := o.store.Complete(writeCtx, a); err != nil {
		log.Error("persisting graded attempt failed", "error", err)
		return false
	}
	o.metrics.AttemptFinished(StatusCompleted.String())
	log.Info("attempt graded", "score_percent", a.ScorePercent)
	return true
}

// grade fills a's ResultJSON and ScorePercent from the grader's scores.
func (o *Orchestrator) grade(ctx context.Context, a *Attempt) error {
	details, err := DecodeDetails(a.ResultJSON)
	if err != nil {
		return err
	}

	scores := o.grader.Grade(ctx, a.Topic, Items(details))
	if len(scores) == 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrNoScores, ctxErr)
		}
		return ErrNoScores
	}

	raw, err := EncodeDetails(MergeScores(details, scores))
	if err != nil {
		return err
	}
	a.ResultJSON = raw
	a.ScorePercent = MeanScore(scores)
	return nil
}

// failureReason renders err as "Kind: message" for the attempt row.
func failureReason(err error) string {
	var kind string
	switch {
	case errors.Is(err, context.Canceled):
		kind = "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		kind = "Timeout"
	case errors.Is(err, ErrAttemptDataCorrupt):
		kind = "AttemptDataCorrupt"
	case errors.Is(err, ErrNoScores):
		kind = "GraderUnavailable"
	default:
		kind = "GradingError"
	}
	return truncateRunes(kind+": "+err.Error(), maxErrorLength)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

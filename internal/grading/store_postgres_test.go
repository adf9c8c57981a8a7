package grading_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/content"
	"github.com/p-n-ai/pai-quiz/internal/grading"
	"github.com/p-n-ai/pai-quiz/internal/platform/database/databasetest"
	"github.com/p-n-ai/pai-quiz/internal/quiz"
)

func TestNewPostgresAttemptStore_NilPool(t *testing.T) {
	if _, err := grading.NewPostgresAttemptStore(nil); err == nil {
		t.Fatal("NewPostgresAttemptStore(nil) should return error")
	}
}

func TestPostgresAttemptStore(t *testing.T) {
	db := databasetest.New(t)
	topics, err := content.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatal(err)
	}
	store, err := grading.NewPostgresAttemptStore(db.Pool)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	topic := &content.Topic{Title: "essay", FileName: "lit/essay.txt", Type: quiz.ModeOpen}
	if err := topics.CreateTopic(ctx, topic); err != nil {
		t.Fatal(err)
	}

	var created []int64
	for i := 3; i > 0; i-- {
		a, err := grading.NewAttempt("u1", *topic, []grading.ResultDetail{{Question: "Q", Answer: "A"}},
			epoch.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		if err := store.Create(ctx, &a); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		created = append(created, a.ID)
	}

	pending, err := store.ListPending(ctx, 2)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 2 || pending[0].ID != created[2] || pending[1].ID != created[1] {
		t.Fatalf("ListPending() ids = %v, want oldest two", ids(pending))
	}
	if pending[0].Topic == nil || pending[0].Topic.FileName != "lit/essay.txt" {
		t.Errorf("joined topic = %+v", pending[0].Topic)
	}

	if ok, err := store.MarkProcessing(ctx, created[2], epoch); !ok || err != nil {
		t.Fatalf("MarkProcessing() = %v, %v", ok, err)
	}
	if ok, _ := store.MarkProcessing(ctx, created[2], epoch); ok {
		t.Error("second MarkProcessing() should not claim")
	}

	score := 87.5
	done := &grading.Attempt{ID: created[2], ResultJSON: `[{"Question":"Q","Answer":"A","Correct":"","ScorePercent":87.5}]`, ScorePercent: &score, LastUpdatedAt: epoch}
	if err := store.Complete(ctx, done); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	got, err := store.Get(ctx, created[2])
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != grading.StatusCompleted || got.ScorePercent == nil || *got.ScorePercent != 87.5 || got.GradingError != nil {
		t.Errorf("completed attempt = %+v", got)
	}

	if err := store.Fail(ctx, created[1], "GraderUnavailable: grader returned no scores", epoch); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if err := store.Requeue(ctx, created[1], epoch); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	if err := store.Requeue(ctx, created[2], epoch); err == nil {
		t.Error("Requeue() of a completed attempt should fail")
	}
	if _, err := store.Get(ctx, 12345); !errors.Is(err, grading.ErrAttemptNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrAttemptNotFound", err)
	}
}

func TestPostgresAttemptStore_Orchestrated(t *testing.T) {
	db := databasetest.New(t)
	topics, _ := content.NewPostgresStore(db.Pool)
	store, _ := grading.NewPostgresAttemptStore(db.Pool)
	ctx := context.Background()

	topic := &content.Topic{Title: "essay", FileName: "essay.txt", Type: quiz.ModeOpen}
	topics.CreateTopic(ctx, topic)

	a, _ := grading.NewAttempt("u1", *topic, []grading.ResultDetail{
		{Question: "Q1", Answer: "A1"}, {Question: "Q2", Answer: "A2"}, {Question: "Q3", Answer: "A3"},
	}, epoch)
	store.Create(ctx, &a)

	o := grading.NewOrchestrator(store, fixed(f(85), nil, f(90)))
	if n, err := o.RunOnce(ctx); n != 1 || err != nil {
		t.Fatalf("RunOnce() = %d, %v", n, err)
	}

	got, _ := store.Get(ctx, a.ID)
	if got.Status != grading.StatusCompleted || got.ScorePercent == nil || *got.ScorePercent != 87.5 {
		t.Errorf("attempt = %+v, want completed at 87.5", got)
	}
}

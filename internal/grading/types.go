// Package grading scores free-text answers of open quizzes in the background
// by asking an external language model and storing the outcome on the attempt.
package grading

import (
	"errors"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/content"
	"github.com/p-n-ai/pai-quiz/internal/quiz"
)

var (
	// ErrAttemptNotFound is returned when no attempt matches a lookup.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptDataCorrupt marks an attempt whose stored answers cannot be graded.
	ErrAttemptDataCorrupt = errors.New("attempt result data is corrupt")
	// ErrNoScores means the grader was disabled, unconfigured or failed.
	ErrNoScores = errors.New("grader returned no scores")
)

// Status is the grading state of an attempt. Values are persisted.
type Status int

const (
	StatusNotRequired Status = iota
	StatusPending
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotRequired:
		return "not_required"
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status can no longer change on its own.
func (s Status) Terminal() bool {
	return s == StatusNotRequired || s == StatusCompleted || s == StatusFailed
}

// Attempt is one user's run through a topic.
type Attempt struct {
	ID             int64          `json:"id"`
	UserID         string         `json:"user_id"`
	TopicID        int64          `json:"topic_id"`
	Topic          *content.Topic `json:"topic,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	TotalQuestions int            `json:"total_questions"`
	CorrectAnswers *int           `json:"correct_answers,omitempty"`
	ScorePercent   *float64       `json:"score_percent,omitempty"`
	ResultJSON     string         `json:"result_json,omitempty"`
	Status         Status         `json:"grading_status"`
	LastUpdatedAt  time.Time      `json:"last_updated_at"`
	GradingError   *string        `json:"grading_error,omitempty"`
}

// NewAttempt prepares an attempt for storage. Open topics are queued for
// grading; other modes never need it.
func NewAttempt(userID string, topic content.Topic, details []ResultDetail, startedAt time.Time) (Attempt, error) {
	raw, err := EncodeDetails(details)
	if err != nil {
		return Attempt{}, err
	}
	status := StatusNotRequired
	if topic.Type == quiz.ModeOpen {
		status = StatusPending
	}
	return Attempt{
		UserID:         userID,
		TopicID:        topic.ID,
		StartedAt:      startedAt,
		TotalQuestions: len(details),
		ResultJSON:     raw,
		Status:         status,
		LastUpdatedAt:  startedAt,
	}, nil
}

// ResultDetail is one answered question inside an attempt's result JSON.
// The JSON keys are part of the stored format.
type ResultDetail struct {
	Question     string   `json:"Question"`
	Answer       string   `json:"Answer"`
	Correct      string   `json:"Correct"`
	ScorePercent *float64 `json:"ScorePercent,omitempty"`
}

// Item is what the grader sees for one question. Position is the only link
// between an item and its score.
type Item struct {
	Question      string
	StudentAnswer string
	CorrectAnswer string
}

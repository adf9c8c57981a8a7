// Package quiz parses plain-text quiz definitions.
//
// A quiz file optionally starts with a MODE header, followed by question
// blocks:
//
//	MODE: Test
//
//	Q: How much is 2+2?
//	3
//	*4
//	5
//
// Open quizzes may end with a "---" separator and an answer key
// ("ОТВЕТЫ" / "Ответы") made of numbered lines.
package quiz

import "strings"

// Mode is the declared kind of a quiz. The numeric values are persisted.
type Mode int

const (
	ModeTest Mode = iota
	ModeOpen
	ModeSelfStudy
)

func (m Mode) String() string {
	switch m {
	case ModeTest:
		return "test"
	case ModeOpen:
		return "open"
	case ModeSelfStudy:
		return "selfstudy"
	default:
		return "unknown"
	}
}

// ParseMode maps a MODE header value to a Mode. Unrecognized values are Test.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return ModeOpen
	case "self", "selfstudy":
		return ModeSelfStudy
	default:
		return ModeTest
	}
}

// Definition is the parsed form of one quiz file.
type Definition struct {
	Mode      Mode
	Questions []Question
}

// Question is a single quiz question.
// Options are only filled in Test mode, CorrectAnswer only in Open mode.
type Question struct {
	Text          string
	Options       []AnswerOption
	CorrectAnswer string
}

// AnswerOption is one choice of a Test-mode question.
type AnswerOption struct {
	Text      string
	IsCorrect bool
}

// IsMultiSelect reports whether more than one option is marked correct.
func (q Question) IsMultiSelect() bool {
	n := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			n++
		}
	}
	return n > 1
}

package grading

import (
	"encoding/json"
	"log/slog"
	"regexp"
)

// scoreArray finds the first bracketed run of numbers. A leading minus is
// accepted so that negative scores clamp to zero instead of being skipped.
var scoreArray = regexp.MustCompile(`\[[-\d\s,.]+\]`)

// ExtractScores pulls a score list out of free-form model output. The result
// has exactly expected entries, each clamped to [0, 100] or nil when the
// model gave fewer scores. No array or an unparsable one yields nil.
func ExtractScores(text string, expected int) []*float64 {
	match := scoreArray.FindString(text)
	if match == "" {
		slog.Warn("no score array in grader response", "text", truncate(text, 200))
		return nil
	}

	var parsed []float64
	if err := json.Unmarshal([]byte(match), &parsed); err != nil || len(parsed) == 0 {
		slog.Warn("unparsable score array in grader response", "array", match, "error", err)
		return nil
	}

	if len(parsed) != expected {
		slog.Warn("score count mismatch", "expected", expected, "got", len(parsed))
	}

	scores := make([]*float64, expected)
	for i := range scores {
		if i < len(parsed) {
			v := min(max(parsed[i], 0), 100)
			scores[i] = &v
		}
	}
	return scores
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

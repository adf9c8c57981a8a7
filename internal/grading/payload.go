package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const resultSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "properties": {
      "Question":     {"type": ["string", "null"]},
      "Answer":       {"type": ["string", "null"]},
      "Correct":      {"type": ["string", "null"]},
      "ScorePercent": {"type": ["number", "null"]}
    }
  }
}`

var resultSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(resultSchemaJSON))
})

// DecodeDetails validates and parses an attempt's result JSON. Missing
// fields become empty strings. Any problem wraps ErrAttemptDataCorrupt.
func DecodeDetails(raw string) ([]ResultDetail, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: result JSON is empty", ErrAttemptDataCorrupt)
	}

	schema, err := resultSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling result schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttemptDataCorrupt, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrAttemptDataCorrupt, strings.Join(msgs, "; "))
	}

	var details []ResultDetail
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttemptDataCorrupt, err)
	}
	return details, nil
}

// EncodeDetails serializes details without HTML escaping, keeping
// non-ASCII answers readable in the database.
func EncodeDetails(details []ResultDetail) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(details); err != nil {
		return "", fmt.Errorf("encoding result details: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Items converts details into grader input, preserving order.
func Items(details []ResultDetail) []Item {
	items := make([]Item, len(details))
	for i, d := range details {
		items[i] = Item{Question: d.Question, StudentAnswer: d.Answer, CorrectAnswer: d.Correct}
	}
	return items
}

// MergeScores writes scores into details by position. A nil or missing
// score clears that detail's score. Values are rounded to two decimals.
func MergeScores(details []ResultDetail, scores []*float64) []ResultDetail {
	out := make([]ResultDetail, len(details))
	for i, d := range details {
		d.ScorePercent = nil
		if i < len(scores) && scores[i] != nil {
			v := round2(*scores[i])
			d.ScorePercent = &v
		}
		out[i] = d
	}
	return out
}

// MeanScore averages the non-nil scores, rounded to two decimals.
// It returns nil when no score is present.
func MeanScore(scores []*float64) *float64 {
	var sum float64
	n := 0
	for _, s := range scores {
		if s != nil {
			sum += *s
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := round2(sum / float64(n))
	return &mean
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

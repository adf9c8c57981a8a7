package quiz

import (
	"fmt"
	"strings"
)

// Format renders a Definition in the quiz file grammar. Parse(Format(d))
// yields the same questions, options and answer key as d, provided no text
// itself begins with a marker the grammar reserves.
func Format(def Definition) string {
	var b strings.Builder

	fmt.Fprintf(&b, "MODE: %s\n", formatMode(def.Mode))

	for _, q := range def.Questions {
		fmt.Fprintf(&b, "\nQ: %s\n", q.Text)
		if def.Mode != ModeTest {
			continue
		}
		for _, o := range q.Options {
			if o.IsCorrect {
				b.WriteString(correctMarker)
			}
			b.WriteString(o.Text)
			b.WriteByte('\n')
		}
	}

	if def.Mode == ModeOpen && hasAnswerKey(def.Questions) {
		fmt.Fprintf(&b, "\n%s\n%s\n", answerSeparator, answerKeyHeaders[0])
		for i, q := range def.Questions {
			if q.CorrectAnswer != "" {
				fmt.Fprintf(&b, "%d) %s\n", i+1, q.CorrectAnswer)
			}
		}
	}
	return b.String()
}

func formatMode(m Mode) string {
	switch m {
	case ModeOpen:
		return "Open"
	case ModeSelfStudy:
		return "Self"
	default:
		return "Test"
	}
}

func hasAnswerKey(questions []Question) bool {
	for _, q := range questions {
		if q.CorrectAnswer != "" {
			return true
		}
	}
	return false
}

package quiz

import (
	"strconv"
	"strings"
)

const (
	modePrefix      = "mode:"
	questionPrefix  = "q:"
	correctMarker   = "*"
	answerSeparator = "---"
)

var answerKeyHeaders = []string{"ОТВЕТЫ", "Ответы"}

// Parse converts raw quiz text into a Definition. It never fails: malformed
// lines are skipped and questions with empty text are dropped.
func Parse(text string) Definition {
	text = strings.TrimPrefix(text, "\uFEFF")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}

	p := &parser{lines: lines}
	def := Definition{Mode: p.parseMode()}
	def.Questions = p.parseQuestions(def.Mode)

	if def.Mode == ModeOpen && len(def.Questions) > 0 {
		p.parseAnswerKey(def.Questions)
	}
	return def
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) done() bool { return p.pos >= len(p.lines) }

func (p *parser) line() string { return p.lines[p.pos] }

func (p *parser) skipBlank() {
	for !p.done() && isBlank(p.line()) {
		p.pos++
	}
}

func (p *parser) parseMode() Mode {
	p.skipBlank()
	if p.done() || !hasPrefixFold(p.line(), modePrefix) {
		return ModeTest
	}
	mode := ParseMode(p.line()[len(modePrefix):])
	p.pos++
	return mode
}

func (p *parser) parseQuestions(mode Mode) []Question {
	var questions []Question
	for {
		p.skipBlank()
		if p.done() {
			break
		}
		if mode == ModeOpen && strings.HasPrefix(strings.TrimSpace(p.line()), answerSeparator) {
			break
		}
		if !hasPrefixFold(p.line(), questionPrefix) {
			p.pos++
			continue
		}

		q := Question{Text: strings.Trim(p.line()[len(questionPrefix):], ": \t")}
		p.pos++

		for !p.done() && !isBlank(p.line()) && !hasPrefixFold(p.line(), questionPrefix) {
			if mode == ModeTest {
				if opt, ok := parseOption(p.line()); ok {
					q.Options = append(q.Options, opt)
				}
			}
			p.pos++
		}

		if strings.TrimSpace(q.Text) != "" {
			questions = append(questions, q)
		}
	}
	return questions
}

func parseOption(line string) (AnswerOption, bool) {
	opt := AnswerOption{Text: line}
	if strings.HasPrefix(line, correctMarker) {
		opt.IsCorrect = true
		opt.Text = strings.TrimLeft(line[len(correctMarker):], " \t")
	}
	if isBlank(opt.Text) {
		return AnswerOption{}, false
	}
	return opt, true
}

// parseAnswerKey fills CorrectAnswer from the numbered section that follows
// the "---" separator. Unknown indices are ignored and later lines win.
func (p *parser) parseAnswerKey(questions []Question) {
	for !p.done() && !strings.HasPrefix(strings.TrimSpace(p.line()), answerSeparator) {
		p.pos++
	}
	if p.done() {
		return
	}
	p.pos++
	p.skipBlank()
	if p.done() || !isAnswerKeyHeader(strings.TrimSpace(p.line())) {
		return
	}
	p.pos++

	answers := make(map[int]string)
	for ; !p.done(); p.pos++ {
		n, answer, ok := parseAnswerLine(strings.TrimSpace(p.line()))
		if ok {
			answers[n] = answer
		}
	}

	for i := range questions {
		if a, ok := answers[i+1]; ok {
			questions[i].CorrectAnswer = a
		}
	}
}

// parseAnswerLine splits "<n>) answer" style lines.
func parseAnswerLine(line string) (int, string, bool) {
	end := 0
	for end < len(line) && (isDigit(line[end]) || line[end] == '.' || line[end] == ')') {
		end++
	}
	if end == 0 {
		return 0, "", false
	}
	n, err := strconv.Atoi(strings.TrimRight(line[:end], ".) \t"))
	if err != nil {
		return 0, "", false
	}
	answer := strings.TrimLeft(line[end:], ".) \t:")
	if answer == "" {
		return 0, "", false
	}
	return n, answer, true
}

func isAnswerKeyHeader(line string) bool {
	for _, h := range answerKeyHeaders {
		if strings.HasPrefix(line, h) {
			return true
		}
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

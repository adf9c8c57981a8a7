package grading

import (
	"fmt"
	"strings"

	"github.com/p-n-ai/pai-quiz/internal/ai"
	"github.com/p-n-ai/pai-quiz/internal/content"
)

const systemPrompt = `Ты — эксперт по оценке учебных ответов. Оцени каждый ответ ученика по шкале от 0 до 100, где 100 — полностью верный и исчерпывающий ответ, а 0 — ответ отсутствует или полностью неверен.
Учитывай эталонный ответ, если он указан, но засчитывай и верные ответы, сформулированные иначе.
Верни ТОЛЬКО JSON-массив чисел, например: [85, 90, 70, 0]. Количество чисел должно совпадать с количеством вопросов, порядок — тот же. Никаких пояснений.`

const noReference = "—"

// buildMessages renders the grading conversation for one attempt.
func buildMessages(topic *content.Topic, items []Item) []ai.Message {
	return []ai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt(topic, items)},
	}
}

func userPrompt(topic *content.Topic, items []Item) string {
	var category, title, file string
	if topic != nil {
		category, title, file = topic.Category(), topic.Title, topic.FileName
	}

	var b strings.Builder
	b.WriteString("Контекст:\n")
	fmt.Fprintf(&b, "- Предмет/категория: %s\n", category)
	fmt.Fprintf(&b, "- Тема: %s\n", title)
	fmt.Fprintf(&b, "- Файл: %s\n\n", file)
	b.WriteString("Вопросы и ответы:\n\n")

	for i, it := range items {
		ref := strings.TrimSpace(it.CorrectAnswer)
		if ref == "" {
			ref = noReference
		}
		fmt.Fprintf(&b, "=== Вопрос %d ===\n", i+1)
		fmt.Fprintf(&b, "Вопрос: %s\n", it.Question)
		fmt.Fprintf(&b, "Ответ ученика: %s\n", it.StudentAnswer)
		fmt.Fprintf(&b, "Эталон: %s\n\n", ref)
	}

	b.WriteString("Верни ТОЛЬКО JSON-массив чисел в том же порядке.")
	return b.String()
}

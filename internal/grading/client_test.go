package grading

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/ai"
	"github.com/p-n-ai/pai-quiz/internal/content"
	"github.com/p-n-ai/pai-quiz/internal/platform/metrics"
)

func assertMetric(t *testing.T, m *metrics.Metrics, line string) {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), line) {
		t.Errorf("metrics output missing %q", line)
	}
}

var twoItems = []Item{
	{Question: "Q1", StudentAnswer: "A1", CorrectAnswer: "C1"},
	{Question: "Q2", StudentAnswer: "A2"},
}

func TestNewClient_Providers(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{"", "qwen", false},
		{"qwen", "qwen", false},
		{"QWEN", "qwen", false},
		{"openrouter", "openrouter", false},
		{"openai", "openai", false},
		{"gemini", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := NewClient(ClientConfig{Provider: tt.provider})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && c.provider.Name() != tt.wantName {
				t.Errorf("provider = %q, want %q", c.provider.Name(), tt.wantName)
			}
		})
	}
}

func TestClient_Grade_NotReady(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{"disabled", ClientConfig{Enabled: false, APIKey: "k"}},
		{"no key", ClientConfig{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := ai.NewMockProvider("[100, 100]")
			c, err := NewClient(tt.cfg, WithProvider(mock))
			if err != nil {
				t.Fatal(err)
			}
			if got := c.Grade(context.Background(), nil, twoItems); len(got) != 0 {
				t.Errorf("Grade() = %v, want empty", got)
			}
			if mock.Calls != 0 {
				t.Errorf("provider called %d times, want 0", mock.Calls)
			}
		})
	}
}

func TestClient_Grade_NoItems(t *testing.T) {
	mock := ai.NewMockProvider("[]")
	c, _ := NewClient(ClientConfig{Enabled: true, APIKey: "k"}, WithProvider(mock))
	if got := c.Grade(context.Background(), nil, nil); len(got) != 0 {
		t.Errorf("Grade() = %v, want empty", got)
	}
	if mock.Calls != 0 {
		t.Errorf("provider called %d times, want 0", mock.Calls)
	}
}

func TestClient_Grade_Mock(t *testing.T) {
	m := metrics.New()
	mock := ai.NewMockProvider("Оценки: [85, 40]")
	c, err := NewClient(ClientConfig{Enabled: true, APIKey: "secret-key-123", Model: "m1"},
		WithProvider(mock), WithClientMetrics(m))
	if err != nil {
		t.Fatal(err)
	}

	topic := &content.Topic{Title: "t", FileName: "bio/t.txt"}
	got := c.Grade(context.Background(), topic, twoItems)
	if len(got) != 2 || *got[0] != 85 || *got[1] != 40 {
		t.Fatalf("Grade() = %v, want [85 40]", got)
	}
	if mock.LastRequest.Model != "m1" || len(mock.LastRequest.Messages) != 2 {
		t.Errorf("request = %+v", mock.LastRequest)
	}
	if !strings.Contains(mock.LastRequest.Messages[1].Content, "bio") {
		t.Error("user prompt should carry the topic category")
	}
	assertMetric(t, m, `quiz_grader_requests_total{outcome="ok",provider="mock"} 1`)
}

func TestClient_Grade_ProviderError(t *testing.T) {
	mock := ai.NewMockProvider("")
	mock.Err = errors.New("boom")
	c, _ := NewClient(ClientConfig{Enabled: true, APIKey: "k"}, WithProvider(mock))
	if got := c.Grade(context.Background(), nil, twoItems); len(got) != 0 {
		t.Errorf("Grade() = %v, want empty", got)
	}
}

func TestClient_Grade_DashScope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":{"choices":[{"message":{"role":"assistant","content":"[90, 70]"}}]}}`))
	}))
	defer server.Close()

	c, err := NewClient(ClientConfig{Provider: "qwen", Enabled: true, APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	got := c.Grade(context.Background(), nil, twoItems)
	if len(got) != 2 || *got[0] != 90 || *got[1] != 70 {
		t.Errorf("Grade() = %v, want [90 70]", got)
	}
}

func TestClient_Grade_HTTPFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"malformed envelope", http.StatusOK, `{"choices":`},
		{"no array", http.StatusOK, `{"choices":[{"message":{"content":"cannot grade"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, _ := NewClient(ClientConfig{Provider: "openrouter", Enabled: true, APIKey: "k", BaseURL: server.URL})
			if got := c.Grade(context.Background(), nil, twoItems); len(got) != 0 {
				t.Errorf("Grade() = %v, want empty", got)
			}
		})
	}
}

func TestClient_Grade_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	m := metrics.New()
	c, _ := NewClient(ClientConfig{Provider: "openai", Enabled: true, APIKey: "k", BaseURL: server.URL, Timeout: 50 * time.Millisecond},
		WithClientMetrics(m))
	if got := c.Grade(context.Background(), nil, twoItems); len(got) != 0 {
		t.Errorf("Grade() = %v, want empty", got)
	}
	assertMetric(t, m, `quiz_grader_requests_total{outcome="timeout",provider="openai"} 1`)
}

func TestClient_Grade_RateLimitCancelled(t *testing.T) {
	mock := ai.NewMockProvider("[1, 2]")
	c, _ := NewClient(ClientConfig{Enabled: true, APIKey: "k", RequestsPerMinute: 1}, WithProvider(mock))

	if got := c.Grade(context.Background(), nil, twoItems); len(got) != 2 {
		t.Fatalf("first Grade() = %v, want 2 scores", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if got := c.Grade(ctx, nil, twoItems); len(got) != 0 {
		t.Errorf("second Grade() = %v, want empty while rate limited", got)
	}
	if mock.Calls != 1 {
		t.Errorf("provider called %d times, want 1", mock.Calls)
	}
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDashScopeProvider_Complete(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"string content", `"[85, 90]"`, "[85, 90]", false},
		{"array content", `[{"text": "Оценки: [70, 80]"}, {"text": "ignored"}]`, "Оценки: [70, 80]", false},
		{"empty array", `[]`, "", false},
		{"null content", `null`, "", false},
		{"unexpected shape", `{"text": 1}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/services/aigc/text-generation/generation" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer ds-key" {
					t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
				}

				var req dashscopeRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Fatalf("decode request: %v", err)
				}
				if req.Model != "qwen-turbo" {
					t.Errorf("model = %q, want qwen-turbo", req.Model)
				}
				if req.Parameters.ResultFormat != "message" {
					t.Errorf("result_format = %q, want message", req.Parameters.ResultFormat)
				}
				if len(req.Input.Messages) != 2 {
					t.Errorf("messages = %+v, want system+user", req.Input.Messages)
				}

				w.Write([]byte(`{"output":{"choices":[{"message":{"role":"assistant","content":` + tt.content + `}}]},"usage":{"input_tokens":12,"output_tokens":4},"request_id":"r1"}`))
			}))
			defer server.Close()

			provider := NewDashScopeProvider("ds-key", WithDashScopeBaseURL(server.URL))
			resp, err := provider.Complete(context.Background(), CompletionRequest{
				Messages: []Message{{Role: "system", Content: "grade"}, {Role: "user", Content: "answers"}},
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("Complete() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if resp.Content != tt.want {
				t.Errorf("content = %q, want %q", resp.Content, tt.want)
			}
			if resp.InputTokens != 12 || resp.OutputTokens != 4 {
				t.Errorf("tokens = %d/%d, want 12/4", resp.InputTokens, resp.OutputTokens)
			}
		})
	}
}

func TestDashScopeProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusUnauthorized, `{"code":"InvalidApiKey","message":"bad key"}`},
		{"no choices", http.StatusOK, `{"output":{"choices":[]}}`},
		{"malformed", http.StatusOK, `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider := NewDashScopeProvider("ds-key", WithDashScopeBaseURL(server.URL), WithDashScopeModel("qwen-plus"))
			_, err := provider.Complete(context.Background(), CompletionRequest{})
			if err == nil {
				t.Fatal("Complete() should return error")
			}

			var apiErr *APIError
			if isHTTPErr := errors.As(err, &apiErr); isHTTPErr != (tt.status != http.StatusOK) {
				t.Errorf("errors.As(APIError) = %v for status %d", isHTTPErr, tt.status)
			}
		})
	}
}

func TestDashScopeProvider_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := NewDashScopeProvider("ds-key", WithDashScopeBaseURL(server.URL))
	if _, err := provider.Complete(ctx, CompletionRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Complete() error = %v, want context.Canceled", err)
	}
}

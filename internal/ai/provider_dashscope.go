package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultDashScopeBaseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultDashScopeModel   = "qwen-turbo"
	dashScopeGenerationPath = "/services/aigc/text-generation/generation"
)

// DashScopeProvider implements Provider for Alibaba DashScope (Qwen models).
type DashScopeProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// DashScopeOption configures a DashScopeProvider.
type DashScopeOption func(*DashScopeProvider)

// WithDashScopeBaseURL sets the API base URL (regional endpoint or test server).
func WithDashScopeBaseURL(url string) DashScopeOption {
	return func(p *DashScopeProvider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithDashScopeHTTPClient sets a custom HTTP client.
func WithDashScopeHTTPClient(client *http.Client) DashScopeOption {
	return func(p *DashScopeProvider) {
		p.client = client
	}
}

// WithDashScopeModel sets the model used when a request does not name one.
func WithDashScopeModel(model string) DashScopeOption {
	return func(p *DashScopeProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// NewDashScopeProvider creates a new DashScope provider.
func NewDashScopeProvider(apiKey string, opts ...DashScopeOption) *DashScopeProvider {
	p := &DashScopeProvider{
		apiKey:  apiKey,
		baseURL: defaultDashScopeBaseURL,
		model:   defaultDashScopeModel,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type dashscopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []openaiMessage `json:"messages"`
	} `json:"input"`
	Parameters dashscopeParameters `json:"parameters"`
}

type dashscopeParameters struct {
	ResultFormat string   `json:"result_format"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

type dashscopeResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				// Content is either a string or a list of {"text": ...} parts.
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
}

func (p *DashScopeProvider) Name() string { return "qwen" }

func (p *DashScopeProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var dsReq dashscopeRequest
	dsReq.Model = model
	dsReq.Input.Messages = make([]openaiMessage, len(req.Messages))
	for i, m := range req.Messages {
		dsReq.Input.Messages[i] = openaiMessage(m)
	}
	dsReq.Parameters = dashscopeParameters{ResultFormat: "message", MaxTokens: req.MaxTokens}
	if req.Temperature > 0 {
		temp := req.Temperature
		dsReq.Parameters.Temperature = &temp
	}

	body, err := json.Marshal(dsReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+dashScopeGenerationPath, bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("read response: %w", err)
	}

	if !isSuccess(resp.StatusCode) {
		return CompletionResponse{}, &APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var dsResp dashscopeResponse
	if err := json.Unmarshal(respBody, &dsResp); err != nil {
		return CompletionResponse{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(dsResp.Output.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("no choices in response")
	}

	text, err := dashscopeText(dsResp.Output.Choices[0].Message.Content)
	if err != nil {
		return CompletionResponse{}, err
	}

	return CompletionResponse{
		Content:      text,
		Model:        model,
		InputTokens:  dsResp.Usage.InputTokens,
		OutputTokens: dsResp.Usage.OutputTokens,
	}, nil
}

func dashscopeText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("unexpected message content: %s", string(raw))
	}
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0].Text, nil
}

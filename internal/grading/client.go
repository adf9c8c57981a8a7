package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/p-n-ai/pai-quiz/internal/ai"
	"github.com/p-n-ai/pai-quiz/internal/content"
	"github.com/p-n-ai/pai-quiz/internal/platform/metrics"
)

var tracer = otel.Tracer("github.com/p-n-ai/pai-quiz/internal/grading")

const (
	ProviderQwen       = "qwen"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"

	DefaultTimeout = 60 * time.Second
)

// Grader scores answers. Implementations never fail: an empty result means
// no scores could be obtained.
type Grader interface {
	Grade(ctx context.Context, topic *content.Topic, items []Item) []*float64
}

// ClientConfig selects and configures the external grader.
type ClientConfig struct {
	Provider          string
	Enabled           bool
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
}

// Client grades answers through one AI provider.
type Client struct {
	cfg      ClientConfig
	provider ai.Provider
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider replaces the provider built from the config.
func WithProvider(p ai.Provider) ClientOption {
	return func(c *Client) {
		c.provider = p
	}
}

// WithClientMetrics records grader requests in m.
func WithClientMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds a Client. An unknown provider name is an error; a missing
// key is not, the client just returns no scores.
func NewClient(cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderQwen
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{cfg: cfg, limiter: rate.NewLimiter(rate.Inf, 0)}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	switch strings.ToLower(cfg.Provider) {
	case ProviderQwen:
		c.provider = ai.NewDashScopeProvider(cfg.APIKey,
			ai.WithDashScopeBaseURL(cfg.BaseURL),
			ai.WithDashScopeModel(cfg.Model),
			ai.WithDashScopeHTTPClient(httpClient))
	case ProviderOpenRouter:
		c.provider = ai.NewOpenRouterProvider(cfg.APIKey, openAIOpts(cfg, httpClient)...)
	case ProviderOpenAI:
		c.provider = ai.NewOpenAIProvider(cfg.APIKey, openAIOpts(cfg, httpClient)...)
	default:
		return nil, fmt.Errorf("unknown grading provider %q", cfg.Provider)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func openAIOpts(cfg ClientConfig, httpClient *http.Client) []ai.OpenAIOption {
	return []ai.OpenAIOption{
		ai.WithBaseURL(cfg.BaseURL),
		ai.WithModel(cfg.Model),
		ai.WithHTTPClient(httpClient),
	}
}

// Ready reports whether Grade can reach a provider at all.
func (c *Client) Ready() bool {
	return c.cfg.Enabled && c.cfg.APIKey != ""
}

// Grade asks the provider for one score per item. It returns nil when the
// client is disabled, unconfigured, or the call fails for any reason.
func (c *Client) Grade(ctx context.Context, topic *content.Topic, items []Item) []*float64 {
	if !c.Ready() || len(items) == 0 {
		return nil
	}

	name := c.provider.Name()
	ctx, span := tracer.Start(ctx, "grading.Grade", trace.WithAttributes(
		attribute.String("provider", name),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		slog.Warn("grader rate limit wait aborted", "provider", name, "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.provider.Complete(ctx, ai.CompletionRequest{
		Messages: buildMessages(topic, items),
		Model:    c.cfg.Model,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		c.metrics.GraderRequest(name, outcome, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("grader request failed",
			"provider", name,
			"api_key", ai.MaskAPIKey(c.cfg.APIKey),
			"error", err,
		)
		return nil
	}
	c.metrics.GraderRequest(name, "ok", time.Since(start))

	scores := ExtractScores(resp.Content, len(items))
	slog.Debug("grader responded",
		"provider", name,
		"model", resp.Model,
		"tokens", resp.TotalTokens(),
		"scores", len(scores),
	)
	return scores
}

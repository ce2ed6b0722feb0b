// Package gateway sends assembled prompts to an OpenAI-compatible
// chat-completions endpoint.
//
// Each model in the configured list gets exactly one attempt; there are no
// retries. Callers are expected to fall back to canned content on error.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skillsprint/coach/internal/composer"
	"github.com/skillsprint/coach/internal/config"
)

const (
	DefaultModel   = "gpt-4o-mini"
	defaultTimeout = 10 * time.Second
)

// Options configures a Gateway.
type Options struct {
	BaseURL     string
	APIKey      string
	Models      []string
	Temperature float32
	Timeout     time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Completion is the text a model returned.
type Completion struct {
	Text  string
	Model string
}

// Gateway is safe for concurrent use.
type Gateway struct {
	client      *openai.Client
	models      []string
	temperature float32
	timeout     time.Duration
}

// New returns a Gateway. An empty APIKey yields a gateway whose Complete
// always fails with ErrNotConfigured without touching the network.
func New(opts Options) *Gateway {
	g := &Gateway{
		models:      opts.Models,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
	}
	if len(g.models) == 0 {
		g.models = []string{DefaultModel}
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	// go-openai omits a zero temperature from the request, which leaves the
	// upstream default (1.0) in effect. The smallest non-zero value is sent
	// instead and behaves as 0.
	if g.temperature == 0 {
		g.temperature = math.SmallestNonzeroFloat32
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return g
	}

	cc := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cc.HTTPClient = opts.HTTPClient
	}
	g.client = openai.NewClientWithConfig(cc)
	return g
}

// FromConfig builds a Gateway from the process configuration.
func FromConfig(c config.LLMConfig) *Gateway {
	return New(Options{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Models:      c.Models,
		Temperature: float32(c.Temperature),
		Timeout:     c.RequestTimeout(),
	})
}

// Configured reports whether a credential is present.
func (g *Gateway) Configured() bool {
	return g.client != nil
}

// Models returns the model list in attempt order.
func (g *Gateway) Models() []string {
	return append([]string(nil), g.models...)
}

// Complete sends p upstream with the given output ceiling and returns the
// first non-empty completion. Models are tried in order, once each, until
// one succeeds or ctx is done. The returned error is always an *Error.
func (g *Gateway) Complete(ctx context.Context, p composer.Prompt, maxTokens int) (Completion, error) {
	if g.client == nil {
		return Completion{}, &Error{Kind: KindNotConfigured}
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(p.Messages))
	for _, m := range p.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	var lastErr error
	for _, model := range g.models {
		text, err := g.attempt(ctx, model, msgs, maxTokens)
		if err == nil {
			return Completion{Text: text, Model: model}, nil
		}
		lastErr = err
		slog.Debug("completion attempt failed", "model", model, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return Completion{}, lastErr
}

func (g *Gateway) attempt(ctx context.Context, model string, msgs []openai.ChatCompletionMessage, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: g.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", classify(model, err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindEmpty, Model: model}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Kind: KindEmpty, Model: model}
	}
	return text, nil
}

// classify maps a client error onto a Kind. A 2xx response whose body does
// not decode counts as an empty completion.
func classify(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindUpstream, Model: model, Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: KindUpstream, Model: model, Status: reqErr.HTTPStatusCode, Err: err}
	}

	var urlErr *url.Error
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &urlErr),
		errors.As(err, &netErr):
		return &Error{Kind: KindTransport, Model: model, Err: err}
	}
	return &Error{Kind: KindEmpty, Model: model, Err: err}
}

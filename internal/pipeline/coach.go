package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/skillsprint/coach/internal/composer"
	"github.com/skillsprint/coach/internal/fallback"
	"github.com/skillsprint/coach/internal/gateway"
	"github.com/skillsprint/coach/internal/intent"
	"github.com/skillsprint/coach/internal/profile"
	"github.com/skillsprint/coach/internal/repair"
)

const defaultBriefTokens = 220

// Completer is the completion gateway as seen by the pipeline.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, p composer.Prompt, maxTokens int) (gateway.Completion, error)
}

// Request is one coaching turn as received from the client.
type Request struct {
	Profile profile.Profile
	KPIs    profile.KPISnapshot
	Tail    profile.Tail
	User    string
}

// Source says where the reply text came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
	SourceStatic   Source = "static"
)

// Trace is operator-facing detail about one request. None of it is part of
// the user-visible result.
type Trace struct {
	Route         intent.Route `json:"route"`
	Topic         string       `json:"topic,omitempty"`
	Source        Source       `json:"source"`
	Model         string       `json:"model,omitempty"`
	ErrorKind     string       `json:"errorKind,omitempty"`
	UpstreamError string       `json:"upstreamError,omitempty"`
	PromptTokens  int          `json:"promptTokens,omitempty"`
	DurationMs    int64        `json:"durationMs"`
}

// Kind of failure when the model answered but its text held no usable reply.
const malformedCompletion = "malformed_completion"

// Coach runs the whole pipeline for one request: classify, optionally
// generate, repair, fall back and compose.
type Coach struct {
	classifier *intent.Classifier
	prompts    *composer.Builder
	completer  Completer
	library    *fallback.Library
	composer   *Composer
	maxTokens  int
}

// NewCoach wires the pipeline. maxTokens is the output ceiling of brief
// answers (220 if <= 0).
func NewCoach(
	classifier *intent.Classifier,
	prompts *composer.Builder,
	completer Completer,
	library *fallback.Library,
	comp *Composer,
	maxTokens int,
) *Coach {
	if maxTokens <= 0 {
		maxTokens = defaultBriefTokens
	}
	return &Coach{
		classifier: classifier,
		prompts:    prompts,
		completer:  completer,
		library:    library,
		composer:   comp,
		maxTokens:  maxTokens,
	}
}

// Configured reports whether generation can be attempted at all.
func (c *Coach) Configured() bool {
	return c.completer != nil && c.completer.Configured()
}

// Respond always produces a Result. Upstream failures only lower the
// quality of the reply; they are recorded in the Trace and never returned.
func (c *Coach) Respond(ctx context.Context, req Request) (res Result, trace Trace) {
	start := time.Now()
	defer func() {
		trace.DurationMs = time.Since(start).Milliseconds()
	}()

	var cls intent.Classification
	if strings.TrimSpace(req.User) != "" {
		cls = c.classifier.Classify(req.User)
	}
	trace.Route = cls.Route()
	trace.Topic = cls.TopicKey()
	trace.Source = SourceStatic

	focus := req.Profile.PrimaryFocus()
	fb := c.library.Lookup(cls.Topic, focus)

	var model any
	if trace.Route == intent.RouteBrief {
		model = c.generateBrief(ctx, req, &trace)
	}

	res = c.composer.Compose(cls, req.Profile, model, fb)

	slog.Debug("coach reply composed",
		"route", trace.Route,
		"topic", trace.Topic,
		"source", trace.Source,
		"links", len(res.LearningLinks),
		"seed", res.SprintSeed != nil,
	)
	return res, trace
}

func (c *Coach) generateBrief(ctx context.Context, req Request, trace *Trace) any {
	trace.Source = SourceFallback
	if c.completer == nil {
		trace.ErrorKind = string(gateway.KindNotConfigured)
		return nil
	}

	prompt := c.prompts.Build(composer.Input{
		Profile:   req.Profile,
		KPIs:      req.KPIs,
		Tail:      req.Tail,
		Utterance: req.User,
	}, composer.ModeBrief)
	trace.PromptTokens = prompt.EstimatedTokens()

	out, err := c.completer.Complete(ctx, prompt, c.maxTokens)
	if err != nil {
		trace.ErrorKind = string(gateway.KindOf(err))
		if gateway.KindOf(err) == gateway.KindNotConfigured {
			slog.Debug("brief answer from fallback", "reason", trace.ErrorKind)
			return nil
		}
		trace.UpstreamError = err.Error()
		slog.Warn("brief generation failed, using fallback", "kind", trace.ErrorKind, "error", err)
		return nil
	}
	trace.Model = out.Model

	parsed := repair.Parse(out.Text)
	if _, ok := UsableBrief(parsed); !ok {
		trace.ErrorKind = malformedCompletion
		slog.Warn("brief completion unusable, using fallback", "model", out.Model, "chars", len(out.Text))
		return nil
	}
	trace.Source = SourceModel
	return parsed
}

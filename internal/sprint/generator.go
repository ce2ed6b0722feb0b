// Package sprint produces daily sprint exercises and post-goal follow-up
// steps. Like the coaching pipeline it always returns something usable:
// model output when the gateway answers with a well-formed day, canned copy
// otherwise.
package sprint

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/skillsprint/coach/internal/composer"
	"github.com/skillsprint/coach/internal/content"
	"github.com/skillsprint/coach/internal/fallback"
	"github.com/skillsprint/coach/internal/gateway"
	"github.com/skillsprint/coach/internal/profile"
	"github.com/skillsprint/coach/internal/repair"
	"github.com/skillsprint/coach/internal/topic"
)

const (
	maxGoals           = 3
	defaultSprintMax   = 500
	defaultFollowupMax = 300
)

// Mode says how a Result was produced.
type Mode string

const (
	ModeMock     Mode = "mock"
	ModeAI       Mode = "ai"
	ModeFallback Mode = "fallback"
)

// Completer is the completion gateway as seen by the generator.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, p composer.Prompt, maxTokens int) (gateway.Completion, error)
}

// Followup carries the goals the user just saved.
type Followup struct {
	Goals []string `json:"goals"`
}

// Seed is the sprint seed handed out by the coaching pipeline.
type Seed struct {
	Title string `json:"title"`
	Topic string `json:"topic"`
}

// Request is one sprint generation call. Followup switches the generator to
// next-step mode.
type Request struct {
	Profile  profile.Profile
	KPIs     profile.KPISnapshot
	History  []json.RawMessage
	Followup *Followup
	Seed     *Seed
	// Passcode is the value the caller presented, if any.
	Passcode string
}

// Day is one learn/act/reflect exercise.
type Day struct {
	Title      string `json:"title"`
	Knowledge  string `json:"knowledge"`
	Task       string `json:"task"`
	Reflection string `json:"reflection"`
}

// Result is what the sprint endpoint returns.
type Result struct {
	Mode           Mode                    `json:"mode"`
	Day            *Day                    `json:"day,omitempty"`
	Tips           []string                `json:"tips,omitempty"`
	KPISuggestions []content.KPISuggestion `json:"kpiSuggestions,omitempty"`
	FollowupSteps  []string                `json:"followupSteps,omitempty"`
	Template       *content.SprintTemplate `json:"template,omitempty"`
	// ErrorKind is operator detail and never serialized.
	ErrorKind string `json:"-"`
	Model     string `json:"-"`
}

// Options tunes a Generator.
type Options struct {
	// Passcode, when set, must be presented for model generation to run.
	Passcode          string
	MaxTokensSprint   int
	MaxTokensFollowup int
}

// Generator is safe for concurrent use.
type Generator struct {
	completer Completer
	prompts   *composer.Builder
	topics    *topic.Table
	library   *fallback.Library
	copy      content.SprintCopy
	opts      Options
}

func NewGenerator(
	completer Completer,
	prompts *composer.Builder,
	topics *topic.Table,
	library *fallback.Library,
	sc content.SprintCopy,
	opts Options,
) *Generator {
	if opts.MaxTokensSprint <= 0 {
		opts.MaxTokensSprint = defaultSprintMax
	}
	if opts.MaxTokensFollowup <= 0 {
		opts.MaxTokensFollowup = defaultFollowupMax
	}
	return &Generator{
		completer: completer,
		prompts:   prompts,
		topics:    topics,
		library:   library,
		copy:      sc,
		opts:      opts,
	}
}

// PasscodeRequired reports whether a passcode is configured.
func (g *Generator) PasscodeRequired() bool {
	return g.opts.Passcode != ""
}

// PasscodeMatches compares presented against the configured passcode in
// constant time. It is false when no passcode is configured.
func (g *Generator) PasscodeMatches(presented string) bool {
	if g.opts.Passcode == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(g.opts.Passcode)) == 1
}

// AIEnabled reports whether a request presenting passcode may reach the model.
func (g *Generator) AIEnabled(passcode string) bool {
	if g.completer == nil || !g.completer.Configured() {
		return false
	}
	return !g.PasscodeRequired() || g.PasscodeMatches(passcode)
}

// Generate never fails. Upstream problems are reported through
// Result.ErrorKind and a log line.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	focus := req.Profile.PrimaryFocus()
	ai := g.AIEnabled(req.Passcode)

	if req.Followup != nil {
		if !ai {
			return Result{Mode: ModeMock, FollowupSteps: clone(g.copy.MockFollowup)}
		}
		return g.followup(ctx, req, focus)
	}

	var res Result
	if ai {
		res = g.day(ctx, req, focus)
	} else {
		res = g.mockDay(req, focus)
	}
	res.Template = g.template(req.Seed, focus)
	return res
}

func (g *Generator) mockDay(req Request, focus string) Result {
	if !req.KPIs.Has(focus) {
		res := g.cannedDay(ModeMock, g.copy.PickKPIs, focus)
		res.KPISuggestions = append([]content.KPISuggestion(nil), g.copy.KPISuggestions...)
		return res
	}
	return g.cannedDay(ModeMock, g.copy.TightenLever, focus)
}

func (g *Generator) cannedDay(mode Mode, dc content.DayCopy, focus string) Result {
	vars := map[string]string{"focus": focus}
	return Result{
		Mode: mode,
		Day: &Day{
			Title:      content.Fill(dc.Title, vars),
			Knowledge:  content.Fill(dc.Knowledge, vars),
			Task:       content.Fill(dc.Task, vars),
			Reflection: g.copy.Reflection,
		},
		Tips: clone(dc.Tips),
	}
}

type modelDay struct {
	Day            *Day                    `json:"day"`
	Tips           []string                `json:"tips"`
	KPISuggestions []content.KPISuggestion `json:"kpiSuggestions"`
}

func (g *Generator) day(ctx context.Context, req Request, focus string) Result {
	prompt := g.prompts.BuildSprint(composer.SprintInput{
		Focus:   focus,
		KPIs:    req.KPIs,
		History: g.recent(req.History),
	})

	out, err := g.completer.Complete(ctx, prompt, g.opts.MaxTokensSprint)
	if err != nil {
		slog.Warn("sprint generation failed, using fallback", "kind", gateway.KindOf(err), "error", err)
		res := g.cannedDay(ModeFallback, g.copy.Experiment, focus)
		res.ErrorKind = string(gateway.KindOf(err))
		return res
	}

	parsed, ok := repair.Decode[modelDay](out.Text)
	if !ok || parsed.Day == nil || strings.TrimSpace(parsed.Day.Title) == "" {
		slog.Warn("sprint completion unusable, using fallback", "model", out.Model, "chars", len(out.Text))
		res := g.cannedDay(ModeFallback, g.copy.Experiment, focus)
		res.ErrorKind = "malformed_completion"
		res.Model = out.Model
		return res
	}

	day := *parsed.Day
	if strings.TrimSpace(day.Reflection) == "" {
		day.Reflection = g.copy.Reflection
	}
	tips := nonBlank(parsed.Tips)
	if len(tips) == 0 {
		tips = clone(g.copy.Experiment.Tips)
	}
	return Result{
		Mode:           ModeAI,
		Day:            &day,
		Tips:           tips,
		KPISuggestions: parsed.KPISuggestions,
		Model:          out.Model,
	}
}

func (g *Generator) followup(ctx context.Context, req Request, focus string) Result {
	goals := nonBlank(req.Followup.Goals)
	if len(goals) > maxGoals {
		goals = goals[:maxGoals]
	}
	prompt := g.prompts.BuildFollowup(composer.SprintInput{
		Focus:   focus,
		KPIs:    req.KPIs,
		History: g.recent(req.History),
		Goals:   goals,
	})

	res := Result{Mode: ModeFallback, FollowupSteps: clone(g.copy.FallbackFollowup)}
	out, err := g.completer.Complete(ctx, prompt, g.opts.MaxTokensFollowup)
	if err != nil {
		slog.Warn("follow-up generation failed, using fallback", "kind", gateway.KindOf(err), "error", err)
		res.ErrorKind = string(gateway.KindOf(err))
		return res
	}
	res.Model = out.Model

	parsed, ok := repair.Decode[struct {
		FollowupSteps []string `json:"followupSteps"`
	}](out.Text)
	steps := nonBlank(parsed.FollowupSteps)
	if !ok || len(steps) == 0 {
		slog.Warn("follow-up completion unusable, using fallback", "model", out.Model, "chars", len(out.Text))
		res.ErrorKind = "malformed_completion"
		return res
	}

	res.Mode = ModeAI
	res.FollowupSteps = MergeSteps(steps, g.copy.DefaultSteps, g.copy.MaxFollowupSteps)
	return res
}

// template resolves the canned exercise for the seed's topic, or the focus
// area when the seed names no known topic.
func (g *Generator) template(seed *Seed, focus string) *content.SprintTemplate {
	var rule *topic.Rule
	if seed != nil {
		if seed.Topic != "" {
			focus = seed.Topic
		}
		if g.topics != nil {
			rule = g.topics.Match(seed.Title)
			if rule == nil {
				rule = g.topics.Match(seed.Topic)
			}
		}
	}
	tmpl := g.library.Lookup(rule, focus).Sprint
	return &tmpl
}

func (g *Generator) recent(h []json.RawMessage) []json.RawMessage {
	n := g.copy.HistoryWindow
	if n > 0 && len(h) > n {
		return h[len(h)-n:]
	}
	return h
}

// MergeSteps puts the model's steps first, tops them up with defaults and
// drops exact duplicates, keeping at most max entries. A max of zero or less
// means no limit.
func MergeSteps(model, defaults []string, max int) []string {
	if max < 0 {
		max = 0
	}
	seen := make(map[string]bool)
	out := make([]string, 0, max)
	for _, list := range [][]string{model, defaults} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			if max > 0 && len(out) == max {
				return out
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clone(in []string) []string {
	return append([]string(nil), in...)
}

// Package content holds the swappable copy that drives the coach: the topic
// table, prompt texts, reply templates and the canned fallback material.
//
// A pack is plain YAML. The default pack is embedded in the binary; an
// operator can point content.path at a replacement file without rebuilding.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKey names the entry used when no topic-specific entry exists.
const DefaultKey = "default"

//go:embed default.yaml
var defaultPack []byte

var ErrInvalidPack = errors.New("invalid content pack")

// Pack is a decoded content pack.
type Pack struct {
	Topics       []TopicSpec  `yaml:"topics"`
	QuickReplies []string     `yaml:"quick_replies"`
	Prompts      Prompts      `yaml:"prompts"`
	Replies      Replies      `yaml:"replies"`
	Fallback     FallbackSpec `yaml:"fallback"`
	Sprint       SprintCopy   `yaml:"sprint"`
}

// TopicSpec is one row of the topic table. Pattern is a Go regular
// expression matched case-insensitively.
type TopicSpec struct {
	Key     string   `yaml:"key"`
	Pattern string   `yaml:"pattern"`
	Title   string   `yaml:"title"`
	Learn   []string `yaml:"learn"`
}

type Prompts struct {
	Brief         string   `yaml:"brief"`
	Resources     string   `yaml:"resources"`
	General       string   `yaml:"general"`
	Sprint        string   `yaml:"sprint"`
	SprintRules   []string `yaml:"sprint_rules"`
	Followup      string   `yaml:"followup"`
	FollowupRules []string `yaml:"followup_rules"`
}

// Replies are the composer's fixed reply templates.
type Replies struct {
	Resources      string   `yaml:"resources"`
	SprintStart    string   `yaml:"sprint_start"`
	SprintTitle    string   `yaml:"sprint_title"`
	DefaultTopic   string   `yaml:"default_topic"`
	DefaultGeneric string   `yaml:"default_generic"`
	LearnTitle     string   `yaml:"learn_title"`
	GenericSlugs   []string `yaml:"generic_slugs"`
}

type FallbackSpec struct {
	Brief   map[string]string         `yaml:"brief"`
	Sprints map[string]SprintTemplate `yaml:"sprints"`
}

// SprintTemplate is a canned learn/apply/reflect exercise.
type SprintTemplate struct {
	Title    string   `yaml:"title" json:"title"`
	Learning []string `yaml:"learning" json:"learning"`
	Quiz     []string `yaml:"quiz" json:"quiz"`
	Test     string   `yaml:"test" json:"test"`
	Real     string   `yaml:"real" json:"real"`
}

type SprintCopy struct {
	Reflection       string          `yaml:"reflection"`
	HistoryWindow    int             `yaml:"history_window"`
	MaxFollowupSteps int             `yaml:"max_followup_steps"`
	MockFollowup     []string        `yaml:"mock_followup"`
	FallbackFollowup []string        `yaml:"fallback_followup"`
	DefaultSteps     []string        `yaml:"default_steps"`
	PickKPIs         DayCopy         `yaml:"pick_kpis"`
	TightenLever     DayCopy         `yaml:"tighten_lever"`
	Experiment       DayCopy         `yaml:"experiment"`
	KPISuggestions   []KPISuggestion `yaml:"kpi_suggestions"`
}

// DayCopy is the canned text for one sprint day. Title may contain {focus}.
type DayCopy struct {
	Title     string   `yaml:"title"`
	Knowledge string   `yaml:"knowledge"`
	Task      string   `yaml:"task"`
	Tips      []string `yaml:"tips"`
}

type KPISuggestion struct {
	Name string `yaml:"name" json:"name"`
	Why  string `yaml:"why" json:"why"`
	How  string `yaml:"how" json:"how"`
}

// Default returns the embedded pack. It panics if the embedded YAML is
// broken, which the package tests rule out.
func Default() *Pack {
	p, err := Parse(defaultPack)
	if err != nil {
		panic(fmt.Sprintf("embedded content pack: %v", err))
	}
	return p
}

// Load reads a pack from path, or returns the embedded pack when path is empty.
func Load(path string) (*Pack, error) {
	if path == "" {
		return Parse(defaultPack)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading content pack: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a YAML pack.
func Parse(data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPack, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Pack) validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidPack, fmt.Sprintf(format, args...))
	}

	seen := make(map[string]bool, len(p.Topics))
	for i, t := range p.Topics {
		if t.Key == "" || t.Title == "" {
			return invalid("topic %d needs key and title", i)
		}
		if seen[t.Key] {
			return invalid("duplicate topic key %q", t.Key)
		}
		seen[t.Key] = true
		if _, err := regexp.Compile(t.Pattern); err != nil || t.Pattern == "" {
			return invalid("topic %q: bad pattern %q", t.Key, t.Pattern)
		}
	}

	if len(p.QuickReplies) == 0 {
		return invalid("quick_replies must not be empty")
	}
	for name, v := range map[string]string{
		"prompts.brief":           p.Prompts.Brief,
		"prompts.resources":       p.Prompts.Resources,
		"prompts.general":         p.Prompts.General,
		"prompts.sprint":          p.Prompts.Sprint,
		"prompts.followup":        p.Prompts.Followup,
		"replies.resources":       p.Replies.Resources,
		"replies.sprint_start":    p.Replies.SprintStart,
		"replies.sprint_title":    p.Replies.SprintTitle,
		"replies.default_topic":   p.Replies.DefaultTopic,
		"replies.default_generic": p.Replies.DefaultGeneric,
		"replies.learn_title":     p.Replies.LearnTitle,
		"sprint.reflection":       p.Sprint.Reflection,
	} {
		if strings.TrimSpace(v) == "" {
			return invalid("%s is required", name)
		}
	}
	if len(p.Replies.GenericSlugs) == 0 {
		return invalid("replies.generic_slugs must not be empty")
	}

	if strings.TrimSpace(p.Fallback.Brief[DefaultKey]) == "" {
		return invalid("fallback.brief.%s is required", DefaultKey)
	}
	if p.Fallback.Sprints[DefaultKey].Title == "" {
		return invalid("fallback.sprints.%s is required", DefaultKey)
	}

	for name, d := range map[string]DayCopy{
		"pick_kpis":     p.Sprint.PickKPIs,
		"tighten_lever": p.Sprint.TightenLever,
		"experiment":    p.Sprint.Experiment,
	} {
		if d.Title == "" || d.Task == "" {
			return invalid("sprint.%s needs title and task", name)
		}
	}
	if len(p.Sprint.MockFollowup) == 0 || len(p.Sprint.FallbackFollowup) == 0 {
		return invalid("sprint follow-up steps must not be empty")
	}
	if p.Sprint.HistoryWindow <= 0 {
		p.Sprint.HistoryWindow = 5
	}
	if p.Sprint.MaxFollowupSteps <= 0 {
		p.Sprint.MaxFollowupSteps = 5
	}
	return nil
}

// Fill substitutes {name} placeholders in tmpl. Unknown placeholders are
// left untouched.
func Fill(tmpl string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

package intent

import (
	"regexp"
	"strings"

	"github.com/skillsprint/coach/internal/topic"
)

// Route is the branch the composer takes for one utterance.
type Route string

const (
	RouteBrief     Route = "brief"
	RouteResources Route = "resources"
	RouteSprint    Route = "sprint"
	RouteDefault   Route = "default"
)

// Classification is the result of inspecting one utterance.
type Classification struct {
	WantsBrief       bool        `json:"wantsBrief"`
	WantsResources   bool        `json:"wantsResources"`
	WantsSprintStart bool        `json:"wantsSprintStart"`
	Topic            *topic.Rule `json:"topic"`
}

// Route resolves the flags in priority order: brief, resources, sprint.
func (c Classification) Route() Route {
	switch {
	case c.WantsBrief:
		return RouteBrief
	case c.WantsResources:
		return RouteResources
	case c.WantsSprintStart:
		return RouteSprint
	default:
		return RouteDefault
	}
}

// TopicKey is the detected topic key, or "".
func (c Classification) TopicKey() string {
	if c.Topic == nil {
		return ""
	}
	return c.Topic.Key
}

type flagRule struct {
	re  *regexp.Regexp
	set func(*Classification)
}

var flagRules = []flagRule{
	{
		re:  regexp.MustCompile(`(?i)(^|\b)(brief|quick|short answer|answer briefly)(\b|$)`),
		set: func(c *Classification) { c.WantsBrief = true },
	},
	{
		re:  regexp.MustCompile(`(?i)(show|share).*(resource|guide|example)|\bresources?\b`),
		set: func(c *Classification) { c.WantsResources = true },
	},
	{
		re:  regexp.MustCompile(`(?i)start\s*(a|new)?\s*sprint|make\s*(a|new)?\s*sprint`),
		set: func(c *Classification) { c.WantsSprintStart = true },
	},
}

// Classifier detects what the user wants and what they are talking about.
type Classifier struct {
	topics *topic.Table
}

// NewClassifier returns a Classifier backed by the given topic table.
func NewClassifier(topics *topic.Table) *Classifier {
	return &Classifier{topics: topics}
}

// Classify inspects utterance. Every flag is independent; the topic is the
// first matching rule of the table. Blank input yields the zero value.
func (c *Classifier) Classify(utterance string) Classification {
	var out Classification
	if strings.TrimSpace(utterance) == "" {
		return out
	}
	for _, r := range flagRules {
		if r.re.MatchString(utterance) {
			r.set(&out)
		}
	}
	out.Topic = c.topics.Match(utterance)
	return out
}

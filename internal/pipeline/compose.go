package pipeline

import (
	"strings"

	"github.com/skillsprint/coach/internal/content"
	"github.com/skillsprint/coach/internal/fallback"
	"github.com/skillsprint/coach/internal/intent"
	"github.com/skillsprint/coach/internal/profile"
	"github.com/skillsprint/coach/internal/topic"
)

const maxQuickReplies = 3

// SprintSeed is enough to start a new sprint on the client.
type SprintSeed struct {
	Title string `json:"title"`
	Topic string `json:"topic"`
}

// Result is the only thing a coaching request returns. Quick is never empty
// and LearningLinks is empty unless a topic resolved or resources were asked
// for.
type Result struct {
	Reply         string       `json:"reply"`
	Quick         []string     `json:"quick"`
	LearningLinks []topic.Link `json:"learningLinks"`
	SprintSeed    *SprintSeed  `json:"sprintSeed"`
}

// ModelBrief is the JSON shape a brief answer is requested in.
type ModelBrief struct {
	Reply string
	Quick []string
}

// UsableBrief extracts a brief answer from repaired model output. It is
// usable only when "reply" is a non-blank string.
func UsableBrief(model any) (ModelBrief, bool) {
	obj, ok := model.(map[string]any)
	if !ok {
		return ModelBrief{}, false
	}
	reply, _ := obj["reply"].(string)
	if strings.TrimSpace(reply) == "" {
		return ModelBrief{}, false
	}
	out := ModelBrief{Reply: strings.TrimSpace(reply)}
	if list, ok := obj["quick"].([]any); ok {
		for _, q := range list {
			if s, ok := q.(string); ok && strings.TrimSpace(s) != "" {
				out.Quick = append(out.Quick, strings.TrimSpace(s))
			}
		}
	}
	return out, true
}

// Composer merges the classification, any repaired model output and the
// fallback copy into a Result. It holds no per-request state.
type Composer struct {
	replies content.Replies
	quick   []string
}

func NewComposer(p *content.Pack) *Composer {
	return &Composer{replies: p.Replies, quick: p.QuickReplies}
}

// Compose runs one pass of the reply state machine. model is the repaired
// upstream JSON, or nil when generation was skipped or failed.
func (c *Composer) Compose(cls intent.Classification, p profile.Profile, model any, fb fallback.Content) Result {
	focus := p.PrimaryFocus()
	res := Result{
		Quick:         c.quickReplies(nil),
		LearningLinks: []topic.Link{},
	}

	switch cls.Route() {
	case intent.RouteBrief:
		if b, ok := UsableBrief(model); ok {
			res.Reply = b.Reply
			res.Quick = c.quickReplies(b.Quick)
		} else {
			res.Reply = fb.Brief
		}

	case intent.RouteResources:
		res.Reply = c.replies.Resources
		if cls.Topic != nil {
			res.LearningLinks = c.links(cls.Topic.LearnSlugs)
		} else {
			res.LearningLinks = c.links(c.genericSlugs(focus))
		}

	case intent.RouteSprint:
		title := c.seedTitle(cls.Topic, p, focus)
		res.SprintSeed = &SprintSeed{Title: title, Topic: focus}
		res.Reply = content.Fill(c.replies.SprintStart, map[string]string{"title": title})

	default:
		if cls.Topic != nil {
			res.Reply = content.Fill(c.replies.DefaultTopic, map[string]string{"title": cls.Topic.Title})
			res.LearningLinks = c.links(cls.Topic.LearnSlugs)
		} else {
			res.Reply = c.replies.DefaultGeneric
		}
	}

	// A detected topic always comes with an offer to start a sprint on it.
	if res.SprintSeed == nil && cls.Topic != nil {
		res.SprintSeed = &SprintSeed{Title: cls.Topic.Title, Topic: focus}
	}
	return res
}

func (c *Composer) seedTitle(rule *topic.Rule, p profile.Profile, focus string) string {
	if rule != nil && rule.Title != "" {
		return rule.Title
	}
	if goals := p.Goals(); len(goals) > 0 {
		return goals[0]
	}
	return content.Fill(c.replies.SprintTitle, map[string]string{"focus": focus})
}

func (c *Composer) genericSlugs(focus string) []string {
	vars := map[string]string{"focus": strings.ToLower(focus)}
	out := make([]string, 0, len(c.replies.GenericSlugs))
	for _, s := range c.replies.GenericSlugs {
		out = append(out, content.Fill(s, vars))
	}
	return out
}

func (c *Composer) links(slugs []string) []topic.Link {
	out := make([]topic.Link, 0, len(slugs))
	for _, s := range slugs {
		out = append(out, topic.Link{
			Href:  topic.LearnHref(s),
			Title: content.Fill(c.replies.LearnTitle, map[string]string{"slug": topic.SlugWords(s)}),
		})
	}
	return out
}

// quickReplies prefers the model's suggestions, capped at three, and
// otherwise returns a copy of the fixed set.
func (c *Composer) quickReplies(fromModel []string) []string {
	if len(fromModel) > 0 {
		if len(fromModel) > maxQuickReplies {
			fromModel = fromModel[:maxQuickReplies]
		}
		return append([]string(nil), fromModel...)
	}
	return append([]string(nil), c.quick...)
}

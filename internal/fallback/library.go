// Package fallback serves the hand-authored replies used whenever generated
// content is unavailable. Every lookup has an answer.
package fallback

import (
	"github.com/skillsprint/coach/internal/content"
	"github.com/skillsprint/coach/internal/profile"
	"github.com/skillsprint/coach/internal/topic"
)

// Content is the canned material for one topic and focus area.
type Content struct {
	TopicKey string                 `json:"topic,omitempty"`
	Brief    string                 `json:"brief"`
	Sprint   content.SprintTemplate `json:"sprint"`
}

// Library looks canned copy up by topic key.
type Library struct {
	briefs  map[string]string
	sprints map[string]content.SprintTemplate
}

// New builds a Library from a validated pack.
func New(p *content.Pack) *Library {
	return &Library{
		briefs:  p.Fallback.Brief,
		sprints: p.Fallback.Sprints,
	}
}

// Lookup returns the brief reply and sprint template for rule, falling back
// to the generic entries when rule is nil or has no authored copy. The
// generic sprint title is filled with focusArea.
func (l *Library) Lookup(rule *topic.Rule, focusArea string) Content {
	if focusArea == "" {
		focusArea = profile.DefaultFocus
	}
	key := content.DefaultKey
	if rule != nil {
		key = rule.Key
	}

	out := Content{TopicKey: key}

	brief, ok := l.briefs[key]
	if !ok {
		brief = l.briefs[content.DefaultKey]
	}
	out.Brief = brief

	tmpl, ok := l.sprints[key]
	if !ok {
		tmpl = l.sprints[content.DefaultKey]
	}
	out.Sprint = fillTemplate(tmpl, focusArea)

	if rule == nil {
		out.TopicKey = ""
	}
	return out
}

// Brief is a shortcut for Lookup(rule, focusArea).Brief.
func (l *Library) Brief(rule *topic.Rule, focusArea string) string {
	return l.Lookup(rule, focusArea).Brief
}

func fillTemplate(t content.SprintTemplate, focus string) content.SprintTemplate {
	vars := map[string]string{"focus": focus}
	out := content.SprintTemplate{
		Title: content.Fill(t.Title, vars),
		Test:  content.Fill(t.Test, vars),
		Real:  content.Fill(t.Real, vars),
	}
	for _, s := range t.Learning {
		out.Learning = append(out.Learning, content.Fill(s, vars))
	}
	for _, s := range t.Quiz {
		out.Quiz = append(out.Quiz, content.Fill(s, vars))
	}
	return out
}

// Package topic maps free text to a coarse subject tag from an ordered table.
package topic

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/skillsprint/coach/internal/content"
)

// Rule is one entry of the topic table.
type Rule struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	LearnSlugs []string `json:"learn"`

	re *regexp.Regexp
}

// Matches reports whether text mentions the rule's topic.
func (r *Rule) Matches(text string) bool {
	return r.re != nil && r.re.MatchString(text)
}

// Table is consulted top to bottom; the first matching rule wins.
type Table struct {
	rules []*Rule
}

// NewTable compiles the topic specs of a content pack in declaration order.
func NewTable(specs []content.TopicSpec) (*Table, error) {
	t := &Table{rules: make([]*Rule, 0, len(specs))}
	for _, s := range specs {
		re, err := regexp.Compile("(?i)" + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", s.Key, err)
		}
		t.rules = append(t.rules, &Rule{
			Key:        s.Key,
			Title:      s.Title,
			LearnSlugs: append([]string(nil), s.Learn...),
			re:         re,
		})
	}
	return t, nil
}

// Match returns the first rule matching text, or nil.
func (t *Table) Match(text string) *Rule {
	if t == nil || text == "" {
		return nil
	}
	for _, r := range t.rules {
		if r.Matches(text) {
			return r
		}
	}
	return nil
}

// Lookup returns the rule with the given key, or nil.
func (t *Table) Lookup(key string) *Rule {
	if t == nil {
		return nil
	}
	for _, r := range t.rules {
		if r.Key == key {
			return r
		}
	}
	return nil
}

// Rules returns the table in match order.
func (t *Table) Rules() []*Rule {
	if t == nil {
		return nil
	}
	return append([]*Rule(nil), t.rules...)
}

// Link is a "learn more" pointer into the learning area of the app.
type Link struct {
	Href  string `json:"href"`
	Title string `json:"title"`
}

// LearnHref builds the in-app link for a learn slug.
func LearnHref(slug string) string {
	return "/learn?topic=" + strings.ReplaceAll(url.QueryEscape(slug), "+", "%20")
}

// SlugWords turns "email-hooks" into "email hooks".
func SlugWords(slug string) string {
	return strings.ReplaceAll(slug, "-", " ")
}

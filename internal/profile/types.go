// Package profile holds the caller-supplied context of a coaching request:
// who the user is, the numbers they track and the recent conversation.
// All of it arrives already materialized in the request body; nothing here
// is persisted.
package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultFocus = "General"
	MaxGoals     = 3
)

// Profile is the onboarding result.
type Profile struct {
	Focus []string `json:"focus"`
	Areas []string `json:"areas,omitempty"`
	Style string   `json:"style,omitempty"`
	// Minutes is the time budget per day, when the user set one.
	Minutes        *int     `json:"time,omitempty"`
	Goals30d       []string `json:"goals30d,omitempty"`
	JobDescription string   `json:"jobDescription,omitempty"`
	CompanyWebsite string   `json:"companyWebsite,omitempty"`
}

// PrimaryFocus is the first non-blank focus area, or "General".
func (p Profile) PrimaryFocus() string {
	for _, f := range p.Focus {
		if f = strings.TrimSpace(f); f != "" {
			return f
		}
	}
	return DefaultFocus
}

// Goals returns up to three non-blank 30-day goals.
func (p Profile) Goals() []string {
	var out []string
	for _, g := range p.Goals30d {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
			if len(out) == MaxGoals {
				break
			}
		}
	}
	return out
}

// UnmarshalJSON accepts the shapes older clients send: a single focus
// string, the legacy singular goal30d field, time as a numeric string, and
// the onboarding page's coachStyle and constraints.minutesPerDay.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw struct {
		Focus          json.RawMessage `json:"focus"`
		Areas          []string        `json:"areas"`
		Style          string          `json:"style"`
		CoachStyle     string          `json:"coachStyle"`
		Time           json.RawMessage `json:"time"`
		Constraints    struct {
			MinutesPerDay json.RawMessage `json:"minutesPerDay"`
		} `json:"constraints"`
		Goals30d       json.RawMessage `json:"goals30d"`
		Goal30d        string          `json:"goal30d"`
		JobDescription string          `json:"jobDescription"`
		CompanyWebsite string          `json:"companyWebsite"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	focus, err := stringList(raw.Focus)
	if err != nil {
		return fmt.Errorf("profile.focus: %w", err)
	}
	goals, err := stringList(raw.Goals30d)
	if err != nil {
		return fmt.Errorf("profile.goals30d: %w", err)
	}
	if len(goals) == 0 && strings.TrimSpace(raw.Goal30d) != "" {
		goals = []string{raw.Goal30d}
	}

	style := raw.Style
	if strings.TrimSpace(style) == "" {
		style = raw.CoachStyle
	}

	*p = Profile{
		Focus:          focus,
		Areas:          raw.Areas,
		Style:          style,
		Goals30d:       goals,
		JobDescription: raw.JobDescription,
		CompanyWebsite: raw.CompanyWebsite,
	}
	if n, ok := parseNumber(raw.Time); ok {
		m := int(n)
		p.Minutes = &m
	} else if n, ok := parseNumber(raw.Constraints.MinutesPerDay); ok {
		m := int(n)
		p.Minutes = &m
	}
	return nil
}

// stringList decodes either a JSON string or an array of strings.
func stringList(data json.RawMessage) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// parseNumber reads a JSON number or a numeric string. Blank strings,
// null and anything else unparsable report ok=false.
func parseNumber(data json.RawMessage) (float64, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

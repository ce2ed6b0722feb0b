package composer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skillsprint/coach/internal/profile"
)

// SprintInput is the context for generating a sprint day or follow-up steps.
type SprintInput struct {
	Focus   string
	KPIs    profile.KPISnapshot
	History []json.RawMessage
	// Goals is set only for follow-up prompts.
	Goals []string
}

// BuildSprint returns the prompt asking for one sprint day as JSON.
func (b *Builder) BuildSprint(in SprintInput) Prompt {
	return b.twoPart(b.prompts.Sprint, sprintBody(in, false), b.prompts.SprintRules)
}

// BuildFollowup returns the prompt asking for immediate next steps as JSON.
func (b *Builder) BuildFollowup(in SprintInput) Prompt {
	return b.twoPart(b.prompts.Followup, sprintBody(in, true), b.prompts.FollowupRules)
}

func (b *Builder) twoPart(system, body string, rules []string) Prompt {
	var sb strings.Builder
	sb.WriteString(body)
	if len(rules) > 0 {
		sb.WriteString("Rules:\n")
		for _, r := range rules {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}
	user := strings.TrimRight(sb.String(), "\n")
	return Prompt{
		System: system,
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
	}
}

func sprintBody(in SprintInput, withGoals bool) string {
	focus := in.Focus
	if focus == "" {
		focus = profile.DefaultFocus
	}
	kpis := in.KPIs
	if kpis == nil {
		kpis = profile.KPISnapshot{}
	}
	history := in.History
	if history == nil {
		history = []json.RawMessage{}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "User focus: %s\n", focus)
	fmt.Fprintf(&sb, "KPIs (by category): %s\n", compactJSON(kpis))
	fmt.Fprintf(&sb, "Recent history: %s\n", compactJSON(history))
	if withGoals {
		goals := in.Goals
		if goals == nil {
			goals = []string{}
		}
		fmt.Fprintf(&sb, "Goals (30 days): %s\n", compactJSON(goals))
	}
	return sb.String()
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

package composer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skillsprint/coach/internal/content"
	"github.com/skillsprint/coach/internal/profile"
)

// Mode selects the system instruction for a coaching prompt.
type Mode string

const (
	ModeBrief     Mode = "brief"
	ModeResources Mode = "resources"
	ModeGeneral   Mode = "general"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeBrief, ModeResources, ModeGeneral:
		return m, nil
	default:
		return "", fmt.Errorf("unknown prompt mode %q (want brief, resources or general)", s)
	}
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message in the upstream role vocabulary.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is what the completion gateway sends upstream. Messages[0] is the
// system message carrying System.
type Prompt struct {
	System   string    `json:"system"`
	Messages []Message `json:"messages"`
}

// EstimatedTokens is a rough size of the prompt using 4 chars per token.
func (p Prompt) EstimatedTokens() int {
	n := 0
	for _, m := range p.Messages {
		n += EstimateTokens(m.Content)
	}
	return n
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Input is the caller-supplied context of one coaching turn.
type Input struct {
	Profile   profile.Profile
	KPIs      profile.KPISnapshot
	Tail      profile.Tail
	Utterance string
}

// profileView is the reduced profile sent upstream. Website and job
// description text are left out to bound prompt size.
type profileView struct {
	Focus string              `json:"focus"`
	Areas []string            `json:"areas"`
	Goals []string            `json:"goals"`
	KPIs  profile.KPISnapshot `json:"kpis"`
}

// Builder assembles prompts from the pack's prompt texts.
type Builder struct {
	prompts content.Prompts
}

func NewBuilder(p content.Prompts) *Builder {
	return &Builder{prompts: p}
}

// System returns the persona and output contract for mode. Unknown modes get
// the general instruction.
func (b *Builder) System(mode Mode) string {
	switch mode {
	case ModeBrief:
		return b.prompts.Brief
	case ModeResources:
		return b.prompts.Resources
	default:
		return b.prompts.General
	}
}

// Build returns the system message, a user message with the reduced profile,
// at most six prior turns and finally the current utterance.
func (b *Builder) Build(in Input, mode Mode) Prompt {
	system := b.System(mode)

	msgs := make([]Message, 0, 3+profile.MaxTailTurns)
	msgs = append(msgs,
		Message{Role: RoleSystem, Content: system},
		Message{Role: RoleUser, Content: "User profile:\n" + profileJSON(in.Profile, in.KPIs)},
	)
	for _, t := range in.Tail.Last(profile.MaxTailTurns) {
		role := RoleAssistant
		if t.Speaker == profile.SpeakerUser {
			role = RoleUser
		}
		msgs = append(msgs, Message{Role: role, Content: t.Text})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: in.Utterance})

	return Prompt{System: system, Messages: msgs}
}

func profileJSON(p profile.Profile, kpis profile.KPISnapshot) string {
	view := profileView{
		Focus: p.PrimaryFocus(),
		Areas: p.Areas,
		Goals: p.Goals(),
		KPIs:  kpis,
	}
	if view.Areas == nil {
		view.Areas = []string{}
	}
	if view.Goals == nil {
		view.Goals = []string{}
	}
	if view.KPIs == nil {
		view.KPIs = profile.KPISnapshot{}
	}
	b, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		// Only plain strings and numbers are marshalled.
		return "{}"
	}
	return string(b)
}

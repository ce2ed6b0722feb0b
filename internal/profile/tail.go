package profile

import (
	"encoding/json"
	"strings"
)

// MaxTailTurns bounds how much conversation reaches the model.
const MaxTailTurns = 6

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerCoach Speaker = "coach"
)

// Turn is one line of the conversation.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// UnmarshalJSON accepts {speaker,text} as well as the legacy
// {from:"me"|"coach",text} and chat-style {role,content} shapes.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Speaker string `json:"speaker"`
		From    string `json:"from"`
		Role    string `json:"role"`
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	who := raw.Speaker
	if who == "" {
		who = raw.From
	}
	if who == "" {
		who = raw.Role
	}
	switch who {
	case "user", "me":
		t.Speaker = SpeakerUser
	default:
		t.Speaker = SpeakerCoach
	}

	t.Text = raw.Text
	if t.Text == "" {
		t.Text = raw.Content
	}
	return nil
}

// Tail is the recent conversation, most recent last.
type Tail []Turn

// Last returns at most n of the most recent turns.
func (t Tail) Last(n int) Tail {
	if n <= 0 {
		return nil
	}
	if len(t) <= n {
		return t
	}
	return t[len(t)-n:]
}

// ParseTail decodes the first candidate that is a JSON array. Entries that
// are not turn objects or carry no text are skipped.
func ParseTail(candidates ...json.RawMessage) Tail {
	for _, c := range candidates {
		var items []json.RawMessage
		if err := json.Unmarshal(c, &items); err != nil || items == nil {
			continue
		}
		out := make(Tail, 0, len(items))
		for _, it := range items {
			var t Turn
			if err := json.Unmarshal(it, &t); err == nil && strings.TrimSpace(t.Text) != "" {
				out = append(out, t)
			}
		}
		return out
	}
	return nil
}

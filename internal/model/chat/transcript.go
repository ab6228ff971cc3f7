package chat

import "strings"

// Transcript is the ordered turn log of one conversation. The system turn, when
// present, is always the first element and there is never more than one.
//
// A Transcript is not safe for concurrent use; its owning Session is guarded by
// the registry.
type Transcript struct {
	turns []Turn
}

// NewTranscript returns a transcript holding only the given system prompt.
func NewTranscript(systemPrompt string) *Transcript {
	t := &Transcript{turns: make([]Turn, 0, 16)}
	t.SetSystem(systemPrompt)
	return t
}

// AppendUser records a user turn.
func (t *Transcript) AppendUser(text string) {
	t.turns = append(t.turns, Turn{Role: RoleUser, Content: text})
}

// AppendAssistant records an assistant turn.
func (t *Transcript) AppendAssistant(text string) {
	t.turns = append(t.turns, Turn{Role: RoleAssistant, Content: text})
}

// SetSystem drops any existing system turn and inserts text at the front.
func (t *Transcript) SetSystem(text string) {
	kept := t.turns[:0]
	for _, turn := range t.turns {
		if turn.Role != RoleSystem {
			kept = append(kept, turn)
		}
	}
	t.turns = append([]Turn{{Role: RoleSystem, Content: text}}, kept...)
}

// System returns the system turn content.
func (t *Transcript) System() (string, bool) {
	if len(t.turns) > 0 && t.turns[0].Role == RoleSystem {
		return t.turns[0].Content, true
	}
	return "", false
}

// ResetKeepingSystem removes every user and assistant turn.
func (t *Transcript) ResetKeepingSystem() {
	if system, ok := t.System(); ok {
		t.turns = []Turn{{Role: RoleSystem, Content: system}}
		return
	}
	t.turns = t.turns[:0]
}

// Turns returns a copy of all turns in order.
func (t *Transcript) Turns() []Turn {
	return append([]Turn(nil), t.turns...)
}

// History returns a copy of the non-system turns in order.
func (t *Transcript) History() []Turn {
	history := make([]Turn, 0, len(t.turns))
	for _, turn := range t.turns {
		if turn.Role != RoleSystem {
			history = append(history, turn)
		}
	}
	return history
}

// Len reports the number of turns including the system turn.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Render formats the transcript one turn per line as "ROLE: content".
func (t *Transcript) Render() string {
	return RenderTurns(t.turns)
}

// RenderTurns formats turns the same way Transcript.Render does.
func RenderTurns(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, turn.Role.Label()+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

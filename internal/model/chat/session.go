package chat

import "time"

// Session captures one user's conversation with the bot.
type Session struct {
	ID                string
	UserID            int64
	SystemPrompt      string
	Transcript        *Transcript
	Active            bool
	SuccessRating     *bool
	NaturalnessRating *int
	CreatedAt         time.Time
	EndedAt           time.Time
}

// NewSession creates an active session whose transcript holds only the system prompt.
func NewSession(id string, userID int64, systemPrompt string) *Session {
	return &Session{
		ID:           id,
		UserID:       userID,
		SystemPrompt: systemPrompt,
		Transcript:   NewTranscript(systemPrompt),
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
}

// Snapshot copies the session into a value that is safe to read without locks.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:    s.ID,
		UserID:       s.UserID,
		SystemPrompt: s.SystemPrompt,
		Active:       s.Active,
		Turns:        s.Transcript.Turns(),
		Log:          s.Transcript.Render(),
		CreatedAt:    s.CreatedAt,
		EndedAt:      s.EndedAt,
	}
	if s.SuccessRating != nil {
		v := *s.SuccessRating
		snap.SuccessRating = &v
	}
	if s.NaturalnessRating != nil {
		v := *s.NaturalnessRating
		snap.NaturalnessRating = &v
	}
	return snap
}

// Snapshot is a read-only copy of a Session handed to finalizers and HTTP views.
type Snapshot struct {
	SessionID         string    `json:"sessionId"`
	UserID            int64     `json:"userId"`
	SystemPrompt      string    `json:"systemPrompt"`
	Active            bool      `json:"active"`
	SuccessRating     *bool     `json:"successRating,omitempty"`
	NaturalnessRating *int      `json:"naturalnessRating,omitempty"`
	Turns             []Turn    `json:"turns"`
	Log               string    `json:"log"`
	CreatedAt         time.Time `json:"createdAt"`
	EndedAt           time.Time `json:"endedAt,omitzero"`
}

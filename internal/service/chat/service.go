package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/dialog-lab/bot/internal/model/chat"
)

var (
	ErrNoActiveSession       = errors.New("no active session")
	ErrInvalidRating         = errors.New("naturalness rating must be between 1 and 5")
	ErrDownstreamUnavailable = errors.New("downstream service unavailable")
	ErrEmptyMessage          = errors.New("message text is required")
	ErrEmptyPrompt           = errors.New("system prompt is required")
)

const (
	MinNaturalness = 1
	MaxNaturalness = 5
)

// Responder produces the assistant reply for a new user input.
type Responder interface {
	Reply(ctx context.Context, systemPrompt string, history []chat.Turn, input string) (string, error)
}

// Finalizer analyzes and persists a finished conversation.
type Finalizer interface {
	AnalyzeAndPersist(ctx context.Context, snapshot chat.Snapshot) (string, error)
}

// Options tunes the conversation lifecycle.
type Options struct {
	DefaultPrompt string
	// ClearHistoryOnPromptChange drops user/assistant turns when the prompt changes.
	ClearHistoryOnPromptChange bool
}

// Service drives the conversation lifecycle of every user.
type Service struct {
	registry      *Registry
	responder     Responder
	defaultPrompt string
	clearOnPrompt bool
	newID         func() string
}

// NewService wires the lifecycle controller to its registry and model responder.
func NewService(registry *Registry, responder Responder, opts Options) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		registry:      registry,
		responder:     responder,
		defaultPrompt: opts.DefaultPrompt,
		clearOnPrompt: opts.ClearHistoryOnPromptChange,
		newID:         uuid.NewString,
	}
}

// Registry exposes the underlying store.
func (s *Service) Registry() *Registry {
	return s.registry
}

// StartConversation replaces the user's session with a fresh active one. The
// prompt resolves as override, then the previous session's prompt, then the default.
func (s *Service) StartConversation(_ context.Context, userID int64, override string) chat.Snapshot {
	return s.registry.Replace(userID, func(prev *chat.Session) *chat.Session {
		prompt := strings.TrimSpace(override)
		if prompt == "" && prev != nil {
			prompt = prev.SystemPrompt
		}
		if prompt == "" {
			prompt = s.defaultPrompt
		}
		return chat.NewSession(s.newID(), userID, prompt)
	})
}

// SetPrompt changes the system prompt of the user's session, starting one when
// the user has none.
func (s *Service) SetPrompt(ctx context.Context, userID int64, prompt string) (chat.Snapshot, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return chat.Snapshot{}, ErrEmptyPrompt
	}

	var snap chat.Snapshot
	err := s.registry.Update(userID, func(session *chat.Session) error {
		session.SystemPrompt = prompt
		if s.clearOnPrompt {
			session.Transcript.ResetKeepingSystem()
		}
		session.Transcript.SetSystem(prompt)
		snap = session.Snapshot()
		return nil
	})
	if errors.Is(err, ErrNoActiveSession) {
		return s.StartConversation(ctx, userID, prompt), nil
	}
	return snap, err
}

// GetPrompt returns the current system prompt of the user's session.
func (s *Service) GetPrompt(userID int64) (string, bool) {
	snap, ok := s.registry.Snapshot(userID)
	if !ok {
		return "", false
	}
	return snap.SystemPrompt, true
}

// IsActive reports whether the user is in an active conversation.
func (s *Service) IsActive(userID int64) bool {
	snap, ok := s.registry.Snapshot(userID)
	return ok && snap.Active
}

// Snapshot returns a copy of the user's current session.
func (s *Service) Snapshot(userID int64) (chat.Snapshot, bool) {
	return s.registry.Snapshot(userID)
}

// ReceiveMessage records the user's text and asks the responder for a reply.
// A failed reply leaves the user turn in place and returns ErrDownstreamUnavailable.
// The reply is appended only if the same session is still registered and active.
func (s *Service) ReceiveMessage(ctx context.Context, userID int64, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	var (
		sessionID string
		prompt    string
		history   []chat.Turn
	)
	err := s.registry.Update(userID, func(session *chat.Session) error {
		if !session.Active {
			return ErrNoActiveSession
		}
		sessionID = session.ID
		prompt = session.SystemPrompt
		history = session.Transcript.History()
		session.Transcript.AppendUser(text)
		return nil
	})
	if err != nil {
		return "", err
	}

	if s.responder == nil {
		return "", fmt.Errorf("%w: no model configured", ErrDownstreamUnavailable)
	}

	reply, err := s.responder.Reply(ctx, prompt, history, text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownstreamUnavailable, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("%w: empty reply", ErrDownstreamUnavailable)
	}

	err = s.registry.Update(userID, func(session *chat.Session) error {
		if session.ID != sessionID || !session.Active {
			log.Printf("[chat] session %s for user=%d replaced or ended before reply arrived", sessionID, userID)
			return nil
		}
		session.Transcript.AppendAssistant(reply)
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// ResetConversation clears the active transcript but keeps its system prompt.
func (s *Service) ResetConversation(_ context.Context, userID int64) error {
	return s.registry.Update(userID, func(session *chat.Session) error {
		if !session.Active {
			return ErrNoActiveSession
		}
		session.Transcript.ResetKeepingSystem()
		return nil
	})
}

// EndConversation marks the active session as ended. The session stays in the
// registry until the user starts a new one.
func (s *Service) EndConversation(_ context.Context, userID int64) (chat.Snapshot, error) {
	var snap chat.Snapshot
	err := s.registry.Update(userID, func(session *chat.Session) error {
		if !session.Active {
			return ErrNoActiveSession
		}
		session.Active = false
		session.EndedAt = time.Now().UTC()
		snap = session.Snapshot()
		return nil
	})
	return snap, err
}

// SetRating records whether the user considered the conversation successful.
func (s *Service) SetRating(_ context.Context, userID int64, successful bool) error {
	return s.registry.Update(userID, func(session *chat.Session) error {
		session.SuccessRating = &successful
		return nil
	})
}

// SetNaturalnessRating records the user's 1..5 naturalness score.
func (s *Service) SetNaturalnessRating(_ context.Context, userID int64, rating int) error {
	if rating < MinNaturalness || rating > MaxNaturalness {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	return s.registry.Update(userID, func(session *chat.Session) error {
		session.NaturalnessRating = &rating
		return nil
	})
}

// Finalize hands a snapshot of the user's session to the finalizer. It may be
// called any number of times; each call is independent.
func (s *Service) Finalize(ctx context.Context, userID int64, finalizer Finalizer) (string, error) {
	snap, ok := s.registry.Snapshot(userID)
	if !ok {
		return "", ErrNoActiveSession
	}

	analysis, err := finalizer.AnalyzeAndPersist(ctx, snap)
	if err != nil {
		return analysis, fmt.Errorf("%w: %w", ErrDownstreamUnavailable, err)
	}
	return analysis, nil
}

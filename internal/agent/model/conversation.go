package model

import (
	"context"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one immutable entry of a session history.
type Turn struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Metadata keys written on tool-observation turns.
const (
	MetaTool      = "tool"
	MetaCallKey   = "call_key"
	MetaArguments = "arguments"
	MetaSuccess   = "success"
	MetaIteration = "iteration"
)

func UserTurn(content string, now time.Time) Turn {
	return Turn{Role: RoleUser, Content: content, Timestamp: now}
}

func AssistantTurn(content string, now time.Time) Turn {
	return Turn{Role: RoleAssistant, Content: content, Timestamp: now}
}

// CallKey returns the canonical (tool, arguments) key of a tool turn, or "".
func (t Turn) CallKey() string {
	if t.Role != RoleTool || t.Metadata == nil {
		return ""
	}
	key, _ := t.Metadata[MetaCallKey].(string)
	return key
}

// Session is the ordered history of one conversation plus its running counter.
type Session struct {
	ID         string    `json:"session_id"`
	Turns      []Turn    `json:"messages"`
	Iterations int       `json:"iterations"`
	Summary    string    `json:"summary,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewSession(id string, now time.Time) Session {
	return Session{ID: id, Turns: []Turn{}, CreatedAt: now, UpdatedAt: now}
}

// Tail returns a copy of the last n turns. n <= 0 returns every turn.
func (s Session) Tail(n int) []Turn {
	src := s.Turns
	if n > 0 && len(src) > n {
		src = src[len(src)-n:]
	}
	out := make([]Turn, len(src))
	copy(out, src)
	return out
}

// SearchHit is one matching turn returned by a history search.
type SearchHit struct {
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Snippet   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationRepository is the persistence surface the chat service depends on.
type ConversationRepository interface {
	Load(ctx context.Context, sessionID, userID string) (Session, UserProfile, error)
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	UpdateSession(ctx context.Context, sessionID string, fn func(*Session)) (Session, error)
	UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (UserProfile, error)
	Reset(ctx context.Context, sessionID string) (Session, error)
	Session(ctx context.Context, sessionID string) (Session, error)
	Profile(ctx context.Context, userID string) (UserProfile, error)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

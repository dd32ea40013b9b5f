// Package memory persists sessions and user profiles on top of a repo.Backend
// and guarantees at most one in-flight mutation per session and per user.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gasdesk/agent-server/internal/agent/model"
	"github.com/gasdesk/agent-server/internal/agent/repo"
	errx "github.com/gasdesk/agent-server/internal/core/error"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

const (
	snippetRunes       = 200
	defaultSearchLimit = 50
)

type Store struct {
	backend repo.Backend
	locks   *keyedMutex
	now     func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(backend repo.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		locks:   newKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionLock(id string) string { return "session:" + id }
func userLock(id string) string    { return "user:" + id }

// Load returns the session and profile, creating and persisting either one on first contact.
func (s *Store) Load(ctx context.Context, sessionID, userID string) (model.Session, model.UserProfile, error) {
	var (
		sess    model.Session
		profile model.UserProfile
	)
	err := s.withSession(ctx, sessionID, func(cur *model.Session, existed bool) (bool, error) {
		sess = *cur
		return !existed, nil
	})
	if err != nil {
		return model.Session{}, model.UserProfile{}, err
	}
	err = s.withProfile(ctx, userID, func(cur *model.UserProfile, existed bool) (bool, error) {
		profile = *cur
		return !existed, nil
	})
	if err != nil {
		return model.Session{}, model.UserProfile{}, err
	}
	return sess, profile, nil
}

// Session returns the stored session, or a fresh empty one that is not persisted.
func (s *Store) Session(ctx context.Context, sessionID string) (model.Session, error) {
	sess, _, err := s.readSession(ctx, sessionID)
	return sess, err
}

// Profile returns the stored profile, or the default one that is not persisted.
func (s *Store) Profile(ctx context.Context, userID string) (model.UserProfile, error) {
	p, _, err := s.readProfile(ctx, userID)
	return p, err
}

// Append adds turns to the end of the session history.
func (s *Store) Append(ctx context.Context, sessionID string, turns ...model.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	return s.withSession(ctx, sessionID, func(cur *model.Session, _ bool) (bool, error) {
		cur.Turns = append(cur.Turns, turns...)
		return true, nil
	})
}

// UpdateSession applies fn to the stored session under the session lock.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, fn func(*model.Session)) (model.Session, error) {
	var out model.Session
	err := s.withSession(ctx, sessionID, func(cur *model.Session, _ bool) (bool, error) {
		fn(cur)
		cur.ID = sessionID
		out = *cur
		return true, nil
	})
	return out, err
}

// Reset empties the history, zeroes the counter and drops the summary. Profiles are not touched.
func (s *Store) Reset(ctx context.Context, sessionID string) (model.Session, error) {
	var out model.Session
	err := s.withSession(ctx, sessionID, func(cur *model.Session, _ bool) (bool, error) {
		cur.Turns = []model.Turn{}
		cur.Iterations = 0
		cur.Summary = ""
		out = *cur
		return true, nil
	})
	if err == nil {
		logx.Info().Str("session_id", sessionID).Msg("session context reset")
	}
	return out, err
}

// UpdateProfile merges patch into the stored profile under the user lock.
func (s *Store) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (model.UserProfile, error) {
	var out model.UserProfile
	err := s.withProfile(ctx, userID, func(cur *model.UserProfile, existed bool) (bool, error) {
		if patch.Empty() {
			out = *cur
			return !existed, nil
		}
		*cur = cur.Apply(patch, s.now())
		out = *cur
		return true, nil
	})
	return out, err
}

// Search returns turns containing query, case-insensitively, newest session first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errx.BadRequest(errors.New("empty search query"))
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	ids, err := s.backend.List(ctx, repo.KindSession)
	if err != nil {
		return nil, errx.WrapPersistence(err)
	}

	needle := strings.ToLower(query)
	var hits []model.SearchHit
	for _, id := range ids {
		sess, existed, err := s.readSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if !existed {
			continue
		}
		for _, turn := range sess.Turns {
			if strings.Contains(strings.ToLower(turn.Content), needle) {
				hits = append(hits, model.SearchHit{
					SessionID: sess.ID,
					Role:      turn.Role,
					Snippet:   truncateRunes(turn.Content, snippetRunes),
					Timestamp: turn.Timestamp,
				})
			}
		}
	}
	slices.SortStableFunc(hits, func(a, b model.SearchHit) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// withSession loads the session under its lock, runs fn and saves when fn asks for it.
func (s *Store) withSession(ctx context.Context, id string, fn func(cur *model.Session, existed bool) (bool, error)) error {
	if strings.TrimSpace(id) == "" {
		return errx.BadRequest(errors.New("session id is required"))
	}
	unlock := s.locks.Lock(sessionLock(id))
	defer unlock()

	sess, existed, err := s.readSession(ctx, id)
	if err != nil {
		return err
	}
	save, err := fn(&sess, existed)
	if err != nil || !save {
		return err
	}
	sess.UpdatedAt = s.now()
	return s.write(ctx, repo.KindSession, id, sess)
}

func (s *Store) withProfile(ctx context.Context, id string, fn func(cur *model.UserProfile, existed bool) (bool, error)) error {
	if strings.TrimSpace(id) == "" {
		return errx.BadRequest(errors.New("user id is required"))
	}
	unlock := s.locks.Lock(userLock(id))
	defer unlock()

	profile, existed, err := s.readProfile(ctx, id)
	if err != nil {
		return err
	}
	save, err := fn(&profile, existed)
	if err != nil || !save {
		return err
	}
	return s.write(ctx, repo.KindUser, id, profile)
}

func (s *Store) readSession(ctx context.Context, id string) (model.Session, bool, error) {
	var sess model.Session
	existed, err := s.read(ctx, repo.KindSession, id, &sess)
	if err != nil {
		return model.Session{}, false, err
	}
	if !existed {
		return model.NewSession(id, s.now()), false, nil
	}
	if sess.Turns == nil {
		sess.Turns = []model.Turn{}
	}
	return sess, true, nil
}

func (s *Store) readProfile(ctx context.Context, id string) (model.UserProfile, bool, error) {
	var p model.UserProfile
	existed, err := s.read(ctx, repo.KindUser, id, &p)
	if err != nil {
		return model.UserProfile{}, false, err
	}
	if !existed {
		return model.NewUserProfile(id, s.now()), false, nil
	}
	if p.Preferences == nil {
		p.Preferences = map[string]any{}
	}
	return p, true, nil
}

func (s *Store) read(ctx context.Context, kind repo.Kind, id string, dst any) (bool, error) {
	body, err := s.backend.Get(ctx, kind, id)
	if errors.Is(err, errx.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		logx.Error().Err(err).Str("kind", string(kind)).Str("id", id).Msg("failed to load record")
		return false, errx.WrapPersistence(err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		logx.Error().Err(err).Str("kind", string(kind)).Str("id", id).Msg("corrupt record")
		return false, errx.WrapPersistence(fmt.Errorf("decode %s/%s: %w", kind, id, err))
	}
	return true, nil
}

func (s *Store) write(ctx context.Context, kind repo.Kind, id string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errx.WrapPersistence(fmt.Errorf("encode %s/%s: %w", kind, id, err))
	}
	if err := s.backend.Put(ctx, kind, id, body); err != nil {
		logx.Error().Err(err).Str("kind", string(kind)).Str("id", id).Msg("failed to save record")
		return errx.WrapPersistence(err)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

var _ model.ConversationRepository = (*Store)(nil)

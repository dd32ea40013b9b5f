// Package chat turns one user message into one answer: it handles the reset
// command, keeps the profile up to date, condenses history for the control
// loop and reports what the loop did.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gasdesk/agent-server/internal/agent/graph"
	"github.com/gasdesk/agent-server/internal/agent/graph/conversations"
	"github.com/gasdesk/agent-server/internal/agent/memory"
	"github.com/gasdesk/agent-server/internal/agent/model"
	errx "github.com/gasdesk/agent-server/internal/core/error"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

const resetCommand = "reset context"

const (
	resetConfirmationHU = "A kontextus törölve lett. Új beszélgetést kezdünk, de a beállításaid megmaradtak."
	resetConfirmationEN = "Context has been reset. We are starting a new conversation, but your preferences are preserved."
)

// Runner executes one control-loop run. *graph.Loop implements it.
type Runner interface {
	Run(ctx context.Context, in graph.RunInput) (graph.RunResult, error)
}

type Service struct {
	store       model.ConversationRepository
	runner      Runner
	strategies  map[model.MemoryMode]memory.Strategy
	defaultMode model.MemoryMode
	validate    *validator.Validate
	now         func() time.Time
}

type Option func(*Service)

// WithDefaultMode sets the memory mode used when a request names none.
func WithDefaultMode(mode model.MemoryMode) Option {
	return func(s *Service) { s.defaultMode = mode }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store model.ConversationRepository, runner Runner, strategies map[model.MemoryMode]memory.Strategy, opts ...Option) *Service {
	s := &Service{
		store:       store,
		runner:      runner,
		strategies:  strategies,
		defaultMode: model.MemorySimple,
		validate:    validator.New(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsResetCommand reports whether msg asks to clear the conversation context.
func IsResetCommand(msg string) bool {
	return strings.EqualFold(strings.TrimSpace(msg), resetCommand)
}

// ProcessMessage answers one message. Only invalid input and persistence
// failures return an error.
func (s *Service) ProcessMessage(ctx context.Context, req model.ChatRequest) (model.ChatResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return model.ChatResponse{}, errx.BadRequest(err)
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return model.ChatResponse{}, errx.BadRequest(errors.New("message is blank"))
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = req.UserID
	}
	mode := req.MemoryMode
	if mode == "" {
		mode = s.defaultMode
	}
	strategy, ok := s.strategies[mode]
	if !ok {
		return model.ChatResponse{}, errx.BadRequest(fmt.Errorf("unknown memory mode %q", mode))
	}

	log := logx.Component("chat").With().Str("user_id", req.UserID).Str("session_id", sessionID).Logger()
	log.Info().Str("memory_mode", string(mode)).Msg("processing message")

	if IsResetCommand(msg) {
		return s.reset(ctx, req.UserID, sessionID, mode)
	}

	sess, profile, err := s.store.Load(ctx, sessionID, req.UserID)
	if err != nil {
		return model.ChatResponse{}, err
	}

	var logs []string
	if patch := DetectProfilePatch(msg, profile); !patch.Empty() {
		profile, err = s.store.UpdateProfile(ctx, req.UserID, patch)
		if err != nil {
			return model.ChatResponse{}, err
		}
		log.Info().Strs("changes", describePatch(patch)).Msg("profile updated from message")
		logs = append(logs, "profile updated: "+strings.Join(describePatch(patch), ", "))
	}

	userTurn := model.UserTurn(msg, s.now())
	if err := s.store.Append(ctx, sessionID, userTurn); err != nil {
		return model.ChatResponse{}, err
	}
	sess.Turns = append(sess.Turns, userTurn)

	window := strategy.Build(sess)
	if mode == model.MemoryHybrid && window.Summary != sess.Summary {
		summary := window.Summary
		if _, err := s.store.UpdateSession(ctx, sessionID, func(cur *model.Session) { cur.Summary = summary }); err != nil {
			return model.ChatResponse{}, err
		}
	}

	res, err := s.runner.Run(ctx, graph.RunInput{
		SessionID: sessionID,
		Turns:     window.Turns,
		Summary:   window.Summary,
		Profile:   profile,
		Executed:  conversations.ExecutedCalls(sess.Turns),
	})
	if err != nil {
		return model.ChatResponse{}, err
	}

	used := make([]model.ToolUsage, 0, len(res.Records))
	for _, r := range res.Records {
		used = append(used, model.ToolUsage{Name: r.Call.Tool, Arguments: r.Call.Arguments, Success: r.Success})
	}
	logs = append(logs, res.Logs...)
	logs = append(logs, fmt.Sprintf("Tools called: %d", len(used)))

	log.Info().Str("run_id", res.RunID).Str("outcome", string(res.Outcome)).Int("tools", len(used)).Msg("message processed")
	return model.ChatResponse{
		SessionID:   sessionID,
		FinalAnswer: res.Answer,
		ToolsUsed:   used,
		MemorySnapshot: model.MemorySnapshot{
			Preferences:  profile.View(),
			Iterations:   res.Session.Iterations,
			MessageCount: len(res.Session.Turns),
			Summary:      res.Session.Summary,
			Mode:         mode,
		},
		Logs: logs,
	}, nil
}

func (s *Service) reset(ctx context.Context, userID, sessionID string, mode model.MemoryMode) (model.ChatResponse, error) {
	_, profile, err := s.store.Load(ctx, sessionID, userID)
	if err != nil {
		return model.ChatResponse{}, err
	}
	sess, err := s.store.Reset(ctx, sessionID)
	if err != nil {
		return model.ChatResponse{}, err
	}

	answer := resetConfirmationHU
	if profile.Language == "en" {
		answer = resetConfirmationEN
	}
	return model.ChatResponse{
		SessionID:   sessionID,
		FinalAnswer: answer,
		ToolsUsed:   []model.ToolUsage{},
		MemorySnapshot: model.MemorySnapshot{
			Preferences:  profile.View(),
			Iterations:   sess.Iterations,
			MessageCount: len(sess.Turns),
			Mode:         mode,
		},
		Logs: []string{"Context reset"},
	}, nil
}

func (s *Service) SessionHistory(ctx context.Context, sessionID string) (model.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return model.Session{}, errx.BadRequest(errors.New("session id is required"))
	}
	sess, err := s.store.Session(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	sess.ID = sessionID
	return sess, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (model.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return model.UserProfile{}, errx.BadRequest(errors.New("user id is required"))
	}
	return s.store.Profile(ctx, userID)
}

// UpdateProfile validates and merges patch into the user's profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (model.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return model.UserProfile{}, errx.BadRequest(errors.New("user id is required"))
	}
	if err := s.validate.Struct(patch); err != nil {
		return model.UserProfile{}, errx.BadRequest(err)
	}
	return s.store.UpdateProfile(ctx, userID, patch)
}

func (s *Service) SearchHistory(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
	return s.store.Search(ctx, query, limit)
}

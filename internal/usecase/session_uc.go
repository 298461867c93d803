package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/ports/repository"
	"magical-academy/internal/infra/logging"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// SessionUseCase remembers the last thread of a tutoring session so the
// next exercise continues it.
type SessionUseCase interface {
	Generate(ctx context.Context, sessionID string, req GenerateRequest) (*GenerateResult, error)
	Reset(ctx context.Context, sessionID string) error
}

type sessionUC struct {
	exercises ExerciseUseCase
	threads   repository.ThreadStore
	log       *zerolog.Logger
}

func NewSessionUseCase(exercises ExerciseUseCase, threads repository.ThreadStore, logger *zerolog.Logger) *sessionUC {
	if logger == nil {
		logger = logging.Nop()
	}
	compLog := logger.With().Str("component", "SessionUseCase").Logger()
	return &sessionUC{exercises: exercises, threads: threads, log: &compLog}
}

// Generate reads the stored thread id, runs the exercise and stores the
// thread that produced it. An explicit req.ThreadID wins over the store.
// Store failures only cost continuity.
func (s *sessionUC) Generate(ctx context.Context, sessionID string, req GenerateRequest) (*GenerateResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return s.exercises.Generate(ctx, req)
	}
	ctx = logging.WithSessID(ctx, sessionID)
	log := logging.With(ctx, s.log)

	if req.ThreadID == "" && s.threads != nil {
		tid, err := s.threads.GetThreadID(ctx, sessionID)
		switch {
		case err == nil:
			req.ThreadID = tid
		case errors.Is(err, domain.ErrNotFound):
		default:
			log.Warn().Err(err).Msg("thread store read failed; starting a new thread")
		}
	}

	res, err := s.exercises.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.threads != nil && res.ThreadID != "" && res.ThreadID != req.ThreadID {
		if err := s.threads.SetThreadID(ctx, sessionID, res.ThreadID); err != nil {
			log.Warn().Err(err).Str("thread_id", res.ThreadID).Msg("thread store write failed")
		}
	}
	return res, nil
}

func (s *sessionUC) Reset(ctx context.Context, sessionID string) error {
	if s.threads == nil {
		return nil
	}
	if strings.TrimSpace(sessionID) == "" {
		return domain.ErrInvalidArgument
	}
	return s.threads.ClearThreadID(ctx, sessionID)
}

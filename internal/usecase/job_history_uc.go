package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/repository"
	"magical-academy/internal/infra/logging"
)

// Compile-time check
var _ JobHistoryUseCase = (*jobHistoryUC)(nil)

const maxHistory = 50

// JobHistoryUseCase reads the audit trail of the thread a session is
// currently on. Jobs of earlier threads are not reachable.
type JobHistoryUseCase interface {
	List(ctx context.Context, sessionID string, limit int) ([]*model.Job, error)
	Get(ctx context.Context, sessionID, jobID string) (*JobDetail, error)
}

// JobDetail is one job plus the jobs of its thread, newest first, read from
// the same snapshot.
type JobDetail struct {
	Job    *model.Job
	Thread []*model.Job
}

type jobHistoryUC struct {
	threads repository.ThreadStore
	jobs    repository.JobRepository
	tm      repository.TransactionManager
	log     *zerolog.Logger
}

// NewJobHistoryUseCase reads without a transaction when tm is nil.
func NewJobHistoryUseCase(threads repository.ThreadStore, jobs repository.JobRepository, tm repository.TransactionManager, logger *zerolog.Logger) *jobHistoryUC {
	if logger == nil {
		logger = logging.Nop()
	}
	compLog := logger.With().Str("component", "JobHistoryUseCase").Logger()
	return &jobHistoryUC{threads: threads, jobs: jobs, tm: tm, log: &compLog}
}

func (uc *jobHistoryUC) List(ctx context.Context, sessionID string, limit int) ([]*model.Job, error) {
	tid, err := uc.threadOf(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	return uc.jobs.ListByThread(ctx, nil, tid, limit)
}

// Get returns ErrNotFound for a job that belongs to another thread.
func (uc *jobHistoryUC) Get(ctx context.Context, sessionID, jobID string) (*JobDetail, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("job history: %w: empty job id", domain.ErrInvalidArgument)
	}
	tid, err := uc.threadOf(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var out JobDetail
	err = uc.readTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		job, err := uc.jobs.FindByID(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Ref.ThreadID != tid {
			return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		thread, err := uc.jobs.ListByThread(ctx, tx, tid, maxHistory)
		if err != nil {
			return err
		}
		out = JobDetail{Job: job, Thread: thread}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (uc *jobHistoryUC) threadOf(ctx context.Context, sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", fmt.Errorf("job history: %w: empty session id", domain.ErrInvalidArgument)
	}
	tid, err := uc.threads.GetThreadID(logging.WithSessID(ctx, sessionID), sessionID)
	if err != nil {
		return "", fmt.Errorf("session %s: %w", sessionID, err)
	}
	return tid, nil
}

func (uc *jobHistoryUC) readTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if uc.tm == nil {
		return fn(ctx, nil)
	}
	txOpts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return uc.tm.WithTx(ctx, txOpts, fn)
}

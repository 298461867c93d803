package repository

import (
	"context"

	"magical-academy/internal/domain/model"
)

// JobRepository keeps an audit trail of job lifecycles. The poller never
// reads from it.
type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// ListByThread returns the jobs of a thread, newest first.
	ListByThread(ctx context.Context, tx Tx, threadID string, limit int) ([]*model.Job, error)
}

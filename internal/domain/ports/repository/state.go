package repository

import (
	"context"
)

// ThreadStore persists the advisory "last thread id" per tutoring session.
// A stored id may be stale; callers fall back to a new job when the
// provider rejects it.
type ThreadStore interface {
	GetThreadID(ctx context.Context, sessionID string) (string, error)
	SetThreadID(ctx context.Context, sessionID, threadID string) error
	ClearThreadID(ctx context.Context, sessionID string) error
}

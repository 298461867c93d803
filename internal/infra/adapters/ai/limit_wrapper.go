package ai

import (
	"context"

	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.JobClient = (*limitedJobClient)(nil)

// limitedJobClient caps the number of concurrent remote calls. A caller
// blocked on the semaphore gives up when its context ends.
type limitedJobClient struct {
	inner adapter.JobClient
	sem   chan struct{}
}

func NewLimitedJobClient(inner adapter.JobClient, maxConcurrent int) adapter.JobClient {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedJobClient{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedJobClient) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedJobClient) release() { <-l.sem }

func (l *limitedJobClient) SubmitJob(ctx context.Context, initial model.Message, params model.SubmitParams) (model.JobRef, error) {
	if err := l.acquire(ctx); err != nil {
		return model.JobRef{}, err
	}
	defer l.release()
	return l.inner.SubmitJob(ctx, initial, params)
}

// AppendMessages holds one slot for the whole batch; the inner fan-out is
// not counted per message.
func (l *limitedJobClient) AppendMessages(ctx context.Context, threadID string, msgs ...model.Message) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return l.inner.AppendMessages(ctx, threadID, msgs...)
}

func (l *limitedJobClient) StartRun(ctx context.Context, threadID string) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer l.release()
	return l.inner.StartRun(ctx, threadID)
}

func (l *limitedJobClient) FetchStatus(ctx context.Context, ref model.JobRef) (model.RunStatus, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer l.release()
	return l.inner.FetchStatus(ctx, ref)
}

func (l *limitedJobClient) FetchLatestRunStatus(ctx context.Context, threadID string) (model.JobRef, model.RunStatus, error) {
	if err := l.acquire(ctx); err != nil {
		return model.JobRef{}, "", err
	}
	defer l.release()
	return l.inner.FetchLatestRunStatus(ctx, threadID)
}

func (l *limitedJobClient) FetchLatestResponderMessage(ctx context.Context, threadID string) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer l.release()
	return l.inner.FetchLatestResponderMessage(ctx, threadID)
}

package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/adapter"
)

var _ adapter.JobClient = (*NoopJobClient)(nil)

// NoopJobClient is an in-memory JobClient for local/dev runs and tests.
// Every run walks through Statuses (the last entry repeats) and, once
// completed, the thread answers with Reply.
type NoopJobClient struct {
	Statuses []model.RunStatus
	Reply    string
	Delay    time.Duration // simulated latency per call

	mu       sync.Mutex
	seq      int
	checks   map[string]int
	messages map[string][]model.Message
	lastRun  map[string]string
}

// NewNoopJobClient returns a client whose runs complete on the second check.
func NewNoopJobClient(reply string) *NoopJobClient {
	return &NoopJobClient{
		Statuses: []model.RunStatus{model.RunStatusInProgress, model.RunStatusCompleted},
		Reply:    reply,
	}
}

func (n *NoopJobClient) wait(ctx context.Context) error {
	if n.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(n.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *NoopJobClient) ensureInit() {
	if n.checks == nil {
		n.checks = map[string]int{}
		n.messages = map[string][]model.Message{}
		n.lastRun = map[string]string{}
	}
}

func (n *NoopJobClient) SubmitJob(ctx context.Context, initial model.Message, params model.SubmitParams) (model.JobRef, error) {
	if err := n.wait(ctx); err != nil {
		return model.JobRef{}, err
	}
	if initial.Content == "" {
		initial = model.UserMessage(params.Prompt())
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ensureInit()
	n.seq++
	ref := model.JobRef{ThreadID: fmt.Sprintf("thread_noop_%d", n.seq), RunID: fmt.Sprintf("run_noop_%d", n.seq)}
	n.messages[ref.ThreadID] = []model.Message{initial}
	n.lastRun[ref.ThreadID] = ref.RunID
	return ref, nil
}

func (n *NoopJobClient) AppendMessages(ctx context.Context, threadID string, msgs ...model.Message) error {
	if err := n.wait(ctx); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ensureInit()
	if _, ok := n.messages[threadID]; !ok {
		return &domain.BadResponseError{Op: "append", StatusCode: 404, Body: "no thread " + threadID}
	}
	n.messages[threadID] = append(n.messages[threadID], msgs...)
	return nil
}

func (n *NoopJobClient) StartRun(ctx context.Context, threadID string) (string, error) {
	if err := n.wait(ctx); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ensureInit()
	if _, ok := n.messages[threadID]; !ok {
		return "", &domain.BadResponseError{Op: "start_run", StatusCode: 404, Body: "no thread " + threadID}
	}
	n.seq++
	runID := fmt.Sprintf("run_noop_%d", n.seq)
	n.lastRun[threadID] = runID
	return runID, nil
}

func (n *NoopJobClient) FetchStatus(ctx context.Context, ref model.JobRef) (model.RunStatus, error) {
	if err := n.wait(ctx); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ensureInit()
	i := n.checks[ref.Key()]
	n.checks[ref.Key()] = i + 1
	return n.statusAt(i), nil
}

func (n *NoopJobClient) statusAt(i int) model.RunStatus {
	if len(n.Statuses) == 0 {
		return model.RunStatusCompleted
	}
	if i >= len(n.Statuses) {
		i = len(n.Statuses) - 1
	}
	return n.Statuses[i]
}

func (n *NoopJobClient) FetchLatestRunStatus(ctx context.Context, threadID string) (model.JobRef, model.RunStatus, error) {
	if err := n.wait(ctx); err != nil {
		return model.JobRef{}, "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ensureInit()
	runID, ok := n.lastRun[threadID]
	if !ok {
		return model.JobRef{}, "", fmt.Errorf("latest run for thread %s: %w", threadID, domain.ErrNotFound)
	}
	ref := model.JobRef{ThreadID: threadID, RunID: runID}
	return ref, n.statusAt(max(n.checks[ref.Key()]-1, 0)), nil
}

func (n *NoopJobClient) FetchLatestResponderMessage(ctx context.Context, threadID string) (string, error) {
	if err := n.wait(ctx); err != nil {
		return "", err
	}
	if n.Reply == "" {
		return "", &domain.NoResponderMessageError{ThreadID: threadID}
	}
	return n.Reply, nil
}

// Messages returns a copy of what was posted to threadID.
func (n *NoopJobClient) Messages(threadID string) []model.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Message(nil), n.messages[threadID]...)
}

package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v4"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/repository"
)

// ---- Fakes ----

type fakeJobs struct {
	mu sync.Mutex

	submitRef   model.JobRef
	submitErr   error
	appendErr   error
	startRunID  string
	startErr    error
	reply       string
	replyErr    error
	submitCalls int
	appendCalls int
	startCalls  int
	fetchCalls  int
	lastParams  model.SubmitParams

	// latestStatus is reported for every thread; empty means no runs yet.
	latestStatus model.RunStatus
	latestErr    error
	latestCalls  int
}

func (f *fakeJobs) SubmitJob(ctx context.Context, initial model.Message, params model.SubmitParams) (model.JobRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastParams = params
	return f.submitRef, f.submitErr
}

func (f *fakeJobs) AppendMessages(ctx context.Context, threadID string, msgs ...model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	return f.appendErr
}

func (f *fakeJobs) StartRun(ctx context.Context, threadID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startRunID, f.startErr
}

func (f *fakeJobs) FetchStatus(ctx context.Context, ref model.JobRef) (model.RunStatus, error) {
	return model.RunStatusCompleted, nil
}

func (f *fakeJobs) FetchLatestRunStatus(ctx context.Context, threadID string) (model.JobRef, model.RunStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	if f.latestErr != nil {
		return model.JobRef{}, "", f.latestErr
	}
	if f.latestStatus == "" {
		return model.JobRef{}, "", domain.ErrNotFound
	}
	return model.JobRef{ThreadID: threadID, RunID: "run_prev"}, f.latestStatus, nil
}

func (f *fakeJobs) FetchLatestResponderMessage(ctx context.Context, threadID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	return f.reply, f.replyErr
}

type fakePoller struct {
	out   model.PollOutcome
	err   error
	calls []model.JobRef
}

func (p *fakePoller) Poll(ctx context.Context, ref model.JobRef) (model.PollOutcome, error) {
	p.calls = append(p.calls, ref)
	out := p.out
	out.Ref = ref
	if p.err == nil && out.Status == "" {
		out.Status = model.RunStatusCompleted
	}
	return out, p.err
}

type memJobRepo struct {
	mu    sync.Mutex
	byID  map[string]model.Job
	saves int
	err   error
	// reads records the tx handle of every read.
	reads []repository.Tx
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{byID: map[string]model.Job{}} }

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.byID[job.ID] = *job
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, tx)
	j, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &j, nil
}

func (m *memJobRepo) ListByThread(ctx context.Context, tx repository.Tx, threadID string, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, tx)
	var out []*model.Job
	for _, j := range m.byID {
		if j.Ref.ThreadID == threadID {
			cp := j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeTx struct{}

type fakeTxManager struct {
	opts  []pgx.TxOptions
	calls int
}

func (m *fakeTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.calls++
	m.opts = append(m.opts, txOpt)
	return fn(ctx, fakeTx{})
}

type memThreadStore struct {
	mu     sync.Mutex
	m      map[string]string
	getErr error
	setErr error
}

func newMemThreadStore() *memThreadStore { return &memThreadStore{m: map[string]string{}} }

func (s *memThreadStore) GetThreadID(ctx context.Context, sessionID string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tid, ok := s.m[sessionID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return tid, nil
}

func (s *memThreadStore) SetThreadID(ctx context.Context, sessionID, threadID string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sessionID] = threadID
	return nil
}

func (s *memThreadStore) ClearThreadID(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, sessionID)
	return nil
}

type scriptedChat struct {
	replies []string
	err     error
	calls   [][]model.Message
}

func (c *scriptedChat) Chat(ctx context.Context, modelName string, messages []model.Message) (string, error) {
	c.calls = append(c.calls, messages)
	if c.err != nil {
		return "", c.err
	}
	if len(c.calls) > len(c.replies) {
		return "", errors.New("unexpected chat call")
	}
	return c.replies[len(c.calls)-1], nil
}

func (c *scriptedChat) CountTokens(ctx context.Context, modelName string, messages []model.Message) (int, error) {
	return len(messages), nil
}

type fakeMedia struct {
	urls  []string
	audio []byte
	err   error
	last  string
}

func (m *fakeMedia) GenerateImages(ctx context.Context, prompt string) ([]string, error) {
	m.last = prompt
	return m.urls, m.err
}

func (m *fakeMedia) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	m.last = text
	return m.audio, m.err
}

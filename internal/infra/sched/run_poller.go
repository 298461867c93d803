package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/adapter"
	"magical-academy/internal/infra/metrics"
)

const (
	DefaultInterval  = 2 * time.Second
	DefaultMaxChecks = 30
)

// TransitionFunc observes every state change of a polled job.
type TransitionFunc func(ref model.JobRef, from, to model.RunStatus)

// SleepFunc suspends for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Config struct {
	Interval  time.Duration
	MaxChecks int
}

type Outcome = model.PollOutcome

// RunPoller drives jobs to a terminal status with a bounded number of
// status checks. One instance may poll many jobs concurrently but never
// the same job twice at once.
type RunPoller struct {
	fetcher      adapter.StatusFetcher
	interval     time.Duration
	maxChecks    int
	sleep        SleepFunc
	onTransition TransitionFunc
	log          *zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type Option func(*RunPoller)

func WithSleep(fn SleepFunc) Option {
	return func(p *RunPoller) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

func WithTransitionHook(fn TransitionFunc) Option {
	return func(p *RunPoller) { p.onTransition = fn }
}

func NewRunPoller(fetcher adapter.StatusFetcher, cfg Config, logger *zerolog.Logger, opts ...Option) *RunPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxChecks <= 0 {
		cfg.MaxChecks = DefaultMaxChecks
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	compLog := logger.With().Str("component", "RunPoller").Logger()
	p := &RunPoller{
		fetcher:   fetcher,
		interval:  cfg.Interval,
		maxChecks: cfg.MaxChecks,
		sleep:     timerSleep,
		log:       &compLog,
		inFlight:  make(map[string]struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func timerSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *RunPoller) acquire(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[key]; busy {
		return false
	}
	p.inFlight[key] = struct{}{}
	return true
}

func (p *RunPoller) release(key string) {
	p.mu.Lock()
	delete(p.inFlight, key)
	p.mu.Unlock()
}

type checkResult struct {
	status model.RunStatus
	err    error
}

// Poll checks the job immediately and then every Interval until it is
// terminal or MaxChecks checks have been issued. Cancelling ctx stops
// further checks; a check already in flight runs to completion in the
// background and its result is dropped. The job stays locked until that
// check returns.
func (p *RunPoller) Poll(ctx context.Context, ref model.JobRef) (Outcome, error) {
	out := Outcome{Ref: ref, Status: model.RunStatusPending}
	if !ref.Valid() {
		return out, fmt.Errorf("poll: %w: incomplete job ref", domain.ErrInvalidArgument)
	}
	key := ref.Key()
	if !p.acquire(key) {
		return out, fmt.Errorf("poll %s: %w", key, domain.ErrPollInFlight)
	}
	detached := false
	defer func() {
		if !detached {
			p.release(key)
		}
	}()

	log := p.log.With().Str("thread_id", ref.ThreadID).Str("run_id", ref.RunID).Logger()
	start := time.Now()
	// The check itself survives cancellation; only scheduling stops.
	fetchCtx := context.WithoutCancel(ctx)

	finish := func(status model.RunStatus, outcome string, err error) (Outcome, error) {
		out.Elapsed = time.Since(start)
		if status != out.Status {
			p.transition(&log, ref, out.Status, status)
			out.Status = status
		}
		metrics.ObservePollChecks(outcome, out.Checks)
		if err != nil {
			log.Debug().Err(err).Int("checks", out.Checks).Str("outcome", outcome).Msg("poll ended")
		} else {
			log.Debug().Int("checks", out.Checks).Dur("elapsed", out.Elapsed).Msg("poll completed")
		}
		return out, err
	}
	cancelled := func() (Outcome, error) {
		out.Elapsed = time.Since(start)
		metrics.ObservePollChecks("cancelled", out.Checks)
		log.Debug().Int("checks", out.Checks).Msg("poll cancelled")
		return out, fmt.Errorf("poll %s: %w", key, domain.ErrPollCancelled)
	}

	for out.Checks < p.maxChecks {
		if out.Checks > 0 {
			if err := p.sleep(ctx, p.interval); err != nil {
				return cancelled()
			}
		}
		if ctx.Err() != nil {
			return cancelled()
		}

		p.transition(&log, ref, out.Status, model.RunStatusChecking)
		out.Status = model.RunStatusChecking
		out.Checks++

		ch := make(chan checkResult, 1)
		go func() {
			st, err := p.fetcher.FetchStatus(fetchCtx, ref)
			ch <- checkResult{status: st, err: err}
		}()

		var res checkResult
		select {
		case res = <-ch:
		case <-ctx.Done():
			detached = true
			go func() {
				<-ch
				p.release(key)
			}()
			return cancelled()
		}
		if ctx.Err() != nil {
			return cancelled()
		}

		switch {
		case res.err != nil:
			return finish(model.RunStatusFailed, "error", res.err)
		case res.status == model.RunStatusCompleted:
			return finish(model.RunStatusCompleted, "completed", nil)
		case res.status == model.RunStatusFailed:
			return finish(model.RunStatusFailed, "failed", fmt.Errorf("run %s: %w", key, domain.ErrRunFailed))
		}
		p.transition(&log, ref, out.Status, res.status)
		out.Status = res.status
	}

	return finish(model.RunStatusFailed, "timeout", &domain.TimeoutError{Checks: out.Checks, LastStatus: string(out.Status)})
}

func (p *RunPoller) transition(log *zerolog.Logger, ref model.JobRef, from, to model.RunStatus) {
	metrics.IncPollTransition(string(to))
	log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("run transition")
	if p.onTransition != nil {
		p.onTransition(ref, from, to)
	}
}

// Handle is an asynchronous poll started with Start.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	out Outcome
	err error
}

// Start runs Poll in its own goroutine.
func (p *RunPoller) Start(ctx context.Context, ref model.JobRef) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		h.out, h.err = p.Poll(ctx, ref)
	}()
	return h
}

// Cancel stops scheduling further checks. It is safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Result blocks until the poll ends.
func (h *Handle) Result() (Outcome, error) {
	<-h.done
	return h.out, h.err
}

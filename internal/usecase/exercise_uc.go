package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/adapter"
	"magical-academy/internal/domain/ports/repository"
	"magical-academy/internal/infra/logging"
	"magical-academy/internal/infra/metrics"
)

// Compile-time check
var _ ExerciseUseCase = (*exerciseUC)(nil)

// ErrThreadBusy means the thread's latest run has not finished, so it
// cannot take another message yet.
var ErrThreadBusy = errors.New("thread has an active run")

// RunPoller waits for a submitted run to reach a terminal status.
type RunPoller interface {
	Poll(ctx context.Context, ref model.JobRef) (model.PollOutcome, error)
}

type ExerciseUseCase interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	GeneratePlainText(ctx context.Context, params model.SubmitParams) (*GenerateResult, error)
	Evaluate(ctx context.Context, req EvaluateRequest) EvaluateResult
}

type GenerateRequest struct {
	Params model.SubmitParams
	// ThreadID is advisory: when the thread cannot be continued a new job
	// is submitted instead.
	ThreadID string
	Mode     ParseMode
}

type GenerateResult struct {
	Exercise model.ExerciseResult
	ThreadID string
	RunID    string
	Options  []int
	Checks   int
}

type EvaluateRequest struct {
	Answer     int
	Correct    int
	Elapsed    time.Duration
	Difficulty int
}

type EvaluateResult struct {
	Correct        bool
	NextDifficulty int
}

const (
	tutorExercisePrompt = "Create the exercise."
	tutorSolutionPrompt = "Return only the numerical solution for the problem."
)

type exerciseUC struct {
	jobs      adapter.JobClient
	poller    RunPoller
	chat      adapter.ChatCompleter
	chatModel string
	audit     repository.JobRepository
	rng       *rand.Rand
	log       *zerolog.Logger
}

type ExerciseOption func(*exerciseUC)

// WithChat enables GeneratePlainText.
func WithChat(chat adapter.ChatCompleter, modelName string) ExerciseOption {
	return func(uc *exerciseUC) {
		uc.chat = chat
		uc.chatModel = modelName
	}
}

// WithJobAudit records every job's lifecycle. Audit write failures are
// logged and never fail the request.
func WithJobAudit(repo repository.JobRepository) ExerciseOption {
	return func(uc *exerciseUC) { uc.audit = repo }
}

// WithRand fixes the source used to shuffle answer options.
func WithRand(r *rand.Rand) ExerciseOption {
	return func(uc *exerciseUC) { uc.rng = r }
}

func NewExerciseUseCase(jobs adapter.JobClient, poller RunPoller, logger *zerolog.Logger, opts ...ExerciseOption) *exerciseUC {
	if logger == nil {
		logger = logging.Nop()
	}
	compLog := logger.With().Str("component", "ExerciseUseCase").Logger()
	uc := &exerciseUC{jobs: jobs, poller: poller, log: &compLog}
	for _, o := range opts {
		o(uc)
	}
	return uc
}

func (uc *exerciseUC) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	defer logging.TraceDuration(uc.log, "ExerciseUC.Generate")()
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}
	log := logging.With(ctx, uc.log)

	ref, err := uc.start(ctx, req, log)
	if err != nil {
		metrics.IncJob("submit_failed")
		return nil, err
	}
	metrics.IncJob("submitted")
	job := model.NewJob(ref)
	uc.record(ctx, job, log)

	out, err := uc.poller.Poll(ctx, ref)
	if err != nil {
		label := "failed"
		switch {
		case errors.Is(err, domain.ErrPollCancelled):
			label = "cancelled"
		case isTimeout(err):
			label = "timeout"
		}
		job.Finish(model.RunStatusFailed, out.Checks, err)
		uc.record(ctx, job, log)
		metrics.IncJob(label)
		log.Warn().Err(err).Str("thread_id", ref.ThreadID).Str("run_id", ref.RunID).Int("checks", out.Checks).Msg("run did not complete")
		return nil, err
	}

	content, err := uc.jobs.FetchLatestResponderMessage(ctx, ref.ThreadID)
	if err != nil {
		job.Finish(model.RunStatusCompleted, out.Checks, err)
		uc.record(ctx, job, log)
		metrics.IncJob("no_result")
		return nil, err
	}

	ex, err := ParseContent(content, req.Mode)
	job.Finish(model.RunStatusCompleted, out.Checks, err)
	uc.record(ctx, job, log)
	if err != nil {
		metrics.IncJob("parse_failed")
		log.Warn().Err(err).Str("thread_id", ref.ThreadID).Str("mode", req.Mode.String()).
			Str("content", logging.Redact(content, false)).Msg("responder message not parseable")
		return nil, err
	}
	metrics.IncJob("completed")

	return &GenerateResult{
		Exercise: ex,
		ThreadID: ref.ThreadID,
		RunID:    ref.RunID,
		Options:  model.Options(ex.Answer, uc.rng),
		Checks:   out.Checks,
	}, nil
}

// start continues req.ThreadID when given, falling back to a fresh job if
// the thread cannot take another run.
func (uc *exerciseUC) start(ctx context.Context, req GenerateRequest, log *zerolog.Logger) (model.JobRef, error) {
	if tid := strings.TrimSpace(req.ThreadID); tid != "" {
		ref, err := uc.continueThread(ctx, tid, req.Params)
		if err == nil {
			return ref, nil
		}
		if ctx.Err() != nil {
			return model.JobRef{}, ctx.Err()
		}
		log.Warn().Err(err).Str("thread_id", tid).Msg("cannot continue thread; submitting a new job")
	}
	return uc.jobs.SubmitJob(ctx, model.Message{}, req.Params)
}

func (uc *exerciseUC) continueThread(ctx context.Context, threadID string, params model.SubmitParams) (model.JobRef, error) {
	// The provider rejects appends while a run on the thread is still active.
	latest, status, err := uc.jobs.FetchLatestRunStatus(ctx, threadID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return model.JobRef{}, err
	case !status.Terminal():
		return model.JobRef{}, fmt.Errorf("thread %s: run %s is %s: %w", threadID, latest.RunID, status, ErrThreadBusy)
	}
	if err := uc.jobs.AppendMessages(ctx, threadID, model.UserMessage(params.Prompt())); err != nil {
		return model.JobRef{}, err
	}
	runID, err := uc.jobs.StartRun(ctx, threadID)
	if err != nil {
		return model.JobRef{}, err
	}
	return model.JobRef{ThreadID: threadID, RunID: runID}, nil
}

func (uc *exerciseUC) record(ctx context.Context, job *model.Job, log *zerolog.Logger) {
	if uc.audit == nil {
		return
	}
	if err := uc.audit.Save(ctx, nil, job); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("job audit write failed")
	}
}

// GeneratePlainText asks the chat model for a word problem, then asks again
// for just its solution.
func (uc *exerciseUC) GeneratePlainText(ctx context.Context, params model.SubmitParams) (*GenerateResult, error) {
	if uc.chat == nil {
		return nil, fmt.Errorf("plain text generation: %w: no chat provider", domain.ErrInvalidArgument)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	problem, err := uc.chat.Chat(ctx, uc.chatModel, []model.Message{
		model.SystemMessage(tutorPrompt(params)),
		model.UserMessage(tutorExercisePrompt),
	})
	if err != nil {
		return nil, fmt.Errorf("generate exercise: %w", err)
	}
	problem = strings.TrimSpace(problem)

	solution, err := uc.chat.Chat(ctx, uc.chatModel, []model.Message{
		model.SystemMessage(tutorSolutionPrompt),
		model.UserMessage(problem),
	})
	if err != nil {
		return nil, fmt.Errorf("solve exercise: %w", err)
	}
	n, ok := ExtractFirstInteger(solution)
	if !ok {
		return nil, &domain.ParseError{Op: "solve_exercise", Raw: solution, Err: errors.New("no integer found")}
	}

	ex := model.ExerciseResult{Exercise: problem, Answer: n}
	return &GenerateResult{Exercise: ex, Options: model.Options(n, uc.rng)}, nil
}

func (uc *exerciseUC) Evaluate(ctx context.Context, req EvaluateRequest) EvaluateResult {
	correct := req.Answer == req.Correct
	next := model.AdjustDifficulty(req.Difficulty, correct, req.Elapsed)
	logging.With(ctx, uc.log).Debug().Bool("correct", correct).Dur("elapsed", req.Elapsed).
		Int("difficulty", req.Difficulty).Int("next_difficulty", next).Msg("answer evaluated")
	return EvaluateResult{Correct: correct, NextDifficulty: next}
}

func tutorPrompt(p model.SubmitParams) string {
	return fmt.Sprintf(`You are a friendly math tutor specializing in teaching young children,
specifically %[1]d-year-olds, the basics of arithmetic in a fun and engaging way.
Your goal is to create a simple and enjoyable arithmetic exercise
that helps a %[1]d-year-old understand age-appropriate arithmetic.
The exercise should involve arithmetic of two small numbers,
and it should be framed in a playful scenario that would appeal to a young child's imagination.
The problem will vary in difficulty but even the highest difficulty should be appropriate for a small child.
Please set the difficulty to %[2]d. Only reply with the problem itself and nothing else.`, p.Age, p.Difficulty)
}

func isTimeout(err error) bool {
	var te *domain.TimeoutError
	return errors.As(err, &te)
}

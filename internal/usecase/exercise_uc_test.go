package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/model"
	ai "magical-academy/internal/infra/adapters/ai"
	"magical-academy/internal/infra/sched"
)

var farmParams = model.SubmitParams{Age: 4, Difficulty: 1, Scenario: "Farm", Character: "Astronaut"}

func TestGenerate_NewJob(t *testing.T) {
	jobs := &fakeJobs{
		submitRef: model.JobRef{ThreadID: "t1", RunID: "r1"},
		reply:     `{"exercise":"2+2","answer":"4"}`,
	}
	poller := &fakePoller{out: model.PollOutcome{Checks: 2}}
	audit := newMemJobRepo()
	uc := NewExerciseUseCase(jobs, poller, nil, WithJobAudit(audit), WithRand(rand.New(rand.NewPCG(1, 2))))

	res, err := uc.Generate(context.Background(), GenerateRequest{Params: farmParams})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.ThreadID != "t1" || res.RunID != "r1" || res.Checks != 2 {
		t.Errorf("unexpected ids %+v", res)
	}
	if res.Exercise != (model.ExerciseResult{Exercise: "2+2", Answer: 4}) {
		t.Errorf("unexpected exercise %+v", res.Exercise)
	}
	if len(res.Options) != 3 {
		t.Fatalf("expected 3 options, got %v", res.Options)
	}
	found := false
	for _, o := range res.Options {
		if o == 4 {
			found = true
		}
	}
	if !found {
		t.Errorf("options %v must contain the answer", res.Options)
	}
	if jobs.submitCalls != 1 || jobs.appendCalls != 0 || jobs.fetchCalls != 1 {
		t.Errorf("unexpected call counts submit=%d append=%d fetch=%d", jobs.submitCalls, jobs.appendCalls, jobs.fetchCalls)
	}
	if jobs.lastParams != farmParams {
		t.Errorf("params not forwarded: %+v", jobs.lastParams)
	}

	if audit.saves != 2 {
		t.Errorf("expected create and finish audit writes, got %d", audit.saves)
	}
	for _, j := range audit.byID {
		if j.Status != model.RunStatusCompleted || j.Checks != 2 || j.LastError != "" {
			t.Errorf("unexpected audited job %+v", j)
		}
	}
}

func TestGenerate_ContinuesThread(t *testing.T) {
	jobs := &fakeJobs{startRunID: "r2", reply: `{"exercise":"1+1","answer":"2"}`}
	poller := &fakePoller{}
	uc := NewExerciseUseCase(jobs, poller, nil)

	res, err := uc.Generate(context.Background(), GenerateRequest{Params: farmParams, ThreadID: "t1"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.ThreadID != "t1" || res.RunID != "r2" {
		t.Errorf("unexpected ref %+v", res)
	}
	if jobs.submitCalls != 0 || jobs.appendCalls != 1 || jobs.startCalls != 1 {
		t.Errorf("unexpected calls submit=%d append=%d start=%d", jobs.submitCalls, jobs.appendCalls, jobs.startCalls)
	}
	if len(poller.calls) != 1 || poller.calls[0] != (model.JobRef{ThreadID: "t1", RunID: "r2"}) {
		t.Errorf("unexpected polls %v", poller.calls)
	}
}

func TestGenerate_FallsBackToNewJobWhenThreadIsGone(t *testing.T) {
	jobs := &fakeJobs{
		appendErr: &domain.BadResponseError{Op: "append", StatusCode: 404},
		submitRef: model.JobRef{ThreadID: "t9", RunID: "r9"},
		reply:     `{"exercise":"3+3","answer":"6"}`,
	}
	uc := NewExerciseUseCase(jobs, &fakePoller{}, nil)

	res, err := uc.Generate(context.Background(), GenerateRequest{Params: farmParams, ThreadID: "stale"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.ThreadID != "t9" || jobs.submitCalls != 1 || jobs.startCalls != 0 {
		t.Errorf("expected fallback submit, got %+v (submit=%d start=%d)", res, jobs.submitCalls, jobs.startCalls)
	}
}

func TestGenerate_ActiveRunOnThread(t *testing.T) {
	cases := []struct {
		name       string
		status     model.RunStatus
		latestErr  error
		wantThread string
	}{
		{"previous run finished", model.RunStatusCompleted, nil, "t1"},
		{"previous run failed", model.RunStatusFailed, nil, "t1"},
		{"previous run in progress", model.RunStatusInProgress, nil, "t9"},
		{"previous run queued", model.RunStatusQueued, nil, "t9"},
		{"latest run lookup failed", "", &domain.TransportError{Op: "latest_run", Err: errors.New("reset")}, "t9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jobs := &fakeJobs{
				latestStatus: tc.status,
				latestErr:    tc.latestErr,
				startRunID:   "r2",
				submitRef:    model.JobRef{ThreadID: "t9", RunID: "r9"},
				reply:        `{"exercise":"4+4","answer":"8"}`,
			}
			uc := NewExerciseUseCase(jobs, &fakePoller{}, nil)

			res, err := uc.Generate(context.Background(), GenerateRequest{Params: farmParams, ThreadID: "t1"})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if res.ThreadID != tc.wantThread {
				t.Errorf("thread = %q, want %q", res.ThreadID, tc.wantThread)
			}
			if jobs.latestCalls != 1 {
				t.Errorf("latest run checked %d times, want 1", jobs.latestCalls)
			}
			if tc.wantThread == "t9" && jobs.appendCalls != 0 {
				t.Errorf("appended to a thread that cannot take messages")
			}
		})
	}
}

func TestGenerate_Failures(t *testing.T) {
	ref := model.JobRef{ThreadID: "t1", RunID: "r1"}

	t.Run("invalid params", func(t *testing.T) {
		jobs := &fakeJobs{}
		uc := NewExerciseUseCase(jobs, &fakePoller{}, nil)
		_, err := uc.Generate(context.Background(), GenerateRequest{Params: model.SubmitParams{Age: 0, Difficulty: 1}})
		if !errors.Is(err, domain.ErrInvalidArgument) || jobs.submitCalls != 0 {
			t.Fatalf("expected ErrInvalidArgument without remote calls, got %v", err)
		}
	})

	t.Run("submit error surfaces unchanged", func(t *testing.T) {
		terr := &domain.TransportError{Op: "submit", Err: errors.New("dial")}
		uc := NewExerciseUseCase(&fakeJobs{submitErr: terr}, &fakePoller{}, nil)
		_, err := uc.Generate(context.Background(), GenerateRequest{Params: farmParams})
		if !errors.Is(err, terr) {
			t.Fatalf("expected transport error, got %v", err)
		}
	})

	t.Run("timeout skips result fetch", func(t *testing.T) {
		jobs := &fakeJobs{submitRef: ref}
		audit := newMemJobRepo()
		poller := &fakePoller{out: model.PollOutcome{Status: model.RunStatusFailed, Checks: 30}, err: &domain.TimeoutError{Checks: 30, LastStatus: "in_progress"}}
		uc := NewExerciseUseCase(jobs, poller, nil, WithJobAudit(audit))
		_, err := uc.Generate(context.Background(), GenerateRequest{Params: farmParams})
		var te *domain.TimeoutError
		if !errors.As(err, &te) {
			t.Fatalf("expected TimeoutError, got %v", err)
		}
		if jobs.fetchCalls != 0 {
			t.Errorf("result must not be fetched after a timeout")
		}
		for _, j := range audit.byID {
			if j.Status != model.RunStatusFailed || j.Checks != 30 || j.LastError == "" {
				t.Errorf("unexpected audited job %+v", j)
			}
		}
	})

	t.Run("parse failure returns no value", func(t *testing.T) {
		jobs := &fakeJobs{submitRef: ref, reply: "not json"}
		uc := NewExerciseUseCase(jobs, &fakePoller{}, nil)
		res, err := uc.Generate(context.Background(), GenerateRequest{Params: farmParams})
		var perr *domain.ParseError
		if !errors.As(err, &perr) || res != nil {
			t.Fatalf("expected ParseError and nil result, got %v, %+v", err, res)
		}
	})

	t.Run("plain text mode", func(t *testing.T) {
		jobs := &fakeJobs{submitRef: ref, reply: "Farmer Astro has 5 carrots."}
		uc := NewExerciseUseCase(jobs, &fakePoller{}, nil)
		res, err := uc.Generate(context.Background(), GenerateRequest{Params: farmParams, Mode: ModePlainText})
		if err != nil || res.Exercise.Answer != 5 {
			t.Fatalf("unexpected %+v, %v", res, err)
		}
	})

	t.Run("audit failure is not fatal", func(t *testing.T) {
		jobs := &fakeJobs{submitRef: ref, reply: `{"exercise":"2+2","answer":"4"}`}
		audit := newMemJobRepo()
		audit.err = errors.New("db down")
		uc := NewExerciseUseCase(jobs, &fakePoller{}, nil, WithJobAudit(audit))
		if _, err := uc.Generate(context.Background(), GenerateRequest{Params: farmParams}); err != nil {
			t.Fatalf("audit failure leaked: %v", err)
		}
	})
}

func TestGenerate_WithRealPoller(t *testing.T) {
	client := ai.NewNoopJobClient(`{"exercise":"2+2","answer":"4"}`)
	client.Statuses = []model.RunStatus{
		model.RunStatusQueued, model.RunStatusInProgress, model.RunStatusInProgress, model.RunStatusCompleted,
	}
	poller := sched.NewRunPoller(client, sched.Config{Interval: time.Millisecond, MaxChecks: 30}, nil)
	uc := NewExerciseUseCase(client, poller, nil)

	res, err := uc.Generate(context.Background(), GenerateRequest{Params: farmParams})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Checks != 4 || res.Exercise.Answer != 4 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestGeneratePlainText(t *testing.T) {
	chat := &scriptedChat{replies: []string{"  Two cows meet three cows. How many cows?  ", "The answer is 5"}}
	uc := NewExerciseUseCase(&fakeJobs{}, &fakePoller{}, nil, WithChat(chat, "gpt-4o-mini"))

	res, err := uc.GeneratePlainText(context.Background(), farmParams)
	if err != nil {
		t.Fatalf("GeneratePlainText: %v", err)
	}
	if res.Exercise.Exercise != "Two cows meet three cows. How many cows?" || res.Exercise.Answer != 5 {
		t.Errorf("unexpected exercise %+v", res.Exercise)
	}
	if len(chat.calls) != 2 {
		t.Fatalf("expected two chat calls, got %d", len(chat.calls))
	}
	second := chat.calls[1]
	if second[0].Content != tutorSolutionPrompt || second[1].Content != res.Exercise.Exercise {
		t.Errorf("unexpected solution request %+v", second)
	}

	noNumber := &scriptedChat{replies: []string{"problem", "no idea"}}
	uc = NewExerciseUseCase(&fakeJobs{}, &fakePoller{}, nil, WithChat(noNumber, ""))
	if _, err := uc.GeneratePlainText(context.Background(), farmParams); err == nil {
		t.Fatal("expected error when the solution has no number")
	}

	uc = NewExerciseUseCase(&fakeJobs{}, &fakePoller{}, nil)
	if _, err := uc.GeneratePlainText(context.Background(), farmParams); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument without chat, got %v", err)
	}
}

func TestEvaluate(t *testing.T) {
	uc := NewExerciseUseCase(&fakeJobs{}, &fakePoller{}, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  EvaluateRequest
		want EvaluateResult
	}{
		{"quick correct", EvaluateRequest{Answer: 4, Correct: 4, Elapsed: 30 * time.Second, Difficulty: 2}, EvaluateResult{true, 3}},
		{"slow correct", EvaluateRequest{Answer: 4, Correct: 4, Elapsed: 4 * time.Minute, Difficulty: 2}, EvaluateResult{true, 1}},
		{"steady correct", EvaluateRequest{Answer: 4, Correct: 4, Elapsed: 2 * time.Minute, Difficulty: 2}, EvaluateResult{true, 2}},
		{"wrong at floor", EvaluateRequest{Answer: 3, Correct: 4, Elapsed: 10 * time.Second, Difficulty: 1}, EvaluateResult{false, 1}},
	}
	for _, tc := range cases {
		if got := uc.Evaluate(ctx, tc.req); got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

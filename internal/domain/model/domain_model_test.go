//go:build !integration

package model

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"magical-academy/internal/domain"
)

// --- Job Tests ---

func TestNormalizeRunStatus(t *testing.T) {
	cases := map[string]RunStatus{
		"completed":       RunStatusCompleted,
		"succeeded":       RunStatusCompleted,
		" In_Progress ":   RunStatusInProgress,
		"queued":          RunStatusQueued,
		"failed":          RunStatusFailed,
		"expired":         RunStatusFailed,
		"cancelled":       RunStatusFailed,
		"requires_action": RunStatus("requires_action"),
	}
	for in, want := range cases {
		if got := NormalizeRunStatus(in); got != want {
			t.Errorf("NormalizeRunStatus(%q) = %q, want %q", in, got, want)
		}
	}
	if RunStatus("requires_action").Terminal() {
		t.Error("unknown provider status must be non-terminal")
	}
	if !RunStatusCompleted.Terminal() || !RunStatusFailed.Terminal() {
		t.Error("completed and failed must be terminal")
	}
}

func TestNewJob(t *testing.T) {
	ref := JobRef{ThreadID: "t1", RunID: "r1"}
	job := NewJob(ref)
	if job.ID == "" {
		t.Fatal("expected a local job id")
	}
	if job.Status != RunStatusPending {
		t.Errorf("expected pending, got %s", job.Status)
	}
	if job.Ref.Key() != "t1/r1" {
		t.Errorf("unexpected key %q", job.Ref.Key())
	}

	job.Finish(RunStatusFailed, 4, errors.New("boom"))
	if job.Status != RunStatusFailed || job.Checks != 4 || job.LastError != "boom" {
		t.Errorf("unexpected job after Finish: %+v", job)
	}
}

// --- Exercise Tests ---

func TestSubmitParams(t *testing.T) {
	t.Run("prompt carries all parameters", func(t *testing.T) {
		p := SubmitParams{Age: 4, Difficulty: 1, Scenario: "Farm", Character: "Astronaut"}
		prompt := p.Prompt()
		for _, want := range []string{"4-year-old", "'Farm'", "'Astronaut'", "difficulty level is 1", `"answer"`} {
			if !strings.Contains(prompt, want) {
				t.Errorf("prompt missing %q:\n%s", want, prompt)
			}
		}
	})

	t.Run("invalid age is rejected", func(t *testing.T) {
		err := SubmitParams{Age: 0, Difficulty: 1}.Validate()
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("invalid difficulty is rejected", func(t *testing.T) {
		err := SubmitParams{Age: 5, Difficulty: 0}.Validate()
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestOptions(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		opts := Options(7, r)
		if len(opts) != 3 {
			t.Fatalf("expected 3 options, got %v", opts)
		}
		seen := map[int]bool{}
		hasAnswer := false
		for _, o := range opts {
			if seen[o] {
				t.Fatalf("duplicate option in %v", opts)
			}
			seen[o] = true
			if o == 7 {
				hasAnswer = true
			}
			if o < -3 || o > 17 {
				t.Fatalf("option %d outside +/-10 of answer", o)
			}
		}
		if !hasAnswer {
			t.Fatalf("correct answer missing from %v", opts)
		}
	}
}

func TestAdjustDifficulty(t *testing.T) {
	tests := []struct {
		name    string
		current int
		correct bool
		elapsed time.Duration
		want    int
	}{
		{"quick correct raises", 2, true, 30 * time.Second, 3},
		{"normal correct keeps", 2, true, 90 * time.Second, 2},
		{"slow correct lowers", 3, true, 200 * time.Second, 2},
		{"wrong lowers", 3, false, 10 * time.Second, 2},
		{"floor at one", 1, false, 10 * time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AdjustDifficulty(tt.current, tt.correct, tt.elapsed); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

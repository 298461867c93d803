package model

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"magical-academy/internal/domain"
)

// SubmitParams are the caller-chosen inputs for one exercise.
type SubmitParams struct {
	Age        int    `json:"age"`
	Difficulty int    `json:"difficulty"`
	Scenario   string `json:"scenario"`
	Character  string `json:"character"`
}

func (p SubmitParams) Validate() error {
	if p.Age <= 0 {
		return fmt.Errorf("%w: age must be positive, got %d", domain.ErrInvalidArgument, p.Age)
	}
	if p.Difficulty < MinDifficulty {
		return fmt.Errorf("%w: difficulty must be >= %d, got %d", domain.ErrInvalidArgument, MinDifficulty, p.Difficulty)
	}
	return nil
}

// Prompt renders the initial user message sent to the assistant.
func (p SubmitParams) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create an arithmetic exercise suitable for a %d-year-old child.\n", p.Age)
	if s := strings.TrimSpace(p.Scenario); s != "" {
		fmt.Fprintf(&b, "Use the setting of '%s'", s)
		if c := strings.TrimSpace(p.Character); c != "" {
			fmt.Fprintf(&b, " and include a character who is a '%s'", c)
		}
		b.WriteString(".\n")
	} else if c := strings.TrimSpace(p.Character); c != "" {
		fmt.Fprintf(&b, "Include a character who is a '%s'.\n", c)
	}
	fmt.Fprintf(&b, "The difficulty level is %d.\n", p.Difficulty)
	b.WriteString(`Reply only with a JSON object of the form {"exercise": "<text>", "answer": "<integer>"}.`)
	return b.String()
}

// ExerciseResult is a fully parsed exercise. It is never partially populated.
type ExerciseResult struct {
	Exercise string `json:"exercise"`
	Answer   int    `json:"answer"`
}

const (
	optionCount  = 3
	optionSpread = 10
)

// Options returns the correct answer plus distinct distractors within
// +/-10 of it, shuffled. A nil r uses the global source.
func Options(answer int, r *rand.Rand) []int {
	intN := rand.IntN
	shuffle := rand.Shuffle
	if r != nil {
		intN = r.IntN
		shuffle = r.Shuffle
	}

	opts := []int{answer}
	for len(opts) < optionCount {
		cand := answer + intN(2*optionSpread+1) - optionSpread
		dup := false
		for _, o := range opts {
			if o == cand {
				dup = true
				break
			}
		}
		if !dup {
			opts = append(opts, cand)
		}
	}
	shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	return opts
}

const (
	MinDifficulty = 1

	quickAnswer = 60 * time.Second
	slowAnswer  = 180 * time.Second
)

// AdjustDifficulty returns the next difficulty after an answer: a quick
// correct answer raises it, a wrong or slow one lowers it (never below 1).
func AdjustDifficulty(current int, correct bool, elapsed time.Duration) int {
	if current < MinDifficulty {
		current = MinDifficulty
	}
	switch {
	case correct && elapsed < quickAnswer:
		return current + 1
	case !correct || elapsed > slowAnswer:
		return max(current-1, MinDifficulty)
	default:
		return current
	}
}

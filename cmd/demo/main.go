// Command demo generates one exercise end to end and prints it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"magical-academy/internal/config"
	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/adapter"
	aiAdapters "magical-academy/internal/infra/adapters/ai"
	"magical-academy/internal/infra/logging"
	"magical-academy/internal/infra/sched"
	"magical-academy/internal/usecase"
)

const demoReply = "```json\n{\"exercise\": \"Three pirates each find 2 shells on the beach. How many shells did they find?\", \"answer\": \"6\"}\n```"

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	dev := flag.Bool("dev", false, "use the in-memory job client")
	age := flag.Int("age", 6, "learner age")
	difficulty := flag.Int("difficulty", 1, "difficulty level")
	scenario := flag.String("scenario", "", "story setting, e.g. 'a pirate ship'")
	character := flag.String("character", "", "character in the story, e.g. 'a dragon'")
	plain := flag.Bool("plain", false, "parse the assistant reply as plain text")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var jobs adapter.JobClient
	if cfg.Runtime.Dev {
		jobs = aiAdapters.NewNoopJobClient(demoReply)
	} else {
		jobs, err = aiAdapters.NewAssistantClient(cfg.AI.OpenAIKey, cfg.AI.AssistantID,
			aiAdapters.WithBaseURL(cfg.AI.BaseURL),
			aiAdapters.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("assistant client")
		}
	}

	// Print every state change so the polling is visible.
	poller := sched.NewRunPoller(jobs, sched.Config{Interval: cfg.Poll.Interval, MaxChecks: cfg.Poll.MaxChecks}, logger,
		sched.WithTransitionHook(func(ref model.JobRef, from, to model.RunStatus) {
			fmt.Fprintf(os.Stderr, "run %s: %s -> %s\n", ref.RunID, from, to)
		}))
	uc := usecase.NewExerciseUseCase(jobs, poller, logger)

	mode := usecase.ModeStructured
	if *plain {
		mode = usecase.ModePlainText
	}
	res, err := uc.Generate(ctx, usecase.GenerateRequest{
		Params: model.SubmitParams{
			Age:        *age,
			Difficulty: *difficulty,
			Scenario:   *scenario,
			Character:  *character,
		},
		Mode: mode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("generate exercise")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"exercise":  res.Exercise.Exercise,
		"answer":    res.Exercise.Answer,
		"options":   res.Options,
		"thread_id": res.ThreadID,
		"run_id":    res.RunID,
		"checks":    res.Checks,
	})
}

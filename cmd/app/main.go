package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"magical-academy/internal/config"
	"magical-academy/internal/domain/ports/adapter"
	"magical-academy/internal/domain/ports/repository"
	aiAdapters "magical-academy/internal/infra/adapters/ai"
	pg "magical-academy/internal/infra/db/postgres"
	"magical-academy/internal/infra/httpapi"
	"magical-academy/internal/infra/logging"
	"magical-academy/internal/infra/metrics"
	red "magical-academy/internal/infra/redis"
	"magical-academy/internal/infra/sched"
	"magical-academy/internal/infra/telemetry"
	"magical-academy/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

const devReply = `{"exercise": "A little dragon has 2 gold coins and finds 3 more. How many coins does it have now?", "answer": "5"}`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "use the in-memory job client; no provider credentials needed")
	mintFor := flag.String("mint-token", "", "print a bearer token for this session id and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if *mintFor != "" {
		if cfg.HTTP.JWTSecret == "" {
			logger.Fatal().Msg("http.jwt_secret (or TUTOR_JWT_SECRET) is required to mint tokens")
		}
		tok, err := httpapi.NewAuthManager(cfg.HTTP.JWTSecret, cfg.HTTP.TokenTTL).Mint(*mintFor)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint token")
		}
		fmt.Println(tok)
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("app stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Telemetry / metrics ----
	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	health := map[string]httpapi.HealthCheck{}

	// ---- Postgres (optional job audit) ----
	var (
		audit repository.JobRepository
		txm   repository.TransactionManager
	)
	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		audit = pg.NewJobRepo(pool)
		txm = pg.NewTxManager(pool)
		health["postgres"] = pool.Ping
		logger.Info().Msg("job audit: postgres")
	}

	// ---- Redis (optional thread store, rate limit) ----
	var (
		threads repository.ThreadStore
		limiter httpapi.Limiter
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		threads = red.NewThreadStore(rc, cfg.Redis.TTL)
		if cfg.HTTP.RateLimit > 0 {
			limiter = red.NewRateLimiter(rc, cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
		}
		health["redis"] = rc.Ping
		logger.Info().Bool("rate_limit", limiter != nil).Msg("thread store: redis")
	}

	// ---- Job client + poller ----
	var jobs adapter.JobClient
	if cfg.Runtime.Dev {
		jobs = aiAdapters.NewNoopJobClient(devReply)
		logger.Warn().Msg("DEV MODE: in-memory job client")
	} else {
		ac, err := aiAdapters.NewAssistantClient(cfg.AI.OpenAIKey, cfg.AI.AssistantID,
			aiAdapters.WithBaseURL(cfg.AI.BaseURL),
			aiAdapters.WithHTTPClient(&http.Client{Timeout: cfg.AI.Timeout}),
			aiAdapters.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("assistant client: %w", err)
		}
		jobs = ac
	}
	jobs = aiAdapters.NewLimitedJobClient(jobs, cfg.AI.ConcurrentLimit)
	poller := sched.NewRunPoller(jobs, sched.Config{Interval: cfg.Poll.Interval, MaxChecks: cfg.Poll.MaxChecks}, logger)

	// ---- Chat + media providers ----
	exOpts := []usecase.ExerciseOption{}
	if audit != nil {
		exOpts = append(exOpts, usecase.WithJobAudit(audit))
	}
	chat, chatModel, err := buildChat(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if chat != nil {
		exOpts = append(exOpts, usecase.WithChat(chat, chatModel))
	}

	var stories usecase.StoryUseCase
	if cfg.AI.OpenAIKey != "" {
		media, err := aiAdapters.NewOpenAIMedia(aiAdapters.MediaConfig{
			APIKey:      cfg.AI.OpenAIKey,
			BaseURL:     cfg.AI.BaseURL,
			ImageModel:  cfg.AI.ImageModel,
			SpeechModel: cfg.AI.SpeechModel,
			Voice:       cfg.AI.Voice,
		})
		if err != nil {
			return fmt.Errorf("openai media: %w", err)
		}
		stories = usecase.NewStoryUseCase(media, logger)
	}

	// ---- Use cases ----
	exercises := usecase.NewExerciseUseCase(jobs, poller, logger, exOpts...)
	sessions := usecase.NewSessionUseCase(exercises, threads, logger)
	var history usecase.JobHistoryUseCase
	if audit != nil && threads != nil {
		history = usecase.NewJobHistoryUseCase(threads, audit, txm, logger)
	}

	// ---- HTTP ----
	deps := httpapi.Deps{
		Sessions:  sessions,
		Exercises: exercises,
		Stories:   stories,
		Jobs:      history,
		Limiter:   limiter,
		Health:    health,
	}
	if cfg.HTTP.JWTSecret != "" {
		deps.Auth = httpapi.NewAuthManager(cfg.HTTP.JWTSecret, cfg.HTTP.TokenTTL)
	} else {
		logger.Warn().Msg("http.jwt_secret not set; /api/v1 is unauthenticated")
	}
	return httpapi.NewServer(cfg.HTTP, deps, logger).ListenAndServe(ctx)
}

// buildChat wires every configured chat provider behind one router and
// picks the model to ask. It returns a nil completer when none is configured.
func buildChat(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.ChatCompleter, string, error) {
	providers := map[string]adapter.ChatCompleter{}
	def, chatModel := "", ""
	if cfg.AI.OpenAIKey != "" {
		oc, err := aiAdapters.NewOpenAIChat(cfg.AI.OpenAIKey, cfg.AI.BaseURL, cfg.AI.DefaultModel)
		if err != nil {
			return nil, "", fmt.Errorf("openai chat: %w", err)
		}
		providers["openai"] = oc
		def = "openai"
		chatModel = cfg.AI.DefaultModel
	}
	if cfg.AI.GeminiKey != "" {
		gc, err := aiAdapters.NewGeminiChat(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, "", 0)
		if err != nil {
			return nil, "", fmt.Errorf("gemini chat: %w", err)
		}
		providers["gemini"] = gc
		if def == "" {
			def = "gemini"
		}
	}
	if len(providers) == 0 {
		logger.Warn().Msg("no chat provider configured; /api/v1/exercises/chat disabled")
		return nil, "", nil
	}
	logger.Info().Str("default_provider", def).Int("providers", len(providers)).Msg("chat providers ready")
	return aiAdapters.NewMultiChat(def, providers, nil), chatModel, nil
}

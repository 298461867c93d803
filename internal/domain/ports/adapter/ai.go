package adapter

import (
	"context"

	"magical-academy/internal/domain/model"
)

// JobClient is the port for the provider's thread/run workflow.
// Every method issues a single HTTP request except AppendMessages, which
// issues one per message.
type JobClient interface {
	// SubmitJob creates a thread holding initial and starts a run on it.
	SubmitJob(ctx context.Context, initial model.Message, params model.SubmitParams) (model.JobRef, error)

	// AppendMessages posts msgs to an existing thread concurrently. Their
	// relative order is not guaranteed; append one at a time if it matters.
	AppendMessages(ctx context.Context, threadID string, msgs ...model.Message) error

	// StartRun starts a run over the thread's accumulated messages.
	StartRun(ctx context.Context, threadID string) (string, error)

	FetchStatus(ctx context.Context, ref model.JobRef) (model.RunStatus, error)

	// FetchLatestRunStatus reports the most recent run of a thread.
	FetchLatestRunStatus(ctx context.Context, threadID string) (model.JobRef, model.RunStatus, error)

	// FetchLatestResponderMessage returns the newest assistant message text.
	FetchLatestResponderMessage(ctx context.Context, threadID string) (string, error)
}

// StatusFetcher is the slice of JobClient the poller needs.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, ref model.JobRef) (model.RunStatus, error)
}

// ChatCompleter is the port for one-shot chat completions.
type ChatCompleter interface {
	Chat(ctx context.Context, model string, messages []model.Message) (string, error)

	// CountTokens returns prompt tokens for messages (best effort).
	CountTokens(ctx context.Context, model string, messages []model.Message) (int, error)
}

// MediaGenerator produces story illustrations and narration.
type MediaGenerator interface {
	GenerateImages(ctx context.Context, prompt string) ([]string, error)
	GenerateSpeech(ctx context.Context, text string) ([]byte, error)
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/adapter"
	"magical-academy/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.JobClient = (*AssistantClient)(nil)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	maxBodyBytes   = 1 << 20
	errBodySnippet = 512
)

// AssistantClient implements adapter.JobClient against the Assistants
// threads/runs REST API. It is safe for concurrent use; all fields are
// read-only after construction.
type AssistantClient struct {
	apiKey      string
	base        string // e.g., https://api.openai.com/v1
	assistantID string
	client      *http.Client
	tracer      trace.Tracer
	log         *zerolog.Logger
}

type AssistantOption func(*AssistantClient)

func WithBaseURL(base string) AssistantOption {
	return func(c *AssistantClient) {
		if base != "" {
			c.base = strings.TrimRight(base, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) AssistantOption {
	return func(c *AssistantClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

func WithLogger(l *zerolog.Logger) AssistantOption {
	return func(c *AssistantClient) {
		if l != nil {
			cl := l.With().Str("component", "AssistantClient").Logger()
			c.log = &cl
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) AssistantOption {
	return func(c *AssistantClient) {
		if tp != nil {
			c.tracer = tp.Tracer("magical-academy/assistant")
		}
	}
}

func NewAssistantClient(apiKey, assistantID string, opts ...AssistantOption) (*AssistantClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if assistantID == "" {
		return nil, errors.New("assistant id empty")
	}
	nop := zerolog.Nop()
	c := &AssistantClient{
		apiKey:      apiKey,
		base:        defaultBaseURL,
		assistantID: assistantID,
		client:      &http.Client{Timeout: 30 * time.Second},
		tracer:      otel.Tracer("magical-academy/assistant"),
		log:         &nop,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- wire shapes ----

type threadMessages struct {
	Messages []model.Message   `json:"messages"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type submitRequest struct {
	AssistantID string         `json:"assistant_id"`
	Thread      threadMessages `json:"thread"`
}

type runResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Status   string `json:"status"`
}

type runListResponse struct {
	Data []runResponse `json:"data"`
}

type messageListResponse struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// ---- operations ----

func (c *AssistantClient) SubmitJob(ctx context.Context, initial model.Message, params model.SubmitParams) (model.JobRef, error) {
	if initial.Content == "" {
		initial = model.UserMessage(params.Prompt())
	}
	if initial.Role == "" {
		initial.Role = model.RoleUser
	}
	body := submitRequest{
		AssistantID: c.assistantID,
		Thread: threadMessages{
			Messages: []model.Message{initial},
			Metadata: paramsMetadata(params),
		},
	}

	var out runResponse
	raw, err := c.do(ctx, "submit", http.MethodPost, "/threads/runs", body, &out)
	if err != nil {
		return model.JobRef{}, err
	}
	if out.ThreadID == "" || out.ID == "" {
		return model.JobRef{}, &domain.ParseError{Op: "submit", Raw: raw, Err: errors.New("missing thread_id or id")}
	}
	ref := model.JobRef{ThreadID: out.ThreadID, RunID: out.ID}
	c.log.Debug().Str("thread_id", ref.ThreadID).Str("run_id", ref.RunID).Msg("job submitted")
	return ref, nil
}

func (c *AssistantClient) AppendMessages(ctx context.Context, threadID string, msgs ...model.Message) error {
	if threadID == "" {
		return fmt.Errorf("append: %w: empty thread id", domain.ErrInvalidArgument)
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages"

	// errgroup keeps the first error and drops the rest; siblings are not
	// cancelled so every request runs to completion.
	var g errgroup.Group
	for _, m := range msgs {
		if m.Role == "" {
			m.Role = model.RoleUser
		}
		g.Go(func() error {
			_, err := c.do(ctx, "append", http.MethodPost, path, m, nil)
			return err
		})
	}
	return g.Wait()
}

func (c *AssistantClient) StartRun(ctx context.Context, threadID string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("start run: %w: empty thread id", domain.ErrInvalidArgument)
	}
	body := struct {
		AssistantID string `json:"assistant_id"`
	}{AssistantID: c.assistantID}

	var out runResponse
	raw, err := c.do(ctx, "start_run", http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", body, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &domain.ParseError{Op: "start_run", Raw: raw, Err: errors.New("missing id")}
	}
	return out.ID, nil
}

func (c *AssistantClient) FetchStatus(ctx context.Context, ref model.JobRef) (model.RunStatus, error) {
	if !ref.Valid() {
		return "", fmt.Errorf("fetch status: %w: incomplete job ref", domain.ErrInvalidArgument)
	}
	path := "/threads/" + url.PathEscape(ref.ThreadID) + "/runs/" + url.PathEscape(ref.RunID)

	var out runResponse
	raw, err := c.do(ctx, "fetch_status", http.MethodGet, path, nil, &out)
	if err != nil {
		return "", err
	}
	if out.Status == "" {
		return "", &domain.ParseError{Op: "fetch_status", Raw: raw, Err: errors.New("missing status")}
	}
	return model.NormalizeRunStatus(out.Status), nil
}

func (c *AssistantClient) FetchLatestRunStatus(ctx context.Context, threadID string) (model.JobRef, model.RunStatus, error) {
	if threadID == "" {
		return model.JobRef{}, "", fmt.Errorf("latest run: %w: empty thread id", domain.ErrInvalidArgument)
	}
	path := "/threads/" + url.PathEscape(threadID) + "/runs?limit=1&order=desc"

	var out runListResponse
	raw, err := c.do(ctx, "latest_run", http.MethodGet, path, nil, &out)
	if err != nil {
		return model.JobRef{}, "", err
	}
	if len(out.Data) == 0 {
		return model.JobRef{}, "", fmt.Errorf("latest run for thread %s: %w", threadID, domain.ErrNotFound)
	}
	run := out.Data[0]
	if run.ID == "" || run.Status == "" {
		return model.JobRef{}, "", &domain.ParseError{Op: "latest_run", Raw: raw, Err: errors.New("missing id or status")}
	}
	return model.JobRef{ThreadID: threadID, RunID: run.ID}, model.NormalizeRunStatus(run.Status), nil
}

func (c *AssistantClient) FetchLatestResponderMessage(ctx context.Context, threadID string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("fetch messages: %w: empty thread id", domain.ErrInvalidArgument)
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages?order=desc"

	var out messageListResponse
	if _, err := c.do(ctx, "fetch_messages", http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	// Newest first.
	for _, m := range out.Data {
		if m.Role != model.RoleAssistant || len(m.Content) == 0 {
			continue
		}
		return m.Content[0].Text.Value, nil
	}
	return "", &domain.NoResponderMessageError{ThreadID: threadID}
}

// ---- transport ----

// do issues exactly one request. It returns the raw body (for diagnostics)
// and decodes it into out when out is non-nil.
func (c *AssistantClient) do(ctx context.Context, op, method, path string, body, out any) (string, error) {
	ctx, span := c.tracer.Start(ctx, "assistant."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method), attribute.String("assistant.path", path)))
	defer span.End()

	start := time.Now()
	outcome := "ok"
	defer func() {
		metrics.ObserveAssistantRequest(op, outcome, int(time.Since(start)/time.Millisecond))
	}()

	fail := func(kind string, err error) (string, error) {
		outcome = kind
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		c.log.Warn().Err(err).Str("op", op).Str("outcome", kind).Msg("assistant request failed")
		return "", err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fail("encode", fmt.Errorf("%s: encode request: %w", op, err))
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fail("encode", fmt.Errorf("%s: build request: %w", op, err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fail("transport", &domain.TransportError{Op: op, Err: err})
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fail("transport", &domain.TransportError{Op: op, Err: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail("bad_response", &domain.BadResponseError{Op: op, StatusCode: resp.StatusCode, Body: snippet(raw)})
	}

	c.log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("assistant request")
	if out == nil {
		return string(raw), nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		perr := &domain.ParseError{Op: op, Raw: string(raw), Err: err}
		_, _ = fail("parse", perr)
		return string(raw), perr
	}
	return string(raw), nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > errBodySnippet {
		return s[:errBodySnippet] + "..."
	}
	return s
}

func paramsMetadata(p model.SubmitParams) map[string]string {
	md := map[string]string{}
	if p.Age > 0 {
		md["age"] = strconv.Itoa(p.Age)
	}
	if p.Difficulty > 0 {
		md["difficulty"] = strconv.Itoa(p.Difficulty)
	}
	if p.Scenario != "" {
		md["scenario"] = p.Scenario
	}
	if p.Character != "" {
		md["character"] = p.Character
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

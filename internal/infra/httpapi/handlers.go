package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/model"
	"magical-academy/internal/infra/logging"
	"magical-academy/internal/usecase"
)

const (
	maxBodyBytes = 1 << 20
	// nginx convention for a client that went away before the reply.
	statusClientClosed = 499
)

type exerciseRequest struct {
	SessionID  string `json:"session_id"`
	Age        int    `json:"age"`
	Difficulty int    `json:"difficulty"`
	Scenario   string `json:"scenario"`
	Character  string `json:"character"`
	ThreadID   string `json:"thread_id"`
	Mode       string `json:"mode"`
}

func (r exerciseRequest) params() model.SubmitParams {
	return model.SubmitParams{
		Age:        r.Age,
		Difficulty: r.Difficulty,
		Scenario:   r.Scenario,
		Character:  r.Character,
	}
}

type exerciseResponse struct {
	Exercise string `json:"exercise"`
	Answer   int    `json:"answer"`
	Options  []int  `json:"options"`
	ThreadID string `json:"thread_id,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Checks   int    `json:"checks,omitempty"`
}

func toExerciseResponse(res *usecase.GenerateResult) exerciseResponse {
	return exerciseResponse{
		Exercise: res.Exercise.Exercise,
		Answer:   res.Exercise.Answer,
		Options:  res.Options,
		ThreadID: res.ThreadID,
		RunID:    res.RunID,
		Checks:   res.Checks,
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req exerciseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sessionID, ok := ownSession(r, req.SessionID)
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	res, err := s.deps.Sessions.Generate(r.Context(), sessionID, usecase.GenerateRequest{
		Params:   req.params(),
		ThreadID: req.ThreadID,
		Mode:     usecase.ParseModeFromString(req.Mode),
	})
	if err != nil {
		s.fail(w, r, "generate exercise", err)
		return
	}
	writeJSON(w, http.StatusOK, toExerciseResponse(res))
}

// ownSession resolves the session a request acts on. An authenticated
// caller may only name its own subject; an empty name means the subject.
func ownSession(r *http.Request, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	c, ok := ClaimsFrom(r.Context())
	if !ok {
		return requested, true
	}
	if requested != "" && requested != c.Subject {
		return "", false
	}
	return c.Subject, true
}

func (s *Server) handleGeneratePlainText(w http.ResponseWriter, r *http.Request) {
	var req exerciseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Exercises.GeneratePlainText(r.Context(), req.params())
	if err != nil {
		s.fail(w, r, "generate plain text exercise", err)
		return
	}
	writeJSON(w, http.StatusOK, toExerciseResponse(res))
}

type evaluateRequest struct {
	Answer     int   `json:"answer"`
	Correct    int   `json:"correct"`
	ElapsedMS  int64 `json:"elapsed_ms"`
	Difficulty int   `json:"difficulty"`
}

type evaluateResponse struct {
	Correct    bool `json:"correct"`
	Difficulty int  `json:"difficulty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ElapsedMS < 0 {
		writeError(w, http.StatusBadRequest, "elapsed_ms must not be negative")
		return
	}
	res := s.deps.Exercises.Evaluate(r.Context(), usecase.EvaluateRequest{
		Answer:     req.Answer,
		Correct:    req.Correct,
		Elapsed:    time.Duration(req.ElapsedMS) * time.Millisecond,
		Difficulty: req.Difficulty,
	})
	writeJSON(w, http.StatusOK, evaluateResponse{Correct: res.Correct, Difficulty: res.NextDifficulty})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ownSession(r, chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := s.deps.Sessions.Reset(r.Context(), sessionID); err != nil {
		s.fail(w, r, "reset session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type jobResponse struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Checks    int       `json:"checks"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toJobResponses(jobs []*model.Job) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResponse{
			ID:        j.ID,
			ThreadID:  j.Ref.ThreadID,
			RunID:     j.Ref.RunID,
			Status:    string(j.Status),
			Checks:    j.Checks,
			LastError: j.LastError,
			CreatedAt: j.CreatedAt,
			UpdatedAt: j.UpdatedAt,
		})
	}
	return out
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusNotImplemented, "job history is not configured")
		return
	}
	sessionID, ok := ownSession(r, chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	jobs, err := s.deps.Jobs.List(r.Context(), sessionID, limit)
	if err != nil {
		s.fail(w, r, "list jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]jobResponse{"jobs": toJobResponses(jobs)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusNotImplemented, "job history is not configured")
		return
	}
	sessionID, ok := ownSession(r, chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	d, err := s.deps.Jobs.Get(r.Context(), sessionID, chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Job    jobResponse   `json:"job"`
		Thread []jobResponse `json:"thread"`
	}{
		Job:    toJobResponses([]*model.Job{d.Job})[0],
		Thread: toJobResponses(d.Thread),
	})
}

func (s *Server) handleIllustrate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stories == nil {
		writeError(w, http.StatusNotImplemented, "stories are not configured")
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	urls, err := s.deps.Stories.Illustrate(r.Context(), req.Prompt)
	if err != nil {
		s.fail(w, r, "illustrate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"urls": urls})
}

func (s *Server) handleNarrate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stories == nil {
		writeError(w, http.StatusNotImplemented, "stories are not configured")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	audio, err := s.deps.Stories.Narrate(r.Context(), req.Text)
	if err != nil {
		s.fail(w, r, "narrate", err)
		return
	}
	w.Header().Set("Content-Type", "audio/aac")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	// A cancelled poll under an expired request deadline is a timeout.
	if code == statusClientClosed && errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		code = http.StatusGatewayTimeout
	}
	log := logging.With(r.Context(), s.log)
	ev := log.Warn()
	if code == http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Int("status", code).Msg(op + " failed")

	msg := http.StatusText(code)
	if code == http.StatusBadRequest {
		msg = err.Error()
	}
	if code == statusClientClosed {
		msg = "request cancelled"
	}
	writeError(w, code, msg)
}

// statusFor maps job-client and use-case errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		timeoutErr   *domain.TimeoutError
		transportErr *domain.TransportError
		badRespErr   *domain.BadResponseError
		parseErr     *domain.ParseError
		noMsgErr     *domain.NoResponderMessageError
	)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPollInFlight):
		return http.StatusConflict
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrPollCancelled), errors.Is(err, context.Canceled):
		return statusClientClosed
	case errors.As(err, &transportErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRunFailed),
		errors.As(err, &badRespErr),
		errors.As(err, &parseErr),
		errors.As(err, &noMsgErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

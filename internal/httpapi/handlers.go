// Package httpapi exposes the question answering engine over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"smartual/internal/domain"
	"smartual/internal/service"
)

// Engine is the subset of service.Engine served over HTTP.
type Engine interface {
	Answer(ctx context.Context, question string) (*domain.Response, error)
	Feedback(ctx context.Context, resp *domain.Response, helpful bool) domain.FeedbackRecord
	Reload(ctx context.Context) error
	Stats() service.Stats
	Samples() []string
}

// Options configures the handler chain.
type Options struct {
	QueryTimeout   time.Duration
	RequestsPerSec float64
	Burst          int
	CORSOrigin     string
	ServiceName    string
}

// NewHandler returns the API routes wrapped in the middleware chain.
func NewHandler(engine Engine, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "smartual-api"
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	h := &handlers{engine: engine, timeout: opts.QueryTimeout, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("POST /api/answer", h.answer)
	mux.HandleFunc("POST /api/feedback", h.feedback)
	mux.HandleFunc("POST /api/reload", h.reload)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /api/samples", h.samples)

	return Chain(mux,
		Recover(logger),
		Logger(logger),
		CORS(opts.CORSOrigin),
		RateLimit(opts.RequestsPerSec, opts.Burst),
		OTel(opts.ServiceName),
	)
}

type handlers struct {
	engine  Engine
	timeout time.Duration
	logger  *slog.Logger
}

// AnswerRequest is the JSON body for POST /api/answer.
type AnswerRequest struct {
	Question string `json:"question"`
}

// RetrievedPassage is one ranked passage in an AnswerResponse.
type RetrievedPassage struct {
	PassageText string  `json:"passage_text"`
	Section     string  `json:"section"`
	Score       float64 `json:"score"`
}

// AnswerResponse is the JSON response for POST /api/answer.
type AnswerResponse struct {
	Question          string             `json:"question"`
	Section           string             `json:"section"`
	SectionConfidence float64            `json:"section_confidence"`
	Answer            string             `json:"answer"`
	AnswerConfidence  float64            `json:"answer_confidence"`
	Retrieved         []RetrievedPassage `json:"retrieved"`
}

// FeedbackRequest is the JSON body for POST /api/feedback. It echoes the
// answer being rated.
type FeedbackRequest struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Section    string  `json:"section"`
	Confidence float64 `json:"confidence"`
	Helpful    *bool   `json:"helpful"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	resp, err := h.engine.Answer(ctx, req.Question)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "question is required")
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "question timed out")
		return
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "engine not ready")
		return
	default:
		h.logger.Error("answer failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toAnswerResponse(resp))
}

func toAnswerResponse(resp *domain.Response) AnswerResponse {
	out := AnswerResponse{
		Question:          resp.Question,
		Section:           resp.Section,
		SectionConfidence: resp.SectionConfidence,
		Answer:            resp.Answer,
		AnswerConfidence:  resp.AnswerConfidence,
		Retrieved:         make([]RetrievedPassage, 0, len(resp.Retrieved)),
	}
	for _, r := range resp.Retrieved {
		out.Retrieved = append(out.Retrieved, RetrievedPassage{
			PassageText: r.Passage.Text,
			Section:     r.Passage.Section,
			Score:       r.Score,
		})
	}
	return out
}

func (h *handlers) feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" || req.Helpful == nil {
		writeError(w, http.StatusBadRequest, "question and helpful are required")
		return
	}
	rec := h.engine.Feedback(r.Context(), &domain.Response{
		Question:         req.Question,
		Answer:           req.Answer,
		Section:          req.Section,
		AnswerConfidence: req.Confidence,
	}, *req.Helpful)
	writeJSON(w, http.StatusAccepted, rec)
}

func (h *handlers) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reload(r.Context()); err != nil {
		h.logger.Error("reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *handlers) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *handlers) samples(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"samples": h.engine.Samples()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

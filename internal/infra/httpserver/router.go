package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	domai "github.com/bryanwahyu/cowhealth/internal/domain/ai"
	"github.com/bryanwahyu/cowhealth/internal/domain/analysis"
	"github.com/bryanwahyu/cowhealth/internal/domain/history"
	"github.com/bryanwahyu/cowhealth/internal/infra/ai/prompt"
	"github.com/bryanwahyu/cowhealth/internal/infra/image"
	"github.com/bryanwahyu/cowhealth/internal/middleware"
)

// Analyzer is the analysis pipeline.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	SuggestTreatment(ctx context.Context, disease string) (analysis.TreatmentAdvice, error)
	ListConditionsAndTreatments(ctx context.Context, disease string) ([]analysis.ConditionTreatment, error)
}

// History keeps and summarizes past analyses.
type History interface {
	Record(ctx context.Context, req analysis.Request, res *analysis.Result) (*history.Record, error)
	Latest(ctx context.Context, limit int) ([]*history.Record, error)
	Get(ctx context.Context, id history.RecordID) (*history.Record, error)
	SummarizeText(ctx context.Context, text string) (string, error)
	SummarizeRecent(ctx context.Context, limit int) (string, error)
}

type Options struct {
	Analyzer Analyzer
	// History is optional; without it the history routes answer 404
	History        History
	Intake         *image.Intake
	ImageURLs      *middleware.ImageURLValidator
	Metrics        *middleware.Metrics
	Limiter        middleware.Limiter
	Checkers       map[string]middleware.HealthChecker
	APIKeys        map[string]string
	AllowedOrigins []string
	Log            *zap.Logger
}

type Router struct {
	analyzer Analyzer
	history  History
	intake   *image.Intake
	urls     *middleware.ImageURLValidator
	metrics  *middleware.Metrics
	log      *zap.Logger
}

func NewRouter(opts Options) http.Handler {
	r := &Router{
		analyzer: opts.Analyzer,
		history:  opts.History,
		intake:   opts.Intake,
		urls:     opts.ImageURLs,
		metrics:  opts.Metrics,
		log:      opts.Log,
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = middleware.NewMetrics()
	}
	if r.intake == nil {
		r.intake = image.NewIntake(5<<20, nil, r.log)
	}
	if r.urls == nil {
		r.urls = middleware.NewImageURLValidator(nil)
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Analysis-ID"},
		MaxAge:         300,
	}))
	mux.Use(r.metrics.Middleware)
	mux.Use(middleware.Logging(r.log))
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.Limiter != nil {
		mux.Use(middleware.RateLimit(opts.Limiter, r.log))
	}

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/healthz", middleware.HealthHandler(opts.Checkers))
	mux.Get("/readyz", middleware.ReadinessHandler(opts.Checkers))
	mux.Get("/metrics", r.metrics.Handler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyze", r.wrap(r.handleAnalyze))
		rt.Post("/treatments", r.wrap(r.handleTreatments))
		rt.Post("/conditions", r.wrap(r.handleConditions))
		rt.Get("/shapes", r.wrap(r.handleShapes))
		if r.history != nil {
			rt.Get("/history", r.wrap(r.handleHistory))
			rt.Get("/history/{id}", r.wrap(r.handleHistoryGet))
			rt.Post("/history/summary", r.wrap(r.handleSummary))
		}
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks errors caused by the caller's input.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func invalid(format string, args ...any) error {
	return badRequest{fmt.Errorf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var (
			br     badRequest
			se     *domai.ServiceError
			tooBig *http.MaxBytesError
		)
		switch {
		case errors.As(err, &tooBig):
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		case errors.As(err, &br), errors.Is(err, image.ErrInvalidImage):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, history.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, domai.ErrQuotaExceeded):
			http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
		case errors.As(err, &se):
			http.Error(w, "analysis could not be completed: "+se.Err.Error(), http.StatusBadGateway)
		default:
			r.log.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, req *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, limit))
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return invalid("invalid JSON body: %v", err)
	}
	return nil
}

// POST /v1/analyze
// JSON body {"imageUrl": "<data URL|http URL>", "prompt": "..."} or a
// multipart form with an "image" file and a "prompt" field.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	areq, err := r.analysisRequest(w, req)
	if err != nil {
		return err
	}

	res, err := r.analyzer.AnalyzeImage(req.Context(), areq)
	r.metrics.ObserveAnalysis(res, err)
	if err != nil {
		return err
	}

	if r.history != nil {
		rec, err := r.history.Record(req.Context(), areq, res)
		if err != nil {
			r.log.Warn("analysis not recorded", zap.Error(err))
		} else {
			w.Header().Set("X-Analysis-ID", string(rec.ID))
		}
	}
	return writeJSON(w, res)
}

func (r *Router) analysisRequest(w http.ResponseWriter, req *http.Request) (analysis.Request, error) {
	maxBytes := r.intake.MaxBytes()
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))

	var (
		img        domai.Image
		promptText string
		err        error
	)
	if mediaType == "multipart/form-data" {
		req.Body = http.MaxBytesReader(w, req.Body, maxBytes+(1<<20))
		if err := req.ParseMultipartForm(maxBytes); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return analysis.Request{}, err
			}
			return analysis.Request{}, invalid("invalid multipart form: %v", err)
		}
		defer req.MultipartForm.RemoveAll()

		file, _, err := req.FormFile("image")
		if err != nil {
			return analysis.Request{}, invalid("image file is required")
		}
		defer file.Close()
		raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			return analysis.Request{}, err
		}
		if img, err = r.intake.FromBytes(raw); err != nil {
			return analysis.Request{}, err
		}
		promptText = req.FormValue("prompt")
	} else {
		var body struct {
			ImageURL string `json:"imageUrl"`
			Prompt   string `json:"prompt"`
		}
		// base64 inflates the payload by a third
		if err := decodeJSON(w, req, maxBytes*2+(1<<16), &body); err != nil {
			return analysis.Request{}, err
		}
		body.ImageURL = strings.TrimSpace(body.ImageURL)
		if err := r.urls.Validate(req.Context(), body.ImageURL); err != nil {
			return analysis.Request{}, badRequest{err}
		}
		if img, err = r.intake.FromURI(body.ImageURL); err != nil {
			return analysis.Request{}, err
		}
		promptText = body.Prompt
	}

	promptText = middleware.SanitizeString(promptText)
	if err := middleware.ValidatePrompt(promptText); err != nil {
		return analysis.Request{}, badRequest{err}
	}
	return analysis.Request{Image: img, Instruction: promptText}, nil
}

func (r *Router) disease(w http.ResponseWriter, req *http.Request) (string, error) {
	var body struct {
		Disease string `json:"disease"`
	}
	if err := decodeJSON(w, req, 1<<16, &body); err != nil {
		return "", err
	}
	disease := middleware.SanitizeString(body.Disease)
	if err := middleware.ValidateDisease(disease); err != nil {
		return "", badRequest{err}
	}
	return disease, nil
}

// POST /v1/treatments {"disease": "..."}
func (r *Router) handleTreatments(w http.ResponseWriter, req *http.Request) error {
	disease, err := r.disease(w, req)
	if err != nil {
		return err
	}
	advice, err := r.analyzer.SuggestTreatment(req.Context(), disease)
	r.metrics.ObserveCall(err)
	if err != nil {
		return err
	}
	return writeJSON(w, advice)
}

// POST /v1/conditions {"disease": "..."}
func (r *Router) handleConditions(w http.ResponseWriter, req *http.Request) error {
	disease, err := r.disease(w, req)
	if err != nil {
		return err
	}
	list, err := r.analyzer.ListConditionsAndTreatments(req.Context(), disease)
	r.metrics.ObserveCall(err)
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

type shape struct {
	Input  *jsonschema.Definition `json:"input"`
	Output *jsonschema.Definition `json:"output"`
}

// GET /v1/shapes
func (r *Router) handleShapes(w http.ResponseWriter, req *http.Request) error {
	out := map[string]shape{}
	for name, tpl := range prompt.All() {
		in, res := tpl.Input, tpl.Output
		out[name] = shape{Input: &in, Output: &res}
	}
	result := prompt.AnalysisResult
	out["analysisResult"] = shape{Output: &result}
	return writeJSON(w, out)
}

// GET /v1/history?limit=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	recs, err := r.history.Latest(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, recs)
}

// GET /v1/history/{id}
func (r *Router) handleHistoryGet(w http.ResponseWriter, req *http.Request) error {
	rec, err := r.history.Get(req.Context(), history.RecordID(chi.URLParam(req, "id")))
	if err != nil {
		return err
	}
	return writeJSON(w, rec)
}

// POST /v1/history/summary {"analysisHistory"?: "...", "limit"?: n}
// Without analysisHistory the latest stored analyses are summarized.
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		AnalysisHistory string `json:"analysisHistory"`
		Limit           int    `json:"limit"`
	}
	if err := decodeJSON(w, req, 1<<20, &body); err != nil {
		return err
	}

	var (
		summary string
		err     error
	)
	if text := strings.TrimSpace(body.AnalysisHistory); text != "" {
		summary, err = r.history.SummarizeText(req.Context(), text)
	} else {
		summary, err = r.history.SummarizeRecent(req.Context(), middleware.ValidateLimit(body.Limit))
	}
	r.metrics.ObserveCall(err)
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"summary": summary})
}

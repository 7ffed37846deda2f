package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/cowhealth/internal/domain/ai"
	"github.com/bryanwahyu/cowhealth/internal/domain/analysis"
)

// Metrics stores request and analysis counters
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64

	AnalysesTotal    atomic.Uint64
	AnalysesNoCow    atomic.Uint64
	AnalysesHealthy  atomic.Uint64
	AnalysesEnriched atomic.Uint64
	// Fallbacks counts analyses whose enrichment failed and was replaced
	Fallbacks     atomic.Uint64
	ServiceErrors atomic.Uint64
	QuotaErrors   atomic.Uint64

	StartTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// ObserveAnalysis records the outcome of one image analysis
func (m *Metrics) ObserveAnalysis(res *analysis.Result, err error) {
	m.AnalysesTotal.Add(1)
	switch {
	case err != nil:
		m.observeError(err)
	case res.FellBack():
		m.Fallbacks.Add(1)
	case res.Enriched():
		m.AnalysesEnriched.Add(1)
	case !res.CowPresent:
		m.AnalysesNoCow.Add(1)
	default:
		m.AnalysesHealthy.Add(1)
	}
}

// ObserveCall records a failed standalone stage call
func (m *Metrics) ObserveCall(err error) {
	if err != nil {
		m.observeError(err)
	}
}

func (m *Metrics) observeError(err error) {
	if ai.IsServiceError(err) {
		m.ServiceErrors.Add(1)
	}
	if errors.Is(err, ai.ErrQuotaExceeded) {
		m.QuotaErrors.Add(1)
	}
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"requests_total":       m.RequestsTotal.Load(),
		"requests_in_progress": m.RequestsInProgress.Load(),
		"requests_success":     m.RequestsSuccess.Load(),
		"requests_failed":      m.RequestsFailed.Load(),
		"analyses": map[string]any{
			"total":          m.AnalysesTotal.Load(),
			"no_cow":         m.AnalysesNoCow.Load(),
			"healthy":        m.AnalysesHealthy.Load(),
			"enriched":       m.AnalysesEnriched.Load(),
			"fallbacks":      m.Fallbacks.Load(),
			"service_errors": m.ServiceErrors.Load(),
			"quota_errors":   m.QuotaErrors.Load(),
		},
		"uptime_seconds": time.Since(m.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}

package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const componentTimeout = 2 * time.Second

// HealthChecker reports whether a dependency of the analysis service (history
// store, image archive, shared limiter) can serve requests.
type HealthChecker interface {
	Check(ctx context.Context) error
}

type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// PingDB checks the history database connection.
func PingDB(db *sql.DB) CheckerFunc {
	return db.PingContext
}

// ComponentStatus is one dependency's line in the health report.
type ComponentStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// HealthReport is the body of /healthz.
type HealthReport struct {
	Status     string                     `json:"status"`
	CheckedAt  time.Time                  `json:"checkedAt"`
	Components map[string]ComponentStatus `json:"components"`
}

// Healthy reports whether every component passed.
func (r HealthReport) Healthy() bool { return r.Status == "ok" }

// checkComponents runs every checker concurrently, each under its own deadline.
func checkComponents(ctx context.Context, checkers map[string]HealthChecker) HealthReport {
	report := HealthReport{
		Status:     "ok",
		CheckedAt:  time.Now().UTC(),
		Components: make(map[string]ComponentStatus, len(checkers)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, componentTimeout)
			defer cancel()

			start := time.Now()
			err := checker.Check(cctx)
			st := ComponentStatus{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				st.Status = "down"
				st.Error = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			report.Components[name] = st
			if err != nil {
				report.Status = "down"
			}
		}()
	}
	wg.Wait()
	return report
}

// HealthHandler serves the per-component report; any failing component turns
// the answer into 503.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := checkComponents(r.Context(), checkers)

		code := http.StatusOK
		if !report.Healthy() {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// ReadinessHandler answers 200 only while every dependency is reachable.
func ReadinessHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !checkComponents(r.Context(), checkers).Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		_, _ = w.Write([]byte("ready"))
	}
}

func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

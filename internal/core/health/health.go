// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Check is one dependency probe, e.g. a Redis ping.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

type readyResp struct {
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks,omitempty"`
	Partitions []int32           `json:"partitions,omitempty"`
}

// Readiness runs every check within timeout. rr may be nil when no consumer
// group runs in this process.
func Readiness(timeout time.Duration, checks []Check, rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		out := readyResp{Status: "ready", Checks: make(map[string]string, len(checks)+1)}
		ready := true
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				out.Checks[c.Name] = err.Error()
				ready = false
				continue
			}
			out.Checks[c.Name] = "ok"
		}
		if rr != nil {
			ok, parts := rr.Readiness()
			if ok {
				out.Checks["kafka"] = "ok"
				out.Partitions = parts
			} else {
				out.Checks["kafka"] = "no partitions assigned"
				ready = false
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			out.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealthDetailed probes every backing dependency concurrently. The
// endpoint answers 200 when all probes pass and 503 otherwise, with a
// per-dependency breakdown either way.
func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]string, len(s.probes))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for name, probe := range s.probes {
		g.Go(func() error {
			err := probe(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = err.Error()
				return nil
			}
			results[name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	status := "ok"
	code := http.StatusOK
	for _, state := range results {
		if state != "ok" {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, envelope{
		Success: status == "ok",
		Data: map[string]any{
			"status":       status,
			"dependencies": results,
		},
	})
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/specialistvlad/repotaskrun/internal/ctxlog"
	"github.com/specialistvlad/repotaskrun/internal/model"
	"github.com/specialistvlad/repotaskrun/internal/runner"
)

const (
	phaseStart = "starting"
	phaseSync  = "syncing"
	phaseWait  = "waiting_for_network"
	phaseBuild = "building"
	phaseRun   = "running"
	phaseDone  = "finished"
	phaseFail  = "failed"
)

// status is the run progress reported by the health check endpoint.
type status struct {
	mu       sync.Mutex
	RunID    string         `json:"run_id"`
	Audience model.Audience `json:"audience"`
	Phase    string         `json:"phase"`
	Attempts int            `json:"sync_attempts,omitempty"`
	Cursor   int            `json:"cursor"`
	Tasks    int            `json:"tasks"`
	Outcome  string         `json:"outcome,omitempty"`
	Error    string         `json:"error,omitempty"`
	Started  time.Time      `json:"started_at"`
}

func newStatus(runID string, aud model.Audience) *status {
	return &status{RunID: runID, Audience: aud, Phase: phaseStart, Started: time.Now().UTC()}
}

func (s *status) setPhase(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phase = phase
}

func (s *status) setWaiting(attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phase = phaseWait
	s.Attempts = attempt
}

func (s *status) setProgress(cursor, tasks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cursor = cursor
	s.Tasks = tasks
}

func (s *status) finish(outcome runner.Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.Phase = phaseFail
		s.Error = err.Error()
		return
	}
	s.Phase = phaseDone
	s.Outcome = outcome.String()
}

func (s *status) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type view status
	return json.Marshal((*view)(s))
}

// healthHandler reports the current run status as JSON.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	body, err := json.Marshal(a.status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// startHealthcheckServer serves /health on port until the returned stop
// function is called.
func (a *App) startHealthcheckServer(ctx context.Context, port int) (stop func()) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring health check server.")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("Health check server failed to listen.", "address", addr, "error", err)
		return func() {}
	}

	go func() {
		logger.Info("Health check server starting.", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly.", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Health check server shutdown failed.", "error", err)
			return
		}
		logger.Debug("Health check server shut down gracefully.")
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// Batcher recomputes every entity of a kind.
type Batcher interface {
	RecomputeKind(ctx context.Context, kind activity.EntityKind, forceExternal bool) (activity.BatchResult, error)
}

// Server provides the HTTP API.
type Server struct {
	svc      *activity.Service
	hooks    *Hooks
	batch    Batcher
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger
	port     int
}

// New creates a new HTTP server. A nil gatherer disables /metrics.
func New(svc *activity.Service, batch Batcher, gatherer prometheus.Gatherer, log logrus.FieldLogger, port int) *Server {
	if port == 0 {
		port = 8080
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		svc:      svc,
		hooks:    NewHooks(svc),
		batch:    batch,
		gatherer: gatherer,
		log:      log,
		port:     port,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /api/v1/activity/{kind}/{id}", s.handleActivity)
	mux.HandleFunc("GET /api/v1/leaderboard/{kind}", s.handleLeaderboard)
	mux.HandleFunc("POST /api/v1/hooks/{hook}", s.handleHook)
	mux.HandleFunc("POST /api/v1/batch/{kind}", s.handleBatch)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("repscore server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	rec, err := s.svc.GetActivity(r.Context(), activity.EntityRef{Kind: kind, ID: r.PathValue("id")}, force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := 10
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}
	period, err := activity.ParsePeriod(q.Get("period"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	standings, err := s.svc.GetTopEntities(r.Context(), kind, limit, period)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  standings,
		"count": len(standings),
	})
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}

	rec, err := s.hooks.Apply(r.Context(), r.PathValue("hook"), body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	if s.batch == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "batch runner not configured"})
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force_external"))

	res, err := s.batch.RecomputeKind(r.Context(), kind, force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": res})
}

func pathKind(w http.ResponseWriter, r *http.Request) (activity.EntityKind, bool) {
	kind := activity.EntityKind(r.PathValue("kind"))
	if !kind.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown entity kind %q", kind)})
		return "", false
	}
	return kind, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrUnknownHook), errors.Is(err, activity.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.log.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quern-dev/quern"
	"github.com/quern-dev/quern/pkg/job"
	"github.com/quern-dev/quern/pkg/ports"
)

// Server exposes queue operations and introspection over HTTP.
type Server struct {
	App    *quern.App
	Queues []string
	Logger *slog.Logger
}

// NewHandler builds the HTTP handler for the queue API.
// The metrics registry may be nil to disable the /metrics endpoint.
func NewHandler(s *Server, metrics *prometheus.Registry) http.Handler {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if len(s.Queues) == 0 {
		s.Queues = []string{job.DefaultQueue}
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/stats", s.GetStats)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.ListJobs)
		r.Post("/", s.EnqueueJob)
		r.Get("/{id}", s.GetJob)
		r.Delete("/{id}", s.AbortJob)
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "quern",
		"version": quern.Version,
	})
}

// GetStats handles GET /stats: queue depths and live worker heartbeats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	q := s.App.Queue()
	if q == nil {
		s.writeError(w, http.StatusServiceUnavailable, "not connected to redis")
		return
	}

	depths := make(map[string]int64, len(s.Queues))
	for _, queue := range s.Queues {
		depth, err := q.PendingCount(r.Context(), queue)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		depths[queue] = depth
	}
	workers, err := q.Heartbeats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"queues":  depths,
		"workers": workers,
	})
}

type enqueueRequest struct {
	Function   string         `json:"function"`
	Args       map[string]any `json:"args"`
	JobID      string         `json:"job_id"`
	Queue      string         `json:"queue"`
	DeferByMs  int64          `json:"defer_by_ms"`
	DeferUntil *time.Time     `json:"defer_until"`
	ExpiresMs  int64          `json:"expires_ms"`
}

// EnqueueJob handles POST /jobs.
func (s *Server) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	q := s.App.Queue()
	if q == nil {
		s.writeError(w, http.StatusServiceUnavailable, "not connected to redis")
		return
	}

	var body enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Function == "" {
		s.writeError(w, http.StatusBadRequest, "function is required")
		return
	}

	req := ports.EnqueueRequest{
		JobID:    body.JobID,
		Queue:    body.Queue,
		Function: body.Function,
		Args:     body.Args,
		DeferBy:  time.Duration(body.DeferByMs) * time.Millisecond,
		Expires:  time.Duration(body.ExpiresMs) * time.Millisecond,
	}
	if body.DeferUntil != nil {
		req.DeferUntil = *body.DeferUntil
	}

	id, err := q.Enqueue(r.Context(), req)
	switch {
	case errors.Is(err, job.ErrDuplicate):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, job.ErrDeferConflict):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	queue := body.Queue
	if queue == "" {
		queue = job.DefaultQueue
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": id,
		"queue":  queue,
	})
}

type jobView struct {
	ID           string         `json:"job_id"`
	Function     string         `json:"function"`
	Args         map[string]any `json:"args,omitempty"`
	EnqueueTime  time.Time      `json:"enqueue_time"`
	ScheduledFor time.Time      `json:"scheduled_for"`
}

// ListJobs handles GET /jobs?queue=...
func (s *Server) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := s.App.Queue()
	if q == nil {
		s.writeError(w, http.StatusServiceUnavailable, "not connected to redis")
		return
	}

	queued, err := q.QueuedJobs(r.Context(), r.URL.Query().Get("queue"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]jobView, 0, len(queued))
	for _, qj := range queued {
		views = append(views, jobView{
			ID:           qj.ID,
			Function:     qj.Def.Function,
			Args:         qj.Def.Args,
			EnqueueTime:  qj.Def.EnqueueTime,
			ScheduledFor: time.UnixMilli(qj.Def.Score).UTC(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

// GetJob handles GET /jobs/{id}?queue=...
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j := s.App.Job(id, r.URL.Query().Get("queue"))

	status, err := j.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{
		"job_id": id,
		"status": status,
	}
	if status == job.StatusComplete {
		result, err := j.Result(r.Context())
		if err != nil && !errors.Is(err, job.ErrNotFound) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err == nil {
			resp["result"] = result
		}
	}
	if status == job.StatusNotFound {
		s.writeJSON(w, http.StatusNotFound, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// AbortJob handles DELETE /jobs/{id}?queue=...
func (s *Server) AbortJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	j := s.App.Job(id, r.URL.Query().Get("queue"))

	aborted, err := j.Abort(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !aborted {
		s.writeError(w, http.StatusNotFound, "job not queued (already claimed or unknown)")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "aborted": true})
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fedutinova/avatarcast/internal/auth"
	"github.com/fedutinova/avatarcast/internal/common"
	"github.com/fedutinova/avatarcast/internal/config"
	"github.com/fedutinova/avatarcast/internal/job"
	"github.com/fedutinova/avatarcast/internal/submission"
	"github.com/fedutinova/avatarcast/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
)

const (
	maxRequestBody    = 1 << 20
	pollRetryAfter    = "5"
	defaultRatePerMin = 30
	defaultListLimit  = 20
	maxListLimit      = 100
)

// Pinger is a dependency the readiness check can reach.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusCounter is implemented by stores that can summarize their records.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[job.Status]int64, error)
}

type Handlers struct {
	Jobs     *submission.Service
	Counter  StatusCounter
	Pingers  map[string]Pinger
	FilesDir string
	Config   config.Config
}

func (h *Handlers) Routers(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)

	// for static file serving for local storage
	if h.FilesDir != "" {
		r.Get("/files/*", h.serveFiles)
	}

	rate := h.Config.SubmitRatePerMin
	if rate <= 0 {
		rate = defaultRatePerMin
	}

	r.Group(func(r chi.Router) {
		if h.Config.AuthEnabled() {
			r.Use(auth.JWTMiddleware(h.Config.JWTSecret, h.Config.JWTIssuer))
		}

		r.With(h.requirePerm(auth.PermJobSubmit), httprate.LimitByIP(rate, time.Minute)).
			Post("/v1/jobs", h.submitJob)
		r.With(h.requirePerm(auth.PermJobRead)).Get("/v1/jobs", h.listJobs)
		r.With(h.requirePerm(auth.PermJobRead)).Get("/v1/jobs/{id}", h.getJob)
		r.With(h.requirePerm(auth.PermJobRead)).Get("/v1/avatars", h.listAvatars)
		r.With(h.requirePerm(auth.PermAdminAll)).Get("/v1/admin/stats", h.stats)
	})
}

// requirePerm enforces a permission only when auth is configured.
func (h *Handlers) requirePerm(perm string) func(http.Handler) http.Handler {
	if !h.Config.AuthEnabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	return auth.RequirePerm(perm)
}

func (h *Handlers) serveFiles(w http.ResponseWriter, r *http.Request) {
	filePath := strings.TrimPrefix(r.URL.Path, "/files/")
	if filePath == "" {
		http.Error(w, "file path required", http.StatusBadRequest)
		return
	}

	if strings.Contains(filePath, "..") {
		http.Error(w, "invalid file path", http.StatusBadRequest)
		return
	}

	fullPath := filepath.Join(h.FilesDir, filepath.FromSlash(filePath))
	http.ServeFile(w, r, fullPath)
}

func (h *Handlers) submitJob(w http.ResponseWriter, r *http.Request) {
	var req validation.RenderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.Jobs.SubmitAs(r.Context(), callerSubject(r), req)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "validation failed",
				"details": verrs,
			})
			return
		}
		slog.Error("failed to submit job", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/v1/jobs/"+id.String())
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": id,
		"status": job.StatusQueued,
	})
}

type jobResponse struct {
	*job.Job
	ElapsedSeconds            float64  `json:"elapsed_seconds"`
	EstimatedRemainingSeconds *float64 `json:"estimated_remaining_seconds,omitempty"`
}

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	j, err := h.Jobs.Status(r.Context(), id)
	if err != nil {
		if common.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to load job", "job_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	resp := jobResponse{
		Job:            j,
		ElapsedSeconds: roundSeconds(j.Elapsed(now)),
	}
	if remaining, ok := j.EstimateRemaining(now); ok {
		s := roundSeconds(remaining)
		resp.EstimatedRemainingSeconds = &s
	}
	if !j.Status.Terminal() {
		w.Header().Set("Retry-After", pollRetryAfter)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}

	owner := r.URL.Query().Get("owner")
	// without admin rights a caller only sees its own jobs
	if cl, ok := auth.FromContext(r.Context()); ok {
		if _, admin := auth.PermsForRoles(cl.Roles)[auth.PermAdminAll]; !admin {
			owner = cl.Subject
		}
	}

	jobs, err := h.Jobs.List(r.Context(), job.ListFilter{Owner: owner, Limit: limit})
	if err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			http.Error(w, "job listing not supported by this store", http.StatusNotImplemented)
			return
		}
		slog.Error("failed to list jobs", "owner", owner, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (h *Handlers) listAvatars(w http.ResponseWriter, r *http.Request) {
	avatars := validation.AvatarsByCategory(r.URL.Query().Get("category"))
	writeJSON(w, http.StatusOK, map[string]any{
		"avatars": avatars,
		"count":   len(avatars),
	})
}

// callerSubject is the token subject, or empty when auth is off.
func callerSubject(r *http.Request) string {
	if cl, ok := auth.FromContext(r.Context()); ok {
		return cl.Subject
	}
	return ""
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}

	backlog, err := h.Jobs.Backlog(r.Context())
	if err != nil {
		slog.Error("failed to read queue backlog", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out["queue_backlog"] = backlog

	if h.Counter != nil {
		counts, err := h.Counter.CountByStatus(r.Context())
		if err != nil {
			slog.Error("failed to count jobs", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		out["jobs_by_status"] = counts
	}
	writeJSON(w, http.StatusOK, out)
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*10) / 10
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"narrator/internal/api"
	"narrator/internal/logging"
	"narrator/internal/queue"
	"narrator/internal/services"
	"narrator/internal/workflow"
)

const (
	maxSubmitBody   = 64 * 1024
	defaultPageSize = 50
)

// serverOptions configure the HTTP surface.
type serverOptions struct {
	Token       string
	CORSOrigins []string
	Logger      *slog.Logger
	// Health builds the health payload on demand.
	Health func(ctx context.Context) api.HealthResponse
}

type server struct {
	jobs   *api.JobService
	health func(ctx context.Context) api.HealthResponse
	logger *slog.Logger
}

// newHandler builds the router for the job API.
func newHandler(jobs *api.JobService, opts serverOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &server{jobs: jobs, health: opts.Health, logger: logging.NewComponentLogger(logger, "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, s.requestLogger)
	r.Get("/api/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(opts.Token))
		r.Route("/api/jobs", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleSubmit)
			r.Get("/{id}", s.handleDescribe)
			r.Delete("/{id}", s.handleCancel)
			r.Get("/{id}/output", s.handleOutput)
		})
	})

	if len(opts.CORSOrigins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = services.WithRequestID(ctx, id)
			r = r.WithContext(ctx)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
		return
	}
	writeJSON(w, http.StatusOK, s.health(r.Context()))
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown status %q", part), ""))
				return
			}
			statuses = append(statuses, status)
		}
	}
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer", ""))
			return
		}
		limit = n
	}
	items, err := s.jobs.List(r.Context(), statuses, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []api.JobItem{}
	}
	writeJSON(w, http.StatusOK, api.JobListResponse{Items: items})
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body: "+err.Error(), ""))
		return
	}
	item, err := s.jobs.Submit(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("job accepted",
		logging.String(logging.FieldEventType, "job_accepted"),
		logging.String(logging.FieldJobID, item.ID),
		logging.String("source", item.Source),
	)
	w.Header().Set("Location", "/api/jobs/"+item.ID)
	writeJSON(w, http.StatusAccepted, api.JobItemResponse{Item: item})
}

func (s *server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	item, err := s.jobs.Describe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.JobItemResponse{Item: item})
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.Cancel(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

func (s *server) handleOutput(w http.ResponseWriter, r *http.Request) {
	path, err := s.jobs.OutputPath(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// writeError maps service errors to status codes.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.KindOf(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, api.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, api.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, api.ErrUnavailable), errors.Is(err, workflow.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	case kind == services.KindInvalidSource, errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case kind == services.KindConfiguration:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_error",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	writeJSON(w, status, errorBody(err.Error(), string(kind)))
}

func errorBody(message, kind string) api.ErrorResponse {
	return api.ErrorResponse{Error: message, Kind: kind}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/tracker/internal/config"
	"github.com/antoniostano/tracker/internal/observability"
	"github.com/antoniostano/tracker/internal/tasks"
)

type Server struct {
	cfg       config.Config
	manager   *tasks.Manager
	metrics   *observability.Metrics
	storeMode string
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, manager *tasks.Manager, metrics *observability.Metrics, storeMode string) *Server {
	if strings.TrimSpace(storeMode) == "" {
		storeMode = "in-memory"
	}
	return &Server{
		cfg:       cfg,
		manager:   manager,
		metrics:   metrics,
		storeMode: storeMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may follow the change stream unless
				// any origin is explicitly allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	if s.cfg.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusBadRequest, "unknown_route", "no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusBadRequest, "unknown_route", "method "+r.Method+" is not supported on "+r.URL.Path)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	s.mountEntity(r, "/tasks", s.taskRoutes())
	s.mountEntity(r, "/epics", s.epicRoutes())
	s.mountEntity(r, "/subtasks", s.subtaskRoutes())
	r.Get("/history", s.handleHistory)
	r.Get("/prioritized", s.handlePrioritized)

	r.Get("/v1/events/ws", s.handleEventsWS)
	r.Get("/v1/export", s.handleExport)
	r.Get("/v1/perf/operations", s.handlePerfOperations)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	counts := s.manager.Counts()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode,
		"counts": map[string]int{
			"tasks":    counts[tasks.KindTask],
			"epics":    counts[tasks.KindEpic],
			"subtasks": counts[tasks.KindSubtask],
		},
	})
}

// observe records op in metrics and refreshes the entity gauges after writes.
func (s *Server) observe(op string, started time.Time, err error, mutated bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(op, tasks.Classify(err), time.Since(started))
	if mutated && err == nil {
		counts := s.manager.Counts()
		byKind := make(map[string]int, len(counts))
		for kind, n := range counts {
			byKind[strings.ToLower(string(kind))] = n
		}
		s.metrics.SetEntityCounts(byKind)
	}
}

// respondManagerError maps manager errors to status codes. Server-side
// failures are logged with the request id.
func respondManagerError(w http.ResponseWriter, r *http.Request, err error) {
	switch tasks.Classify(err) {
	case "persistence":
		log.Printf("request %s: %v", RequestIDFromContext(r.Context()), err)
		respondError(w, http.StatusInternalServerError, "persistence_failed", err.Error())
	case "not_found":
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case "conflict":
		respondError(w, http.StatusNotAcceptable, "scheduling_conflict", err.Error())
	case "invalid":
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		log.Printf("request %s: %v", RequestIDFromContext(r.Context()), err)
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

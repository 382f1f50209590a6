package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/execution-hub/agent-orchestrator/internal/application/memory"
	"github.com/execution-hub/agent-orchestrator/internal/application/monitor"
	"github.com/execution-hub/agent-orchestrator/internal/application/orchestrator"
	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
	"github.com/execution-hub/agent-orchestrator/internal/infrastructure/sse"
)

// Router routes tasks to workers.
type Router interface {
	Submit(ctx context.Context, t *task.Task) *task.Response
	AgentStatus() []orchestrator.AgentStatus
	Metrics(name string) (agent.PerformanceSnapshot, error)
	Stats() orchestrator.Stats
	TestAgent(ctx context.Context, name, message string) (*task.Response, error)
}

// Messenger queues inter-worker messages.
type Messenger interface {
	Send(msg *task.Message) error
	Pending() int
}

// Monitor exposes health, breaker and scaling state.
type Monitor interface {
	Instances(name string) []agent.Instance
	Health(name string) map[string]agent.HealthStatus
	Breaker(name string) (agent.BreakerState, bool)
	Samples(name string, n int) []agent.Sample
	Policy(name string) (agent.ScalingPolicy, bool)
	ConfigureAutoScaling(name string, p agent.ScalingPolicy) error
	SystemMetrics() monitor.SystemMetrics
}

// Registry removes workers.
type Registry interface {
	Unregister(name string) error
}

// MemoryReader reads worker memory.
type MemoryReader interface {
	Snapshot(worker string) (memory.Snapshot, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	router       Router
	bus          Messenger
	monitor      Monitor
	registry     Registry
	memory       MemoryReader
	sseHub       *sse.Hub
	metrics      http.Handler
	apiTokenHash []byte
}

func NewServer(
	router Router,
	bus Messenger,
	monitor Monitor,
	registry Registry,
	memory MemoryReader,
	sseHub *sse.Hub,
	metrics http.Handler,
	apiTokenHash string,
) *Server {
	return &Server{
		router:       router,
		bus:          bus,
		monitor:      monitor,
		registry:     registry,
		memory:       memory,
		sseHub:       sseHub,
		metrics:      metrics,
		apiTokenHash: []byte(apiTokenHash),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/events", s.streamEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/tasks", s.submitTask)
			r.Post("/messages", s.sendMessage)
			r.Get("/system", s.systemMetrics)

			r.Route("/agents", func(r chi.Router) {
				r.Get("/", s.listAgents)
				r.Get("/{name}/metrics", s.agentMetrics)
				r.Get("/{name}/instances", s.agentInstances)
				r.Get("/{name}/health", s.agentHealth)
				r.Get("/{name}/samples", s.agentSamples)
				r.Get("/{name}/scaling", s.getScaling)

				r.Group(func(r chi.Router) {
					r.Use(s.requireToken)
					r.Put("/{name}/scaling", s.putScaling)
					r.Get("/{name}/memory", s.agentMemory)
					r.Post("/{name}/test", s.testAgent)
					r.Delete("/{name}", s.unregisterAgent)
				})
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := []string{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

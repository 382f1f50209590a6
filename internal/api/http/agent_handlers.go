package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/execution-hub/agent-orchestrator/internal/application/memory"
	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
)

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"agents": s.router.AgentStatus()})
}

func (s *Server) agentMetrics(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap, err := s.router.Metrics(name)
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"agent":     name,
		"metrics":   snap,
		"errorRate": snap.ErrorRate(),
	})
}

func (s *Server) agentInstances(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	instances := s.monitor.Instances(name)
	if instances == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "agent not monitored")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"agent": name, "instances": instances})
}

func (s *Server) agentHealth(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	breaker, ok := s.monitor.Breaker(name)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "agent not monitored")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"agent":   name,
		"breaker": breaker,
		"health":  s.monitor.Health(name),
	})
}

func (s *Server) agentSamples(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	limit := parseLimit(r, 50, agent.DefaultSampleCapacity)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"agent":   name,
		"samples": s.monitor.Samples(name, limit),
	})
}

type scalingPolicyBody struct {
	MinInstances       int     `json:"minInstances"`
	MaxInstances       int     `json:"maxInstances"`
	TargetCPU          float64 `json:"targetCpuUtilization"`
	ScaleUpThreshold   float64 `json:"scaleUpThreshold"`
	ScaleDownThreshold float64 `json:"scaleDownThreshold"`
	CooldownPeriod     string  `json:"cooldownPeriod"`
}

func policyBody(p agent.ScalingPolicy) scalingPolicyBody {
	return scalingPolicyBody{
		MinInstances:       p.MinInstances,
		MaxInstances:       p.MaxInstances,
		TargetCPU:          p.TargetCPU,
		ScaleUpThreshold:   p.ScaleUpThreshold,
		ScaleDownThreshold: p.ScaleDownThreshold,
		CooldownPeriod:     p.CooldownPeriod.String(),
	}
}

func (b scalingPolicyBody) policy() (agent.ScalingPolicy, error) {
	p := agent.ScalingPolicy{
		MinInstances:       b.MinInstances,
		MaxInstances:       b.MaxInstances,
		TargetCPU:          b.TargetCPU,
		ScaleUpThreshold:   b.ScaleUpThreshold,
		ScaleDownThreshold: b.ScaleDownThreshold,
	}
	if b.CooldownPeriod != "" {
		d, err := time.ParseDuration(b.CooldownPeriod)
		if err != nil {
			return p, errors.New("invalid cooldownPeriod")
		}
		p.CooldownPeriod = d
	}
	return p, nil
}

func (s *Server) getScaling(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := s.monitor.Policy(name)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no scaling policy")
		return
	}
	respondJSON(w, http.StatusOK, policyBody(p))
}

func (s *Server) putScaling(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body scalingPolicyBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	p, err := body.policy()
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err := s.monitor.ConfigureAutoScaling(name, p); err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, policyBody(p))
}

func (s *Server) agentMemory(w http.ResponseWriter, r *http.Request) {
	snap, err := s.memory.Snapshot(chi.URLParam(r, "name"))
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

type testAgentRequest struct {
	Message string `json:"message"`
}

func (s *Server) testAgent(w http.ResponseWriter, r *http.Request) {
	var req testAgentRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		req.Message = "Hello, this is a test message."
	}
	resp, err := s.router.TestAgent(r.Context(), chi.URLParam(r, "name"), req.Message)
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) unregisterAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.registry.Unregister(name); err != nil {
		respondAgentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondAgentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrWorkerNotFound), errors.Is(err, memory.ErrUnknownWorker):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, agent.ErrInvalidPolicy):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

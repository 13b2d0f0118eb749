package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"agentgate/internal/domain"
)

const maxBodyBytes = 1 << 20

// invokeRequest is the body of POST /v1/agents/{name}/invocations and the
// payload of agents.invoke. Agent is only read from RPC payloads.
type invokeRequest struct {
	Agent   string         `json:"agent,omitempty"`
	Input   *domain.Input  `json:"input"`
	Context map[string]any `json:"context,omitempty"`
}

// invokeResponse wraps a result with the final run context.
type invokeResponse struct {
	ResultView
	Context map[string]any `json:"context,omitempty"`
}

type errorResponse struct {
	Error string           `json:"error"`
	Code  domain.ErrorCode `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"agents": len(s.catalog.Names()),
	})
}

func (s *Server) listAgents() []AgentView {
	names := s.catalog.Names()
	sort.Strings(names)
	views := make([]AgentView, 0, len(names))
	for _, name := range names {
		a, err := s.catalog.Get(name)
		if err != nil {
			continue
		}
		views = append(views, NewAgentView(a))
	}
	return views
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.listAgents())
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.catalog.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, domain.ErrorCodeOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, NewAgentView(a))
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var body invokeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, domain.CodeInvalidRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, domain.CodeInvalidRequest, "invalid request body")
		return
	}
	body.Agent = chi.URLParam(r, "name")

	client, _ := ClientFrom(r.Context())
	resp, err := s.invoke(r.Context(), client, body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrAgentNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, domain.ErrorCodeOf(err), err.Error())
		return
	}
	writeJSON(w, resp.status, resp.body)
}

type invokeOutcome struct {
	status int
	body   invokeResponse
}

// invoke resolves the agent and runs one invocation. Errors are returned only
// for requests that never reached the runner.
func (s *Server) invoke(ctx context.Context, client *ClientInfo, body invokeRequest) (invokeOutcome, error) {
	agent, err := s.catalog.Get(body.Agent)
	if err != nil {
		return invokeOutcome{}, err
	}
	if body.Input == nil {
		return invokeOutcome{}, domain.NewDomainError("gateway.invoke", domain.ErrInvalidRequest, "input is required")
	}

	rc := domain.NewRunContext(body.Context)
	start := time.Now()
	res := s.invoker.Run(ctx, domain.InvocationRequest{
		Agent:   agent,
		Input:   *body.Input,
		Context: rc,
	})

	clientName := ""
	if client != nil {
		clientName = client.Name
	}
	s.logger.Info("gateway invocation",
		"client", clientName,
		"agent", agent.Name(),
		"invocation_id", res.ID(),
		"outcome", res.Outcome(),
		"duration", time.Since(start),
	)

	return invokeOutcome{
		status: statusFor(res),
		body:   invokeResponse{ResultView: NewResultView(res), Context: rc.Snapshot()},
	}, nil
}

func (s *Server) rpcListAgents(context.Context, *ClientInfo, json.RawMessage) (any, error) {
	return s.listAgents(), nil
}

func (s *Server) rpcInvoke(ctx context.Context, client *ClientInfo, payload json.RawMessage) (any, error) {
	var body invokeRequest
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, domain.NewDomainError("agents.invoke", domain.ErrInvalidRequest, err.Error())
	}
	resp, err := s.invoke(ctx, client, body)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

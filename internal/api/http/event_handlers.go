package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
	"github.com/execution-hub/agent-orchestrator/internal/infrastructure/sse"
)

// streamEvents streams lifecycle events. Optional query filters: agent and
// types (comma separated).
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	var types []event.Type
	for _, t := range splitCSV(r.URL.Query().Get("types")) {
		types = append(types, event.Type(t))
	}

	client := sse.NewClient(clientID, r.URL.Query().Get("agent"), types)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case e, open := <-client.Events:
			if !open {
				return
			}
			payload, _ := json.Marshal(e)
			_, _ = w.Write([]byte("event: " + string(e.Type) + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

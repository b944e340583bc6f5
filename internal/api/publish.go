package api

import (
	"encoding/json"
	"net/http"
)

// publishRequest is the body of POST /publish. Payload is sent as UTF-8 text.
type publishRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	QoS     int    `json:"qos"`
	Retain  bool   `json:"retain"`
}

// handlePublish queues a message for the broker.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.session.Publish(req.Topic, []byte(req.Payload), req.QoS, req.Retain); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"topic": req.Topic,
		"bytes": len(req.Payload),
	})
}

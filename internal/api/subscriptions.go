package api

import (
	"encoding/json"
	"net/http"
)

// subscribeRequest is the body of POST /subscriptions.
type subscribeRequest struct {
	Topic string `json:"topic"`
	QoS   int    `json:"qos"`
}

// handleListSubscriptions returns the subscriptions of the current session,
// acknowledged or not.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	subs := s.session.Snapshot().Subscriptions
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs, "count": len(subs)})
}

// handleSubscribe sends a subscribe request. The broker's answer arrives as
// a subscribed or subscribe_failed event.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.session.Subscribe(req.Topic, req.QoS); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"topic": req.Topic, "qos": req.QoS})
}

// handleUnsubscribe removes a subscription.
//
// Query parameters:
//   - topic: the topic filter to remove (required)
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeBadRequest(w, "topic query parameter is required")
		return
	}
	if len(topic) > maxQueryParamLen {
		writeBadRequest(w, "topic exceeds maximum length")
		return
	}

	if err := s.session.Unsubscribe(topic); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"topic": topic})
}

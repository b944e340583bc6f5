package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/mqttdesk/internal/session"
)

// maxQueryParamLen limits ID and topic path/query parameters.
const maxQueryParamLen = 256

// portValue accepts a port as either a JSON number or a JSON string, the
// way a form field or a script would send it. Range checking is left to
// the session manager.
type portValue string

// UnmarshalJSON implements json.Unmarshaler.
func (p *portValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = portValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("port must be a number or a string")
	}
	*p = portValue(n.String())
	return nil
}

// connectRequest is the body of POST /session/connect.
//
// With ProfileID set the host, port and username come from the saved
// profile and its will (if any) becomes the pending will.
type connectRequest struct {
	ProfileID string    `json:"profile_id"`
	Host      string    `json:"host"`
	Port      portValue `json:"port"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
}

// willRequest is the body of PUT /session/will.
type willRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	QoS     int    `json:"qos"`
	Retain  bool   `json:"retain"`
}

// sessionResponse extends the state snapshot with counters.
type sessionResponse struct {
	session.Snapshot
	ClientID     string `json:"client_id"`
	MessageCount int    `json:"message_count"`
}

// handleGetSession returns the current session snapshot.
func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{
		Snapshot:     s.session.Snapshot(),
		ClientID:     s.clientID,
		MessageCount: s.session.MessageCount(),
	})
}

// handleConnect starts a connection attempt. The outcome is reported
// asynchronously as a status_changed event, so success is 202 Accepted.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	params := session.ConnectParams{
		Host:     req.Host,
		Port:     string(req.Port),
		Username: req.Username,
		Password: req.Password,
	}

	if req.ProfileID != "" {
		if s.profiles == nil {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "profile storage is not configured")
			return
		}
		if len(req.ProfileID) > maxQueryParamLen {
			writeBadRequest(w, "invalid profile ID")
			return
		}
		p, err := s.profiles.Get(r.Context(), req.ProfileID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		params = p.ConnectParams(req.Password)
		s.logger.Info("connecting with profile", "profile_id", p.ID, "name", p.Name)
	}

	if err := s.session.Connect(params); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": s.session.Snapshot().Status,
	})
}

// handleDisconnect requests a disconnect. It is accepted in every state.
func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.session.Disconnect()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": s.session.Snapshot().Status,
	})
}

// handleSetWill stores the last will for the next connect. deferred is
// true when a live session keeps its old will.
func (s *Server) handleSetWill(w http.ResponseWriter, r *http.Request) {
	var req willRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	deferred, err := s.session.SetLastWill(req.Topic, req.Payload, req.QoS, req.Retain)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deferred": deferred})
}

// handleClearWill removes the pending last will.
func (s *Server) handleClearWill(w http.ResponseWriter, _ *http.Request) {
	deferred := s.session.ClearLastWill()
	writeJSON(w, http.StatusOK, map[string]any{"deferred": deferred})
}

// parseLimit reads an optional positive integer query parameter.
func parseLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

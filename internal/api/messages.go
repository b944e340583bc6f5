package api

import "net/http"

// handleListMessages returns the message log, newest first.
//
// Query parameters:
//   - limit: return only the newest N records
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeBadRequest(w, "limit must be a positive integer")
		return
	}

	msgs := s.session.Messages()
	total := len(msgs)
	if limit > 0 && limit < total {
		msgs = msgs[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
		"total":    total,
	})
}

// handleClearMessages empties the message log.
func (s *Server) handleClearMessages(w http.ResponseWriter, _ *http.Request) {
	s.session.ClearMessages()
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/mqttdesk/internal/audit"
)

// handleListAudit returns the connection history, newest first.
//
// Query parameters:
//   - action: filter by action (connected, connect_failed, profile_created, ...)
//   - limit: page size (default 50, max 500)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{Action: audit.Action(q.Get("action"))}
	if len(filter.Action) > maxQueryParamLen {
		writeBadRequest(w, "action exceeds maximum length")
		return
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	page, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit log", "error", err)
		writeInternalError(w, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// recordAudit journals an API action. Failures are logged, never returned:
// the action itself has already succeeded.
func (s *Server) recordAudit(r *http.Request, action audit.Action, target string, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &audit.Entry{
		Action:  action,
		Source:  audit.SourceAPI,
		Target:  target,
		Details: details,
	}
	if subject, ok := r.Context().Value(ctxKeySubject).(string); ok && subject != "" {
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		entry.Details["subject"] = subject
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("audit write failed", "action", string(action), "error", err)
	}
}

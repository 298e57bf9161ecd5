package http

import (
	"net/http"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	familyID, err := pathID(r, "familyID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := queryInt(r, "limit", 50)

	notes, err := s.svc.Notifications.List(r.Context(), uid, familyID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]notificationJSON, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNotificationJSON(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	familyID, err := pathID(r, "familyID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	notificationID, err := pathID(r, "notificationID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.Notifications.MarkRead(r.Context(), uid, familyID, notificationID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

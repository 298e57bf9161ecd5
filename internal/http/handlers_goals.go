package http

import (
	"net/http"
	"time"

	"famiglia/internal/core"
)

type createGoalRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	TargetCents int64      `json:"target_cents"`
	Target      string     `json:"target"`
	Deadline    *time.Time `json:"deadline"`
}

type contributeRequest struct {
	AmountCents     int64  `json:"amount_cents"`
	Amount          string `json:"amount"`
	SourceAccountID int64  `json:"source_account_id"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
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

	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	target, err := parseAmount(req.TargetCents, req.Target)
	if err != nil {
		writeError(w, r, err)
		return
	}

	goal := core.Goal{
		FamilyID:     familyID,
		Name:         sanitizeInput(req.Name),
		Description:  sanitizeInput(req.Description),
		TargetAmount: target,
	}
	if req.Deadline != nil {
		goal.Deadline = *req.Deadline
	}

	created, err := s.svc.Goals.CreateGoal(r.Context(), uid, goal)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toGoalJSON(created))
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
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

	goals, err := s.svc.Goals.ListGoals(r.Context(), uid, familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]goalJSON, 0, len(goals))
	for _, g := range goals {
		out = append(out, toGoalJSON(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	uid, familyID, goalID, err := s.goalPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	goal, err := s.svc.Goals.GetGoal(r.Context(), uid, familyID, goalID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toGoalJSON(goal))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	uid, familyID, goalID, err := s.goalPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.Goals.DeleteGoal(r.Context(), uid, familyID, goalID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	uid, familyID, goalID, err := s.goalPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req contributeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	goal, err := s.svc.Goals.Contribute(r.Context(), uid, familyID, goalID,
		amount, req.SourceAccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toGoalJSON(goal))
}

func (s *Server) handleListContributions(w http.ResponseWriter, r *http.Request) {
	uid, familyID, goalID, err := s.goalPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	contributions, err := s.svc.Goals.ListContributions(r.Context(), uid, familyID, goalID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]contributionJSON, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, toContributionJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) goalPath(r *http.Request) (uid, familyID, goalID int64, err error) {
	if uid, err = userID(r); err != nil {
		return
	}
	if familyID, err = pathID(r, "familyID"); err != nil {
		return
	}
	goalID, err = pathID(r, "goalID")
	return
}

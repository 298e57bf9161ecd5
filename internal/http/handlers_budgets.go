package http

import (
	"net/http"
	"time"

	"famiglia/internal/core"
)

type createBudgetRequest struct {
	Name        string    `json:"name"`
	CategoryID  int64     `json:"category_id"`
	AmountCents int64     `json:"amount_cents"`
	Amount      string    `json:"amount"`
	Period      string    `json:"period"`
	StartDate   time.Time `json:"start_date"`
}

type createLimitRequest struct {
	MemberID    int64     `json:"member_id"`
	CategoryID  int64     `json:"category_id"`
	AmountCents int64     `json:"amount_cents"`
	Amount      string    `json:"amount"`
	Period      string    `json:"period"`
	StartDate   time.Time `json:"start_date"`
	AutoUnlock  bool      `json:"auto_unlock"`
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
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

	var req createBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	budget, err := s.svc.Budgets.CreateBudget(r.Context(), uid, core.Budget{
		FamilyID:   familyID,
		CategoryID: req.CategoryID,
		Name:       sanitizeInput(req.Name),
		Amount:     amount,
		Period:     core.Period(req.Period),
		StartDate:  req.StartDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateStatuses(familyID)

	writeJSON(w, http.StatusCreated, toBudgetJSON(budget))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
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

	key := statusCacheKey(familyID)
	if statuses, found := s.statusCache.Get(key); found {
		// The cached snapshot is family-scoped; membership still has to hold.
		if _, err := s.svc.Membership.GetGroup(r.Context(), uid, familyID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBudgetStatusListJSON(statuses))
		return
	}

	statuses, err := s.svc.Budgets.ListBudgetStatuses(r.Context(), uid, familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.statusCache.Set(key, statuses)

	writeJSON(w, http.StatusOK, toBudgetStatusListJSON(statuses))
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
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
	budgetID, err := pathID(r, "budgetID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, err := s.svc.Budgets.GetBudgetStatus(r.Context(), uid, familyID, budgetID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toBudgetStatusJSON(status))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
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
	budgetID, err := pathID(r, "budgetID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.Budgets.DeleteBudget(r.Context(), uid, familyID, budgetID); err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateStatuses(familyID)

	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCreateLimit(w http.ResponseWriter, r *http.Request) {
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

	var req createLimitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit, err := s.svc.Budgets.CreateMemberLimit(r.Context(), uid, core.MemberLimit{
		FamilyID:   familyID,
		MemberID:   req.MemberID,
		CategoryID: req.CategoryID,
		Amount:     amount,
		Period:     core.Period(req.Period),
		StartDate:  req.StartDate,
		AutoUnlock: req.AutoUnlock,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLimitJSON(limit))
}

func (s *Server) handleGetLimit(w http.ResponseWriter, r *http.Request) {
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
	limitID, err := pathID(r, "limitID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, err := s.svc.Budgets.GetLimitStatus(r.Context(), uid, familyID, limitID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toLimitStatusJSON(status))
}

func (s *Server) handleDeleteLimit(w http.ResponseWriter, r *http.Request) {
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
	limitID, err := pathID(r, "limitID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.Budgets.DeleteMemberLimit(r.Context(), uid, familyID, limitID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleUnlockLimit(w http.ResponseWriter, r *http.Request) {
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
	limitID, err := pathID(r, "limitID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.Budgets.UnlockLimit(r.Context(), uid, familyID, limitID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

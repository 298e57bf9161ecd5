package http

import (
	"context"
	"net/http"
)

type sharedAccountsRequest struct {
	AccountIDs []int64 `json:"account_ids"`
}

func (s *Server) handleListSharedAccounts(w http.ResponseWriter, r *http.Request) {
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

	accounts, err := s.svc.Accounts.ListSharedAccounts(r.Context(), uid, familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]sharedAccountJSON, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toSharedAccountJSON(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetSharedAccounts(w http.ResponseWriter, r *http.Request) {
	s.updateSharedAccounts(w, r, s.svc.Accounts.SetSharedAccounts)
}

func (s *Server) handleAddSharedAccounts(w http.ResponseWriter, r *http.Request) {
	s.updateSharedAccounts(w, r, s.svc.Accounts.AddSharedAccounts)
}

func (s *Server) updateSharedAccounts(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, uid, familyID, memberID int64, accountIDs []int64) error) {
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
	memberID, err := pathID(r, "memberID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req sharedAccountsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := apply(r.Context(), uid, familyID, memberID, req.AccountIDs); err != nil {
		writeError(w, r, err)
		return
	}

	// Sharing changes reshape budget and limit scopes.
	s.invalidateStatuses(familyID)

	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRemoveSharedAccount(w http.ResponseWriter, r *http.Request) {
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
	memberID, err := pathID(r, "memberID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	accountID, err := pathID(r, "accountID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.Accounts.RemoveSharedAccount(r.Context(), uid, familyID, memberID, accountID); err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateStatuses(familyID)

	writeJSON(w, http.StatusNoContent, nil)
}

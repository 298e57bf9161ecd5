package http

import (
	"net/http"
	"strings"

	"famiglia/internal/core"
)

type requestTransferRequest struct {
	Recipient     recipientJSON `json:"recipient"`
	FromAccountID int64         `json:"from_account_id"`
	AmountCents   int64         `json:"amount_cents"`
	Amount        string        `json:"amount"`
	Description   string        `json:"description"`
}

type approveTransferRequest struct {
	Approve bool `json:"approve"`
}

func (s *Server) handleRequestTransfer(w http.ResponseWriter, r *http.Request) {
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

	var req requestTransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	recipient, err := parseRecipient(req.Recipient)
	if err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	transfer, err := s.svc.Transfers.RequestTransfer(r.Context(), uid, familyID, recipient,
		req.FromAccountID, amount, sanitizeInput(req.Description))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransferJSON(transfer))
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
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

	status := core.TransferStatus(strings.TrimSpace(r.URL.Query().Get("status")))

	transfers, err := s.svc.Transfers.ListTransfers(r.Context(), uid, familyID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]transferJSON, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, toTransferJSON(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	uid, familyID, transferID, err := s.transferPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	transfer, err := s.svc.Transfers.GetTransfer(r.Context(), uid, familyID, transferID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransferJSON(transfer))
}

func (s *Server) handleApproveTransfer(w http.ResponseWriter, r *http.Request) {
	uid, familyID, transferID, err := s.transferPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req approveTransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	transfer, err := s.svc.Transfers.ApproveTransfer(r.Context(), uid, familyID, transferID, req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransferJSON(transfer))
}

func (s *Server) handleRetryTransfer(w http.ResponseWriter, r *http.Request) {
	uid, familyID, transferID, err := s.transferPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	transfer, err := s.svc.Transfers.RetryExecution(r.Context(), uid, familyID, transferID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransferJSON(transfer))
}

func (s *Server) transferPath(r *http.Request) (uid, familyID, transferID int64, err error) {
	if uid, err = userID(r); err != nil {
		return
	}
	if familyID, err = pathID(r, "familyID"); err != nil {
		return
	}
	transferID, err = pathID(r, "transferID")
	return
}

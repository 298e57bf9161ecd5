package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"famiglia/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON document from the request body into dst,
// rejecting unknown fields and oversized payloads.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return core.Validation("request body too large")
		case errors.Is(err, io.EOF):
			return core.Validation("request body is required")
		default:
			return core.Validationf("malformed request body: %v", err)
		}
	}

	// A second document on the same body is a malformed request.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return core.Validation("request body must contain a single JSON object")
	}

	return nil
}

// parseAmount resolves an amount supplied either as integer cents or as a
// decimal string ("12.50" or "12,50"). Clients set one or the other.
func parseAmount(cents int64, decimal string) (core.Money, error) {
	if decimal == "" {
		return core.Money{Cents: cents}, nil
	}
	if cents != 0 {
		return core.Money{}, core.Validation("provide the amount in cents or as a decimal, not both")
	}
	parsed, err := core.ParseDecimalToCents(decimal)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: parsed}, nil
}

// parseRecipient converts the wire recipient into the domain tagged union.
func parseRecipient(rec recipientJSON) (core.Recipient, error) {
	switch core.RecipientKind(rec.Kind) {
	case core.RecipientMember:
		return core.MemberRecipient(rec.MemberID), nil
	case core.RecipientAccount:
		return core.AccountRecipient(rec.AccountID), nil
	default:
		return core.Recipient{}, core.Validation("recipient kind must be member or account")
	}
}

package core

// RecipientKind discriminates the two transfer destination forms.
type RecipientKind string

const (
	RecipientMember  RecipientKind = "member"
	RecipientAccount RecipientKind = "account"
)

// Recipient is the tagged-union destination of a transfer: exactly one of a
// member or an account. The zero value is invalid.
type Recipient struct {
	Kind      RecipientKind
	MemberID  int64
	AccountID int64
}

// MemberRecipient builds a recipient addressing another member.
func MemberRecipient(memberID int64) Recipient {
	return Recipient{Kind: RecipientMember, MemberID: memberID}
}

// AccountRecipient builds a recipient addressing an account directly.
func AccountRecipient(accountID int64) Recipient {
	return Recipient{Kind: RecipientAccount, AccountID: accountID}
}

func (r Recipient) Validate() error {
	switch r.Kind {
	case RecipientMember:
		if r.MemberID == 0 {
			return Validation("recipient member id is required")
		}
		if r.AccountID != 0 {
			return Validation("recipient must name a member or an account, not both")
		}
	case RecipientAccount:
		if r.AccountID == 0 {
			return Validation("recipient account id is required")
		}
		if r.MemberID != 0 {
			return Validation("recipient must name a member or an account, not both")
		}
	default:
		return Validation("recipient is required")
	}
	return nil
}

package models

import (
	"strings"
	"time"

	id "memberships/pkg/domain"
)

// ChildAgeYears is the age below which an account is classified as a child.
const ChildAgeYears = 13

// Account is created lazily for each verified identity-provider e-mail.
type Account struct {
	ID        id.AccountID
	Email     string
	EventID   id.EventID // nil until registered
	Admin     bool
	CreatedAt time.Time
}

// IsRegistered reports whether the account is registered to eventID.
func (a Account) IsRegistered(eventID id.EventID) bool {
	return !a.EventID.IsNil() && a.EventID == eventID
}

// NormalizeEmail is the canonical form used for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsChildAt classifies a date of birth answer. Missing or unparsable dates
// are not children.
func IsChildAt(dob string, now time.Time) bool {
	born, err := time.Parse(time.DateOnly, strings.TrimSpace(dob))
	if err != nil {
		return false
	}
	return born.AddDate(ChildAgeYears, 0, 0).After(now)
}

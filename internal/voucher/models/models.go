package models

import (
	"time"

	id "memberships/pkg/domain"
)

// Voucher is a single-use purchase entitlement mirrored from the ticketing
// provider. Paid is a one-way transition: once OrderCode is set the voucher is
// consumed and its order reference never changes.
type Voucher struct {
	ID        id.VoucherID
	Code      string
	EventID   id.EventID
	OwnerID   id.AccountID
	Primary   bool
	ExpiresAt time.Time
	OrderCode string
	Secret    string
	// GiftedTo is the pending recipient; nil when no gift is pending.
	GiftedTo  id.AccountID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (v Voucher) IsPaid() bool { return v.OrderCode != "" }

func (v Voucher) IsExpired(now time.Time) bool { return !now.Before(v.ExpiresAt) }

func (v Voucher) HasPendingGift() bool { return !v.GiftedTo.IsNil() }

func (v Voucher) OwnedBy(accountID id.AccountID) bool { return v.OwnerID == accountID }

// BlocksIncoming reports whether holding v prevents the holder from receiving
// a transferred voucher.
func BlocksIncoming(held []Voucher, now time.Time) bool {
	for _, v := range held {
		if v.IsPaid() || !v.IsExpired(now) {
			return true
		}
	}
	return false
}

// HoldsPrimary reports whether held contains a primary voucher, expired or not.
func HoldsPrimary(held []Voucher) bool {
	for _, v := range held {
		if v.Primary {
			return true
		}
	}
	return false
}

// HoldsPaid reports whether any voucher in held is paid.
func HoldsPaid(held []Voucher) bool {
	for _, v := range held {
		if v.IsPaid() {
			return true
		}
	}
	return false
}

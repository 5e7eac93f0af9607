package models

import (
	"time"

	id "memberships/pkg/domain"
)

// DefaultVoucherExpiry is the validity of freshly allocated vouchers when an
// event does not configure one.
const DefaultVoucherExpiry = 48 * time.Hour

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// Contains reports whether now falls within the window.
func (w Window) Contains(now time.Time) bool {
	return !now.Before(w.Start) && now.Before(w.End)
}

// Event is one lottery cycle. All gating decisions are pure functions of the
// configured windows and the supplied instant.
type Event struct {
	ID           id.EventID
	Name         string
	Registration Window
	Lottery      Window
	Transfer     Window

	// FCFSVoucher is the shared code handed out once the lottery has closed.
	FCFSVoucher string
	// ChildVoucher is the shared code for accounts under the age limit.
	ChildVoucher string

	VoucherExpiry  time.Duration
	TicketItem     int64
	ChildItem      int64
	QuestionSetIDs []int64
}

// RegistrationAllowed is true inside the registration window unless the draw
// has started.
func (e Event) RegistrationAllowed(now time.Time) bool {
	return e.Registration.Contains(now) && !e.LotteryRunning(now)
}

func (e Event) LotteryRunning(now time.Time) bool {
	return e.Lottery.Contains(now)
}

func (e Event) TransferAllowed(now time.Time) bool {
	return e.Transfer.Contains(now)
}

// IsFirstComeFirstServed is true once the lottery has ended and a fallback
// code is configured.
func (e Event) IsFirstComeFirstServed(now time.Time) bool {
	return e.FCFSVoucher != "" && !now.Before(e.Lottery.End)
}

// VoucherValidity returns the configured expiry offset or the default.
func (e Event) VoucherValidity() time.Duration {
	if e.VoucherExpiry <= 0 {
		return DefaultVoucherExpiry
	}
	return e.VoucherExpiry
}

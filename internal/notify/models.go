// Package notify carries lifecycle e-mails from the domain to the mailer:
// services enqueue Messages into an outbox, a relay publishes them to Kafka
// and the mailer process renders and sends them.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "memberships/pkg/domain"
)

type Kind string

const (
	KindRegistrationComplete Kind = "registration_complete"
	KindVoucherAllocated     Kind = "voucher_allocated"
	KindVoucherTransferred   Kind = "voucher_transferred"
	KindOrderComplete        Kind = "order_complete"
	KindGiftedTicket         Kind = "gifted_ticket"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindRegistrationComplete, KindVoucherAllocated, KindVoucherTransferred, KindOrderComplete, KindGiftedTicket:
		return true
	}
	return false
}

// Message is one e-mail to send. Data holds template fields such as
// "sender", "voucher" and "expires".
type Message struct {
	ID        uuid.UUID         `json:"id"`
	Kind      Kind              `json:"kind"`
	To        string            `json:"to"`
	AccountID id.AccountID      `json:"account_id"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage builds a message with a fresh ID.
func NewMessage(kind Kind, to string, accountID id.AccountID, now time.Time, data map[string]string) Message {
	return Message{
		ID:        uuid.New(),
		Kind:      kind,
		To:        to,
		AccountID: accountID,
		Data:      data,
		CreatedAt: now,
	}
}

// Notifier queues a message. Implementations backed by the database join the
// transaction carried on ctx, so a message is only delivered if the state
// change that caused it commits.
type Notifier interface {
	Enqueue(ctx context.Context, msg Message) error
}

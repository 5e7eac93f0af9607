// Package outbox stores queued notifications until the relay publishes them.
package outbox

import (
	"github.com/google/uuid"

	"memberships/internal/notify"
)

// Entry is a queued message awaiting publication.
type Entry struct {
	ID       uuid.UUID
	Message  notify.Message
	Attempts int
}

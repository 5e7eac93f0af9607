// Package domain holds typed identifiers shared across modules.
//
// Each aggregate gets its own UUID-backed type so an AccountID can never be
// passed where a VoucherID is expected.
package domain

import "github.com/google/uuid"

type (
	AccountID uuid.UUID
	VoucherID uuid.UUID
	EventID   uuid.UUID
)

func NewAccountID() AccountID { return AccountID(uuid.New()) }
func NewVoucherID() VoucherID { return VoucherID(uuid.New()) }
func NewEventID() EventID     { return EventID(uuid.New()) }

func (id AccountID) String() string { return uuid.UUID(id).String() }
func (id VoucherID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string   { return uuid.UUID(id).String() }

func (id AccountID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id VoucherID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// Text marshalling lets IDs travel as canonical strings in JSON payloads.

func (id AccountID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id VoucherID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *AccountID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *VoucherID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"memberships/internal/event/models"
	id "memberships/pkg/domain"
	"memberships/pkg/platform/sentinel"
)

// PostgresRepository persists events in the events table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const eventColumns = `id, name, registration_start, registration_end, lottery_start, lottery_end,
	transfer_start, transfer_end, fcfs_voucher, child_voucher, voucher_expiry_secs,
	ticket_item, child_item, question_set_ids`

func (r *PostgresRepository) Current(ctx context.Context) (*models.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE active`)
	return scanEvent(row)
}

func (r *PostgresRepository) FindByID(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, uuid.UUID(eventID))
	return scanEvent(row)
}

// Upsert inserts or updates the event keyed by name. Activating an event
// deactivates every other one in the same transaction.
func (r *PostgresRepository) Upsert(ctx context.Context, event models.Event, active bool) (*models.Event, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin event upsert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if active {
		if _, err := tx.ExecContext(ctx, `UPDATE events SET active = FALSE WHERE active AND name <> $1`, event.Name); err != nil {
			return nil, fmt.Errorf("deactivate events: %w", err)
		}
	}

	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	var stored uuid.UUID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (`+eventColumns+`, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (name) DO UPDATE SET
			registration_start = EXCLUDED.registration_start,
			registration_end = EXCLUDED.registration_end,
			lottery_start = EXCLUDED.lottery_start,
			lottery_end = EXCLUDED.lottery_end,
			transfer_start = EXCLUDED.transfer_start,
			transfer_end = EXCLUDED.transfer_end,
			fcfs_voucher = EXCLUDED.fcfs_voucher,
			child_voucher = EXCLUDED.child_voucher,
			voucher_expiry_secs = EXCLUDED.voucher_expiry_secs,
			ticket_item = EXCLUDED.ticket_item,
			child_item = EXCLUDED.child_item,
			question_set_ids = EXCLUDED.question_set_ids,
			active = EXCLUDED.active OR events.active
		RETURNING id
	`,
		uuid.UUID(event.ID), event.Name,
		event.Registration.Start, event.Registration.End,
		event.Lottery.Start, event.Lottery.End,
		event.Transfer.Start, event.Transfer.End,
		event.FCFSVoucher, event.ChildVoucher,
		int64(event.VoucherValidity()/time.Second),
		event.TicketItem, event.ChildItem,
		pq.Array(event.QuestionSetIDs),
		active,
	).Scan(&stored)
	if err != nil {
		return nil, fmt.Errorf("upsert event %s: %w", event.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event upsert: %w", err)
	}
	event.ID = id.EventID(stored)
	return &event, nil
}

func scanEvent(row *sql.Row) (*models.Event, error) {
	var (
		e          models.Event
		expirySecs int64
		setIDs     pq.Int64Array
	)
	err := row.Scan(
		(*uuid.UUID)(&e.ID), &e.Name,
		&e.Registration.Start, &e.Registration.End,
		&e.Lottery.Start, &e.Lottery.End,
		&e.Transfer.Start, &e.Transfer.End,
		&e.FCFSVoucher, &e.ChildVoucher, &expirySecs,
		&e.TicketItem, &e.ChildItem, &setIDs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.VoucherExpiry = time.Duration(expirySecs) * time.Second
	e.QuestionSetIDs = []int64(setIDs)
	return &e, nil
}

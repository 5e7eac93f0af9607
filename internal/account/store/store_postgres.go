package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"memberships/internal/account/models"
	id "memberships/pkg/domain"
	"memberships/pkg/platform/sentinel"
	txcontext "memberships/pkg/platform/tx"
)

// PostgresStore persists accounts in the accounts table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const accountColumns = `id, email, event_id, admin, created_at`

// Upsert inserts the account or, when the e-mail is already taken (including
// by a concurrent insert), returns the existing row.
func (s *PostgresStore) Upsert(ctx context.Context, email string, now time.Time) (*models.Account, bool, error) {
	email = models.NormalizeEmail(email)

	var inserted uuid.UUID
	err := s.querier(ctx).QueryRowContext(ctx, `
		INSERT INTO accounts (id, email, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
		RETURNING id
	`, uuid.New(), email, now).Scan(&inserted)
	created := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert account: %w", err)
	}

	acc, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return acc, created, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, uuid.UUID(accountID))
	return scanAccount(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, models.NormalizeEmail(email))
	return scanAccount(row)
}

func (s *PostgresStore) Register(ctx context.Context, accountID id.AccountID, eventID id.EventID) (bool, error) {
	res, err := s.querier(ctx).ExecContext(ctx,
		`UPDATE accounts SET event_id = $1 WHERE id = $2 AND event_id IS NULL`,
		uuid.UUID(eventID), uuid.UUID(accountID),
	)
	if err != nil {
		return false, fmt.Errorf("register account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("register account rows: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, accountID); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

// RandomUndrawn selects one random registered account without any voucher.
// The query runs fresh on every draw step.
func (s *PostgresStore) RandomUndrawn(ctx context.Context, eventID id.EventID, exclude []id.AccountID) (*models.Account, error) {
	excluded := make([]string, 0, len(exclude))
	for _, accountID := range exclude {
		excluded = append(excluded, accountID.String())
	}

	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts a
		WHERE a.event_id = $1
		  AND NOT EXISTS (SELECT 1 FROM vouchers v WHERE v.account_id = a.id)
		  AND a.id <> ALL($2::uuid[])
		ORDER BY random()
		LIMIT 1
	`, uuid.UUID(eventID), pq.Array(excluded))
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var (
		acc     models.Account
		eventID uuid.NullUUID
	)
	err := row.Scan((*uuid.UUID)(&acc.ID), &acc.Email, &eventID, &acc.Admin, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if eventID.Valid {
		acc.EventID = id.EventID(eventID.UUID)
	}
	return &acc, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"memberships/internal/platform/postgres"
	"memberships/internal/voucher/models"
	id "memberships/pkg/domain"
	"memberships/pkg/platform/sentinel"
	txcontext "memberships/pkg/platform/tx"
)

// PostgresStore persists vouchers. Lock* methods take row locks and must run
// inside a transaction carried on ctx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const voucherColumns = `id, code, event_id, account_id, is_primary, expires_at,
	order_code, secret, gifted_to, created_at, updated_at`

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code)
	return scanVoucher(row)
}

// LockByCode loads the voucher with FOR UPDATE so concurrent transfer, gift
// and payment confirmation serialize on the row.
func (s *PostgresStore) LockByCode(ctx context.Context, code string) (*models.Voucher, error) {
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("lock voucher: %w", sentinel.ErrInvalidState)
	}
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE code = $1 FOR UPDATE`, code)
	return scanVoucher(row)
}

// LockAccount takes the account row lock, serializing writers that change
// what an account holds.
func (s *PostgresStore) LockAccount(ctx context.Context, accountID id.AccountID) error {
	if _, ok := txcontext.From(ctx); !ok {
		return fmt.Errorf("lock account: %w", sentinel.ErrInvalidState)
	}
	var locked uuid.UUID
	err := s.querier(ctx).QueryRowContext(ctx,
		`SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, uuid.UUID(accountID)).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID id.AccountID) ([]models.Voucher, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT `+voucherColumns+` FROM vouchers
		WHERE account_id = $1
		ORDER BY created_at, is_primary DESC
	`, uuid.UUID(accountID))
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	var out []models.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HasVouchers(ctx context.Context, accountID id.AccountID) (bool, error) {
	var exists bool
	err := s.querier(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM vouchers WHERE account_id = $1)`, uuid.UUID(accountID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("count vouchers: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Create(ctx context.Context, vouchers []models.Voucher) error {
	for _, v := range vouchers {
		_, err := s.querier(ctx).ExecContext(ctx, `
			INSERT INTO vouchers (id, code, event_id, account_id, is_primary, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		`, uuid.UUID(v.ID), v.Code, uuid.UUID(v.EventID), uuid.UUID(v.OwnerID), v.Primary, v.ExpiresAt, v.CreatedAt)
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert voucher: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, v models.Voucher) error {
	res, err := s.querier(ctx).ExecContext(ctx, `
		UPDATE vouchers SET account_id = $2, order_code = $3, secret = $4, gifted_to = $5, updated_at = $6
		WHERE id = $1
	`, uuid.UUID(v.ID), uuid.UUID(v.OwnerID), nullString(v.OrderCode), nullString(v.Secret), nullAccount(v.GiftedTo), v.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update voucher: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update voucher rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVoucher(row scanner) (*models.Voucher, error) {
	var (
		v         models.Voucher
		orderCode sql.NullString
		secret    sql.NullString
		giftedTo  uuid.NullUUID
	)
	err := row.Scan(
		(*uuid.UUID)(&v.ID), &v.Code, (*uuid.UUID)(&v.EventID), (*uuid.UUID)(&v.OwnerID),
		&v.Primary, &v.ExpiresAt, &orderCode, &secret, &giftedTo, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan voucher: %w", err)
	}
	v.OrderCode = orderCode.String
	v.Secret = secret.String
	if giftedTo.Valid {
		v.GiftedTo = id.AccountID(giftedTo.UUID)
	}
	return &v, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullAccount(accountID id.AccountID) uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.UUID(accountID), Valid: !accountID.IsNil()}
}

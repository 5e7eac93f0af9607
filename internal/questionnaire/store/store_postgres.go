package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"memberships/internal/questionnaire/models"
	id "memberships/pkg/domain"
	"memberships/pkg/platform/sentinel"
	txcontext "memberships/pkg/platform/tx"
)

// PostgresStore persists question sets and answers. Text and selection
// answers live in separate nullable columns, exactly one of which is set.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// UpsertQuestionSet replaces the set definition, used when seeding.
func (s *PostgresStore) UpsertQuestionSet(ctx context.Context, set models.QuestionSet) error {
	return txcontext.Run(ctx, s.db, 0, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO question_sets (id, name, description, priority) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, priority = EXCLUDED.priority
		`, set.ID, set.Name, set.Description, set.Priority); err != nil {
			return fmt.Errorf("upsert question set %d: %w", set.ID, err)
		}
		for pos, q := range set.Questions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO questions (id, set_id, text, type, tag, position) VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET set_id = EXCLUDED.set_id, text = EXCLUDED.text,
					type = EXCLUDED.type, tag = EXCLUDED.tag, position = EXCLUDED.position
			`, q.ID, set.ID, q.Text, string(q.Type), q.Tag, pos); err != nil {
				return fmt.Errorf("upsert question %d: %w", q.ID, err)
			}
			for _, o := range q.Options {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO question_options (id, question_id, text, comment) VALUES ($1, $2, $3, $4)
					ON CONFLICT (id) DO UPDATE SET question_id = EXCLUDED.question_id, text = EXCLUDED.text, comment = EXCLUDED.comment
				`, o.ID, q.ID, o.Text, o.Comment); err != nil {
					return fmt.Errorf("upsert option %d: %w", o.ID, err)
				}
			}
		}
		return nil
	})
}

func (s *PostgresStore) QuestionSet(ctx context.Context, setID int64) (*models.QuestionSet, error) {
	set := models.QuestionSet{ID: setID}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, description, priority FROM question_sets WHERE id = $1`, setID,
	).Scan(&set.Name, &set.Description, &set.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.text, q.type, q.tag, o.id, o.text, o.comment
		FROM questions q
		LEFT JOIN question_options o ON o.question_id = q.id
		WHERE q.set_id = $1
		ORDER BY q.position, q.id, o.id
	`, setID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	index := map[int64]int{}
	for rows.Next() {
		var (
			q        models.Question
			qType    string
			optID    sql.NullInt64
			optText  sql.NullString
			optNotes sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.Text, &qType, &q.Tag, &optID, &optText, &optNotes); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		pos, seen := index[q.ID]
		if !seen {
			q.SetID = setID
			q.Type = models.QuestionType(qType)
			set.Questions = append(set.Questions, q)
			pos = len(set.Questions) - 1
			index[q.ID] = pos
		}
		if optID.Valid {
			set.Questions[pos].Options = append(set.Questions[pos].Options, models.Option{
				ID: optID.Int64, Text: optText.String, Comment: optNotes.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return &set, nil
}

func (s *PostgresStore) Answers(ctx context.Context, accountID id.AccountID, questionIDs []int64) (map[int64]models.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, text, selections, updated_at
		FROM answers
		WHERE account_id = $1 AND question_id = ANY($2)
	`, uuid.UUID(accountID), pq.Array(questionIDs))
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]models.Answer, len(questionIDs))
	for rows.Next() {
		var (
			a          = models.Answer{AccountID: accountID}
			text       sql.NullString
			selections pq.Int64Array
		)
		if err := rows.Scan(&a.QuestionID, &text, &selections, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if text.Valid {
			a.Value = models.Text(text.String)
		} else {
			a.Value = models.Selections(selections)
		}
		out[a.QuestionID] = a
	}
	return out, rows.Err()
}

// SaveAnswers upserts every answer in one transaction.
func (s *PostgresStore) SaveAnswers(ctx context.Context, answers []models.Answer) error {
	return txcontext.Run(ctx, s.db, 0, func(ctx context.Context, tx *sql.Tx) error {
		for _, a := range answers {
			var (
				text       sql.NullString
				selections any
			)
			if t, ok := a.Value.AsText(); ok {
				text = sql.NullString{String: t, Valid: true}
			} else if ids, ok := a.Value.AsSelections(); ok {
				selections = pq.Array(ids)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO answers (account_id, question_id, text, selections, updated_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (account_id, question_id) DO UPDATE SET
					text = EXCLUDED.text, selections = EXCLUDED.selections, updated_at = EXCLUDED.updated_at
			`, uuid.UUID(a.AccountID), a.QuestionID, text, selections, a.UpdatedAt); err != nil {
				return fmt.Errorf("save answer %d: %w", a.QuestionID, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) DateOfBirth(ctx context.Context, accountID id.AccountID) (string, error) {
	var text sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT a.text
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.account_id = $1 AND q.tag = $2
		ORDER BY a.updated_at DESC
		LIMIT 1
	`, uuid.UUID(accountID), models.TagDateOfBirth).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !text.Valid) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load date of birth: %w", err)
	}
	return text.String, nil
}

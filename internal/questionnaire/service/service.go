package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"memberships/internal/questionnaire/models"
	id "memberships/pkg/domain"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/sentinel"
	"memberships/pkg/requestcontext"
)

type Store interface {
	QuestionSet(ctx context.Context, setID int64) (*models.QuestionSet, error)
	Answers(ctx context.Context, accountID id.AccountID, questionIDs []int64) (map[int64]models.Answer, error)
	SaveAnswers(ctx context.Context, answers []models.Answer) error
}

// AnsweredSet is a question set together with one account's answers.
type AnsweredSet struct {
	Set     models.QuestionSet
	Answers map[int64]models.Answer
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the set with the account's current answers.
func (s *Service) Get(ctx context.Context, accountID id.AccountID, setID int64) (*AnsweredSet, error) {
	set, err := s.store.QuestionSet(ctx, setID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "question set not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load question set")
	}

	questionIDs := make([]int64, 0, len(set.Questions))
	for _, q := range set.Questions {
		questionIDs = append(questionIDs, q.ID)
	}
	answers, err := s.store.Answers(ctx, accountID, questionIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load answers")
	}
	return &AnsweredSet{Set: *set, Answers: answers}, nil
}

// Answer validates and stores all supplied answers, then returns the updated
// set. Nothing is written if any answer is invalid.
func (s *Service) Answer(ctx context.Context, accountID id.AccountID, setID int64, values map[int64]models.AnswerValue) (*AnsweredSet, error) {
	set, err := s.store.QuestionSet(ctx, setID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "question set not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load question set")
	}

	now := requestcontext.Now(ctx)
	answers := make([]models.Answer, 0, len(values))
	for questionID, value := range values {
		q, ok := set.Question(questionID)
		if !ok {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("question %d is not part of this set", questionID))
		}
		if err := validateAnswer(q, value); err != nil {
			return nil, err
		}
		answers = append(answers, models.Answer{
			AccountID:  accountID,
			QuestionID: questionID,
			Value:      value,
			UpdatedAt:  now,
		})
	}

	if len(answers) > 0 {
		if err := s.store.SaveAnswers(ctx, answers); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save answers")
		}
		s.logger.InfoContext(ctx, "answers saved",
			"account_id", accountID,
			"question_set", setID,
			"count", len(answers),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return s.Get(ctx, accountID, setID)
}

func validateAnswer(q models.Question, value models.AnswerValue) error {
	selections, isSelection := value.AsSelections()
	if q.AcceptsSelections() != isSelection {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("question %d expects a %s answer", q.ID, q.Type))
	}
	for _, optionID := range selections {
		if !q.HasOption(optionID) {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("option %d is not valid for question %d", optionID, q.ID))
		}
	}
	return nil
}

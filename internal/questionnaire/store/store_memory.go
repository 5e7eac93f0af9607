package store

import (
	"context"
	"sync"

	"memberships/internal/questionnaire/models"
	id "memberships/pkg/domain"
	"memberships/pkg/platform/sentinel"
)

type answerKey struct {
	account  id.AccountID
	question int64
}

// InMemoryStore keeps question sets and answers in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	sets    map[int64]models.QuestionSet
	answers map[answerKey]models.Answer
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		sets:    make(map[int64]models.QuestionSet),
		answers: make(map[answerKey]models.Answer),
	}
}

func (s *InMemoryStore) UpsertQuestionSet(_ context.Context, set models.QuestionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.ID] = set
	return nil
}

func (s *InMemoryStore) QuestionSet(_ context.Context, setID int64) (*models.QuestionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[setID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &set, nil
}

func (s *InMemoryStore) Answers(_ context.Context, accountID id.AccountID, questionIDs []int64) (map[int64]models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]models.Answer, len(questionIDs))
	for _, q := range questionIDs {
		if a, ok := s.answers[answerKey{accountID, q}]; ok {
			out[q] = a
		}
	}
	return out, nil
}

// SaveAnswers overwrites previous answers; there is no history.
func (s *InMemoryStore) SaveAnswers(_ context.Context, answers []models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range answers {
		s.answers[answerKey{a.AccountID, a.QuestionID}] = a
	}
	return nil
}

// DateOfBirth returns the text answer to the DOB-tagged question.
func (s *InMemoryStore) DateOfBirth(_ context.Context, accountID id.AccountID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, set := range s.sets {
		for _, q := range set.Questions {
			if q.Tag != models.TagDateOfBirth {
				continue
			}
			if a, ok := s.answers[answerKey{accountID, q.ID}]; ok {
				if text, isText := a.Value.AsText(); isText {
					return text, nil
				}
			}
		}
	}
	return "", sentinel.ErrNotFound
}

package models

import (
	"slices"
	"time"

	id "memberships/pkg/domain"
)

type QuestionType string

const (
	TypeText     QuestionType = "text"
	TypeDate     QuestionType = "date"
	TypeNumber   QuestionType = "number"
	TypeMultiple QuestionType = "multiple"
	TypeDatalist QuestionType = "datalist"
)

func (t QuestionType) IsValid() bool {
	switch t {
	case TypeText, TypeDate, TypeNumber, TypeMultiple, TypeDatalist:
		return true
	}
	return false
}

// TagDateOfBirth marks the question whose answer drives child classification.
const TagDateOfBirth = "DOB"

type Option struct {
	ID      int64
	Text    string
	Comment string
}

type Question struct {
	ID      int64
	SetID   int64
	Text    string
	Type    QuestionType
	Tag     string
	Options []Option
}

// AcceptsSelections is true for questions answered by picking options.
func (q Question) AcceptsSelections() bool {
	return q.Type == TypeMultiple
}

func (q Question) HasOption(optionID int64) bool {
	return slices.ContainsFunc(q.Options, func(o Option) bool { return o.ID == optionID })
}

type QuestionSet struct {
	ID          int64
	Name        string
	Description string
	Priority    int
	Questions   []Question
}

// Question returns the question with questionID, if it belongs to the set.
func (s QuestionSet) Question(questionID int64) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

type AnswerKind int

const (
	AnswerText AnswerKind = iota + 1
	AnswerSelections
)

// AnswerValue is either free text or a set of option IDs, never both.
type AnswerValue struct {
	kind       AnswerKind
	text       string
	selections []int64
}

func Text(s string) AnswerValue {
	return AnswerValue{kind: AnswerText, text: s}
}

// Selections builds a selection answer; duplicate option IDs collapse.
func Selections(optionIDs []int64) AnswerValue {
	out := make([]int64, 0, len(optionIDs))
	for _, o := range optionIDs {
		if !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return AnswerValue{kind: AnswerSelections, selections: out}
}

func (v AnswerValue) Kind() AnswerKind { return v.kind }

func (v AnswerValue) AsText() (string, bool) {
	return v.text, v.kind == AnswerText
}

func (v AnswerValue) AsSelections() ([]int64, bool) {
	if v.kind != AnswerSelections {
		return nil, false
	}
	return slices.Clone(v.selections), true
}

// Answer is the latest response of an account to a question.
type Answer struct {
	AccountID  id.AccountID
	QuestionID int64
	Value      AnswerValue
	UpdatedAt  time.Time
}

// Package seed loads the active event and its questionnaires from a YAML file
// and upserts them at startup.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	eventmodels "memberships/internal/event/models"
	questionmodels "memberships/internal/questionnaire/models"
	dErrors "memberships/pkg/domain-errors"
)

type File struct {
	Event        EventSpec         `yaml:"event"`
	QuestionSets []QuestionSetSpec `yaml:"question_sets"`
}

type EventSpec struct {
	Name          string             `yaml:"name"`
	Registration  eventmodels.Window `yaml:"registration"`
	Lottery       eventmodels.Window `yaml:"lottery"`
	Transfer      eventmodels.Window `yaml:"transfer"`
	FCFSVoucher   string             `yaml:"fcfs_voucher"`
	ChildVoucher  string             `yaml:"child_voucher"`
	VoucherExpiry string             `yaml:"voucher_expiry"`
	TicketItem    int64              `yaml:"ticket_item"`
	ChildItem     int64              `yaml:"child_item"`
}

type QuestionSetSpec struct {
	ID          int64          `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Priority    int            `yaml:"priority"`
	Questions   []QuestionSpec `yaml:"questions"`
}

type QuestionSpec struct {
	ID      int64        `yaml:"id"`
	Text    string       `yaml:"text"`
	Type    string       `yaml:"type"`
	Tag     string       `yaml:"tag"`
	Options []OptionSpec `yaml:"options"`
}

type OptionSpec struct {
	ID      int64  `yaml:"id"`
	Text    string `yaml:"text"`
	Comment string `yaml:"comment"`
}

type EventWriter interface {
	Upsert(ctx context.Context, event eventmodels.Event, active bool) (*eventmodels.Event, error)
}

type QuestionSetWriter interface {
	UpsertQuestionSet(ctx context.Context, set questionmodels.QuestionSet) error
}

// Load reads and validates a seed file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid seed file")
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f File) validate() error {
	if f.Event.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "event name is required")
	}
	windows := map[string]eventmodels.Window{
		"registration": f.Event.Registration,
		"lottery":      f.Event.Lottery,
		"transfer":     f.Event.Transfer,
	}
	for name, w := range windows {
		if !w.Start.Before(w.End) {
			return dErrors.New(dErrors.CodeInvalidInput, name+" window must start before it ends")
		}
	}
	if _, err := f.Event.expiry(); err != nil {
		return err
	}

	seen := make(map[int64]bool)
	for _, set := range f.QuestionSets {
		if set.ID <= 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "question set id must be positive")
		}
		for _, q := range set.Questions {
			if seen[q.ID] {
				return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("question %d is declared twice", q.ID))
			}
			seen[q.ID] = true
			if !questionmodels.QuestionType(q.Type).IsValid() {
				return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("question %d has unknown type %q", q.ID, q.Type))
			}
		}
	}
	return nil
}

func (e EventSpec) expiry() (time.Duration, error) {
	if e.VoucherExpiry == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.VoucherExpiry)
	if err != nil || d < 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "voucher_expiry must be a positive duration")
	}
	return d, nil
}

// ToEvent converts the file into the domain event linked to every question set.
func (f File) ToEvent() eventmodels.Event {
	expiry, _ := f.Event.expiry()
	setIDs := make([]int64, 0, len(f.QuestionSets))
	for _, set := range f.QuestionSets {
		setIDs = append(setIDs, set.ID)
	}
	return eventmodels.Event{
		Name:           f.Event.Name,
		Registration:   f.Event.Registration,
		Lottery:        f.Event.Lottery,
		Transfer:       f.Event.Transfer,
		FCFSVoucher:    f.Event.FCFSVoucher,
		ChildVoucher:   f.Event.ChildVoucher,
		VoucherExpiry:  expiry,
		TicketItem:     f.Event.TicketItem,
		ChildItem:      f.Event.ChildItem,
		QuestionSetIDs: setIDs,
	}
}

func (s QuestionSetSpec) toModel() questionmodels.QuestionSet {
	set := questionmodels.QuestionSet{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Priority:    s.Priority,
		Questions:   make([]questionmodels.Question, 0, len(s.Questions)),
	}
	for _, q := range s.Questions {
		question := questionmodels.Question{
			ID:    q.ID,
			SetID: s.ID,
			Text:  q.Text,
			Type:  questionmodels.QuestionType(q.Type),
			Tag:   q.Tag,
		}
		for _, o := range q.Options {
			question.Options = append(question.Options, questionmodels.Option{ID: o.ID, Text: o.Text, Comment: o.Comment})
		}
		set.Questions = append(set.Questions, question)
	}
	return set
}

// Apply upserts the question sets, then the event, and marks the event active.
func Apply(ctx context.Context, f *File, events EventWriter, sets QuestionSetWriter) (*eventmodels.Event, error) {
	for _, set := range f.QuestionSets {
		if err := sets.UpsertQuestionSet(ctx, set.toModel()); err != nil {
			return nil, fmt.Errorf("upsert question set %d: %w", set.ID, err)
		}
	}
	event, err := events.Upsert(ctx, f.ToEvent(), true)
	if err != nil {
		return nil, fmt.Errorf("upsert event %q: %w", f.Event.Name, err)
	}
	return event, nil
}

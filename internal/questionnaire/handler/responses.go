package handler

import (
	"memberships/internal/questionnaire/models"
	"memberships/internal/questionnaire/service"
)

type optionResponse struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	Comment string `json:"comment,omitempty"`
}

type questionResponse struct {
	ID         int64            `json:"id"`
	Text       string           `json:"text"`
	Type       string           `json:"type"`
	Tag        string           `json:"tag,omitempty"`
	Options    []optionResponse `json:"options"`
	Answer     string           `json:"answer"`
	Selections []int64          `json:"selections"`
}

type setResponse struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Priority    int                `json:"priority"`
	Questions   []questionResponse `json:"questions"`
}

func toSetResponse(set *service.AnsweredSet) setResponse {
	resp := setResponse{
		ID:          set.Set.ID,
		Name:        set.Set.Name,
		Description: set.Set.Description,
		Priority:    set.Set.Priority,
		Questions:   make([]questionResponse, 0, len(set.Set.Questions)),
	}
	for _, q := range set.Set.Questions {
		qr := questionResponse{
			ID:         q.ID,
			Text:       q.Text,
			Type:       string(q.Type),
			Tag:        q.Tag,
			Options:    make([]optionResponse, 0, len(q.Options)),
			Selections: []int64{},
		}
		for _, o := range q.Options {
			qr.Options = append(qr.Options, optionResponse{ID: o.ID, Text: o.Text, Comment: o.Comment})
		}
		if a, ok := set.Answers[q.ID]; ok {
			switch a.Value.Kind() {
			case models.AnswerText:
				qr.Answer, _ = a.Value.AsText()
			case models.AnswerSelections:
				qr.Selections, _ = a.Value.AsSelections()
			}
		}
		resp.Questions = append(resp.Questions, qr)
	}
	return resp
}

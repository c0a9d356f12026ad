package maillist

import (
	"time"

	"emailthing/internal/model"
)

// Normalize projects a stored record onto the list row shape.
func Normalize(r model.Record) (model.Row, error) {
	if err := r.Validate(); err != nil {
		return model.Row{}, err
	}

	if r.Kind == model.KindDraft {
		d := r.Draft
		body := d.Body
		return model.Row{
			ID:        d.ID,
			Subject:   d.Subject,
			Snippet:   &body,
			Body:      body,
			CreatedAt: d.UpdatedAt,
			IsRead:    true,
			From:      model.RowSender{Address: d.From},
		}, nil
	}

	e := r.Email
	starred := e.IsStarred
	var address *string
	if e.Sender.Address != "" {
		address = &e.Sender.Address
	}
	return model.Row{
		ID:         e.ID,
		Subject:    e.Subject,
		Snippet:    e.Snippet,
		Body:       e.Body,
		CreatedAt:  e.CreatedAt,
		IsRead:     e.IsRead,
		IsStarred:  &starred,
		BinnedAt:   e.BinnedAt,
		CategoryID: e.CategoryID,
		From:       model.RowSender{Address: address, Name: e.Sender.Name},
	}, nil
}

// sortValue is the value of the sort column for a record.
func sortValue(r model.Record, key SortKey) time.Time {
	switch {
	case r.Kind == model.KindDraft:
		return r.Draft.UpdatedAt
	case key == SortBinnedAt && r.Email.BinnedAt != nil:
		return *r.Email.BinnedAt
	default:
		return r.Email.CreatedAt
	}
}

package model

import "fmt"

type RecordKind string

const (
	KindEmail RecordKind = "email"
	KindDraft RecordKind = "draft"
)

// Record is what the storage layer hands back for a list page: either an
// Email or a DraftEmail, tagged by Kind. Exactly one pointer is non-nil.
type Record struct {
	Kind  RecordKind
	Email *Email
	Draft *DraftEmail
}

func EmailRecord(e Email) Record {
	return Record{Kind: KindEmail, Email: &e}
}

func DraftRecord(d DraftEmail) Record {
	return Record{Kind: KindDraft, Draft: &d}
}

func (r Record) ID() string {
	switch r.Kind {
	case KindEmail:
		return r.Email.ID
	case KindDraft:
		return r.Draft.ID
	default:
		return ""
	}
}

// Validate reports records whose tag does not match their payload.
func (r Record) Validate() error {
	switch {
	case r.Kind == KindEmail && r.Email != nil && r.Draft == nil:
		return nil
	case r.Kind == KindDraft && r.Draft != nil && r.Email == nil:
		return nil
	default:
		return fmt.Errorf("malformed %q record", r.Kind)
	}
}

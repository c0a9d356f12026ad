package maillist

import (
	"fmt"
	"strings"
)

// Facet selects one of the mailbox list views.
type Facet string

const (
	FacetInbox   Facet = "inbox"
	FacetSent    Facet = "sent"
	FacetStarred Facet = "starred"
	FacetTrash   Facet = "trash"
	FacetTemp    Facet = "temp"
	FacetDrafts  Facet = "drafts"
)

var facets = []Facet{FacetInbox, FacetSent, FacetStarred, FacetTrash, FacetTemp, FacetDrafts}

// Facets returns every facet in display order.
func Facets() []Facet {
	return append([]Facet(nil), facets...)
}

func (f Facet) Valid() bool {
	for _, known := range facets {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFacet accepts a facet name case-insensitively; empty means inbox.
func ParseFacet(s string) (Facet, error) {
	if s == "" {
		return FacetInbox, nil
	}
	f := Facet(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFacet, s)
	}
	return f, nil
}

package maillist

// Source is the table a list page is read from.
type Source int

const (
	SourceEmail Source = iota
	SourceDraft
)

// SortKey is the timestamp column rows are ordered by, newest first. Every
// ordering is completed by id DESC.
type SortKey int

const (
	SortCreatedAt SortKey = iota
	SortBinnedAt
	SortUpdatedAt
)

// GroupField is the column category counts are grouped by.
type GroupField int

const (
	GroupCategory GroupField = iota
	GroupTemp
)

// Predicate is the filter shared by the page read and both counts.
//
// For SourceDraft only MailboxID and Search apply; the remaining fields
// describe email clauses and are ignored.
type Predicate struct {
	Source    Source
	MailboxID string
	Search    string

	Binned      bool
	IsSender    bool
	StarredOnly bool
	// Temp selects mail delivered to temp aliases (temp_id IS NOT NULL)
	// instead of regular mail (temp_id IS NULL).
	Temp bool
	// CategoryID filters regular mail by category; ignored when Temp is set.
	CategoryID string
	// TempID filters temp mail by alias; ignored unless Temp is set.
	TempID string
}

// Query is one page read. Start, when set, is included in the result.
type Query struct {
	Predicate Predicate
	Sort      SortKey
	Start     *Cursor
	Limit     int
}

type plan struct {
	predicate Predicate
	sort      SortKey
	group     GroupField
	breakdown bool
}

// planFor maps a request onto the facet's filter, ordering and grouping.
func planFor(req Request) plan {
	if req.Facet == FacetDrafts {
		return plan{
			predicate: Predicate{Source: SourceDraft, MailboxID: req.MailboxID, Search: req.Search},
			sort:      SortUpdatedAt,
		}
	}

	p := Predicate{
		Source:    SourceEmail,
		MailboxID: req.MailboxID,
		Search:    req.Search,
	}
	pl := plan{sort: SortCreatedAt, group: GroupCategory}

	switch req.Facet {
	case FacetSent:
		p.IsSender = true
	case FacetStarred:
		p.StarredOnly = true
	case FacetTrash:
		p.Binned = true
		pl.sort = SortBinnedAt
	case FacetTemp:
		p.Temp = true
		pl.group = GroupTemp
	}

	if p.Temp {
		p.TempID = req.CategoryID
	} else {
		p.CategoryID = req.CategoryID
	}

	pl.predicate = p
	pl.breakdown = req.CategoryID == "" && req.Search == ""
	return pl
}

package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"emailthing/internal/maillist"
)

// dialect captures what differs between the PostgreSQL schema and the
// SQLite mirror: placeholder style and how timestamps and booleans are
// stored.
type dialect struct {
	bindType int
	timeArg  func(time.Time) any
	boolArg  func(bool) any
}

var postgresDialect = dialect{
	bindType: sqlx.DOLLAR,
	timeArg:  func(t time.Time) any { return t.UTC() },
	boolArg:  func(b bool) any { return b },
}

// SQLite stores timestamps as unix milliseconds and booleans as 0/1.
var sqliteDialect = dialect{
	bindType: sqlx.QUESTION,
	timeArg:  func(t time.Time) any { return t.UnixMilli() },
	boolArg: func(b bool) any {
		if b {
			return 1
		}
		return 0
	},
}

const emailColumns = `e.id AS id, e.subject AS subject, e.snippet AS snippet, e.body AS body,
		e.created_at AS created_at, e.is_read AS is_read, e.is_starred AS is_starred,
		e.binned_at AS binned_at, e.category_id AS category_id, e.temp_id AS temp_id,
		s.name AS sender_name, s.address AS sender_address`

const draftColumns = `d.id AS id, d.subject AS subject, d.body AS body,
		d.from_address AS from_address, d.updated_at AS updated_at`

type whereBuilder struct {
	d     dialect
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) String() string {
	return strings.Join(w.conds, " AND ")
}

func newWhere(d dialect, p maillist.Predicate) *whereBuilder {
	w := &whereBuilder{d: d}

	if p.Source == maillist.SourceDraft {
		w.add("d.mailbox_id = ?", p.MailboxID)
		if p.Search != "" {
			w.add(`d.subject LIKE ? ESCAPE '\'`, likePattern(p.Search))
		}
		return w
	}

	w.add("e.mailbox_id = ?", p.MailboxID)
	if p.Binned {
		w.add("e.binned_at IS NOT NULL")
	} else {
		w.add("e.binned_at IS NULL")
	}
	w.add("e.is_sender = ?", d.boolArg(p.IsSender))
	if p.StarredOnly {
		w.add("e.is_starred = ?", d.boolArg(true))
	}
	if p.Temp {
		w.add("e.temp_id IS NOT NULL")
		if p.TempID != "" {
			w.add("e.temp_id = ?", p.TempID)
		}
	} else {
		w.add("e.temp_id IS NULL")
		if p.CategoryID != "" {
			w.add("e.category_id = ?", p.CategoryID)
		}
	}
	if p.Search != "" {
		w.add(`e.subject LIKE ? ESCAPE '\'`, likePattern(p.Search))
	}
	return w
}

// sortColumn returns the qualified column for a sort key.
func sortColumn(p maillist.Predicate, key maillist.SortKey) string {
	if p.Source == maillist.SourceDraft {
		return "d.updated_at"
	}
	if key == maillist.SortBinnedAt {
		return "e.binned_at"
	}
	return "e.created_at"
}

func idColumn(p maillist.Predicate) string {
	if p.Source == maillist.SourceDraft {
		return "d.id"
	}
	return "e.id"
}

// buildFindMany returns the page query for q. The start cursor row itself is
// included: (k < ck) OR (k = ck AND id <= cid).
func buildFindMany(d dialect, q maillist.Query) (string, []any) {
	p := q.Predicate
	w := newWhere(d, p)
	sortCol := sortColumn(p, q.Sort)
	idCol := idColumn(p)

	if q.Start != nil {
		k := d.timeArg(q.Start.SortKey)
		w.add(fmt.Sprintf("(%s < ? OR (%s = ? AND %s <= ?))", sortCol, sortCol, idCol), k, k, q.Start.ID)
	}

	var b strings.Builder
	if p.Source == maillist.SourceDraft {
		b.WriteString("SELECT " + draftColumns + "\n\t\tFROM draft_email d")
	} else {
		b.WriteString("SELECT " + emailColumns + "\n\t\tFROM email e\n\t\tLEFT JOIN email_sender s ON s.email_id = e.id")
	}
	b.WriteString("\n\t\tWHERE " + w.String())
	fmt.Fprintf(&b, "\n\t\tORDER BY %s DESC, %s DESC\n\t\tLIMIT ?", sortCol, idCol)

	args := append(w.args, q.Limit)
	return sqlx.Rebind(d.bindType, b.String()), args
}

func buildCount(d dialect, p maillist.Predicate) (string, []any) {
	w := newWhere(d, p)
	table := "email e"
	if p.Source == maillist.SourceDraft {
		table = "draft_email d"
	}
	query := "SELECT COUNT(*) FROM " + table + " WHERE " + w.String()
	return sqlx.Rebind(d.bindType, query), w.args
}

func buildGroupByCount(d dialect, p maillist.Predicate, field maillist.GroupField) (string, []any, error) {
	if p.Source == maillist.SourceDraft {
		return "", nil, fmt.Errorf("drafts have no category breakdown")
	}

	col := "e.category_id"
	if field == maillist.GroupTemp {
		col = "e.temp_id"
	}

	w := newWhere(d, p)
	w.add(col + " IS NOT NULL")
	query := fmt.Sprintf("SELECT %s AS group_id, COUNT(*) AS n FROM email e WHERE %s GROUP BY %s", col, w.String(), col)
	return sqlx.Rebind(d.bindType, query), w.args, nil
}

// likePattern wraps s for a substring LIKE match with \ as escape character.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func tableFor(p maillist.Predicate) string {
	if p.Source == maillist.SourceDraft {
		return "draft_email"
	}
	return "email"
}

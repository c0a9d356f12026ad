package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailthing/internal/maillist"
	"emailthing/internal/model"
)

var selectAlias = regexp.MustCompile(`\bAS (\w+)`)

// selectedColumns returns the aliases of the SELECT list, in order.
func selectedColumns(query string) []string {
	head := query
	if i := strings.Index(query, "FROM"); i >= 0 {
		head = query[:i]
	}
	var cols []string
	for _, m := range selectAlias.FindAllStringSubmatch(head, -1) {
		cols = append(cols, m[1])
	}
	return cols
}

// fakeRows serves rows keyed by column name and scans them in the order the
// query selects them, so a scan that disagrees with the SELECT list fails.
type fakeRows struct {
	cols []string
	data []map[string]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, errors.New("not supported") }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if len(dest) != len(r.cols) {
		return fmt.Errorf("%d destinations for %d columns %v", len(dest), len(r.cols), r.cols)
	}
	row := r.data[r.i-1]
	for i, col := range r.cols {
		v, ok := row[col]
		if !ok {
			return fmt.Errorf("no value for column %s", col)
		}
		if err := assign(dest[i], v); err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
	}
	return nil
}

type fakeRow struct {
	v   any
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest[0], r.v)
}

// assign mimics pgx: NULL into a pointer leaves it nil, a value into a
// pointer destination allocates.
func assign(dest, v any) error {
	dv := reflect.ValueOf(dest).Elem()
	if v == nil {
		if dv.Kind() != reflect.Pointer {
			return fmt.Errorf("cannot scan NULL into %s", dv.Type())
		}
		dv.Set(reflect.Zero(dv.Type()))
		return nil
	}
	vv := reflect.ValueOf(v)
	if vv.Type().AssignableTo(dv.Type()) {
		dv.Set(vv)
		return nil
	}
	if dv.Kind() == reflect.Pointer && vv.Type().AssignableTo(dv.Type().Elem()) {
		p := reflect.New(dv.Type().Elem())
		p.Elem().Set(vv)
		dv.Set(p)
		return nil
	}
	return fmt.Errorf("cannot scan %T into %s", v, dv.Type())
}

type fakePG struct {
	rows    []map[string]any
	row     fakeRow
	queries []string
	args    [][]any
}

func (f *fakePG) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	return &fakeRows{cols: selectedColumns(sql), data: f.rows}, nil
}

func (f *fakePG) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	return f.row
}

func (f *fakePG) Ping(ctx context.Context) error { return nil }

func strPtr(s string) *string { return &s }

func TestPostgresStoreFindManyScansEmails(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	binned := created.Add(time.Hour)
	pg := &fakePG{rows: []map[string]any{
		{
			"id": "e2", "subject": "Hello", "snippet": "Hi there", "body": "full body",
			"created_at": created, "is_read": true, "is_starred": false,
			"binned_at": binned, "category_id": "c1", "temp_id": nil,
			"sender_name": "Ann", "sender_address": "ann@example.com",
		},
		{
			"id": "e1", "subject": nil, "snippet": nil, "body": "",
			"created_at": created.Add(-time.Minute), "is_read": false, "is_starred": true,
			"binned_at": nil, "category_id": nil, "temp_id": "t1",
			"sender_name": nil, "sender_address": nil,
		},
	}}
	store := NewPostgresStore(pg)

	records, err := store.FindMany(context.Background(), maillist.Query{
		Predicate: maillist.Predicate{Source: maillist.SourceEmail, MailboxID: "m1", Binned: true},
		Sort:      maillist.SortBinnedAt,
		Limit:     11,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	want := model.Email{
		ID:         "e2",
		MailboxID:  "m1",
		Subject:    strPtr("Hello"),
		Snippet:    strPtr("Hi there"),
		Body:       "full body",
		IsRead:     true,
		BinnedAt:   &binned,
		CategoryID: strPtr("c1"),
		Sender:     model.EmailSender{Name: strPtr("Ann"), Address: "ann@example.com"},
		CreatedAt:  created,
	}
	assert.Equal(t, model.KindEmail, records[0].Kind)
	assert.Equal(t, want, *records[0].Email)

	second := records[1].Email
	assert.Equal(t, "e1", second.ID)
	assert.Nil(t, second.Subject)
	assert.Nil(t, second.BinnedAt)
	assert.Equal(t, strPtr("t1"), second.TempID)
	assert.True(t, second.IsStarred)
	assert.Nil(t, second.Sender.Name)
	assert.Empty(t, second.Sender.Address)

	require.Len(t, pg.args, 1)
	assert.Equal(t, 11, pg.args[0][len(pg.args[0])-1])
}

func TestPostgresStoreFindManyScansDrafts(t *testing.T) {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pg := &fakePG{rows: []map[string]any{
		{"id": "d1", "subject": "Draft", "body": "text", "from_address": "me@example.com", "updated_at": updated},
		{"id": "d0", "subject": nil, "body": "", "from_address": nil, "updated_at": updated.Add(-time.Hour)},
	}}
	store := NewPostgresStore(pg)

	records, err := store.FindMany(context.Background(), maillist.Query{
		Predicate: maillist.Predicate{Source: maillist.SourceDraft, MailboxID: "m1"},
		Sort:      maillist.SortUpdatedAt,
		Limit:     3,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, model.KindDraft, records[0].Kind)
	assert.Equal(t, model.DraftEmail{
		ID:        "d1",
		MailboxID: "m1",
		Subject:   strPtr("Draft"),
		Body:      "text",
		From:      strPtr("me@example.com"),
		UpdatedAt: updated,
	}, *records[0].Draft)
	assert.Nil(t, records[1].Draft.Subject)
	assert.Nil(t, records[1].Draft.From)
}

func TestPostgresStoreGroupByCount(t *testing.T) {
	pg := &fakePG{rows: []map[string]any{
		{"group_id": "c1", "n": 3},
		{"group_id": "c2", "n": 1},
	}}
	store := NewPostgresStore(pg)

	counts, err := store.GroupByCount(context.Background(),
		maillist.Predicate{Source: maillist.SourceEmail, MailboxID: "m1"}, maillist.GroupCategory)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"c1": 3, "c2": 1}, counts)
}

func TestPostgresStoreCountAndRole(t *testing.T) {
	pg := &fakePG{row: fakeRow{v: 7}}
	store := NewPostgresStore(pg)

	n, err := store.Count(context.Background(), maillist.Predicate{Source: maillist.SourceEmail, MailboxID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	pg.row = fakeRow{v: "OWNER"}
	role, err := store.MailboxRole(context.Background(), "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "OWNER", role)

	pg.row = fakeRow{err: pgx.ErrNoRows}
	role, err = store.MailboxRole(context.Background(), "m1", "u2")
	require.NoError(t, err)
	assert.Empty(t, role)
}

func TestSelectedColumnsMatchScanOrder(t *testing.T) {
	assert.Equal(t, []string{
		"id", "subject", "snippet", "body", "created_at", "is_read", "is_starred",
		"binned_at", "category_id", "temp_id", "sender_name", "sender_address",
	}, selectedColumns("SELECT "+emailColumns+" FROM email e"))
	assert.Equal(t, []string{"id", "subject", "body", "from_address", "updated_at"},
		selectedColumns("SELECT "+draftColumns+" FROM draft_email d"))
}

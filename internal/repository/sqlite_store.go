package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"emailthing/internal/maillist"
	"emailthing/internal/migrations"
	"emailthing/internal/model"
	"emailthing/pkg/metrics"
	"emailthing/pkg/otel"
)

// SQLiteStore keeps a mailbox in a local SQLite file. It serves the same
// queries as PostgresStore and additionally exposes writes for importing
// and seeding data.
type SQLiteStore struct {
	db *sqlx.DB
}

type sqliteEmailRow struct {
	ID            string         `db:"id"`
	Subject       sql.NullString `db:"subject"`
	Snippet       sql.NullString `db:"snippet"`
	Body          string         `db:"body"`
	CreatedAt     int64          `db:"created_at"`
	IsRead        bool           `db:"is_read"`
	IsStarred     bool           `db:"is_starred"`
	BinnedAt      sql.NullInt64  `db:"binned_at"`
	CategoryID    sql.NullString `db:"category_id"`
	TempID        sql.NullString `db:"temp_id"`
	SenderName    sql.NullString `db:"sender_name"`
	SenderAddress sql.NullString `db:"sender_address"`
}

type sqliteDraftRow struct {
	ID        string         `db:"id"`
	Subject   sql.NullString `db:"subject"`
	Body      string         `db:"body"`
	From      sql.NullString `db:"from_address"`
	UpdatedAt int64          `db:"updated_at"`
}

type groupCountRow struct {
	GroupID string `db:"group_id"`
	N       int    `db:"n"`
}

// NewSQLiteStore opens (or creates) the database at path and applies
// pending migrations. ":memory:" is accepted and pinned to one connection.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := migrations.Up(ctx, db.DB, migrations.SQLite, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) FindMany(ctx context.Context, q maillist.Query) ([]model.Record, error) {
	query, args := buildFindMany(sqliteDialect, q)
	table := tableFor(q.Predicate)
	mailboxID := q.Predicate.MailboxID

	var records []model.Record
	start := time.Now()
	err := otel.Query(ctx, "sqlite", "select", table, query, func(ctx context.Context) error {
		if q.Predicate.Source == maillist.SourceDraft {
			var rows []sqliteDraftRow
			if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
				return err
			}
			for _, r := range rows {
				records = append(records, model.DraftRecord(r.toModel(mailboxID)))
			}
			return nil
		}

		var rows []sqliteEmailRow
		if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return err
		}
		for _, r := range rows {
			records = append(records, model.EmailRecord(r.toModel(mailboxID)))
		}
		return nil
	})
	metrics.RecordDBQueryDuration("select", table, time.Since(start))
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SQLiteStore) Count(ctx context.Context, p maillist.Predicate) (int, error) {
	query, args := buildCount(sqliteDialect, p)
	table := tableFor(p)

	var n int
	start := time.Now()
	err := otel.Query(ctx, "sqlite", "count", table, query, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &n, query, args...)
	})
	metrics.RecordDBQueryDuration("count", table, time.Since(start))
	return n, err
}

func (s *SQLiteStore) GroupByCount(ctx context.Context, p maillist.Predicate, field maillist.GroupField) (map[string]int, error) {
	query, args, err := buildGroupByCount(sqliteDialect, p, field)
	if err != nil {
		return nil, err
	}

	var rows []groupCountRow
	start := time.Now()
	err = otel.Query(ctx, "sqlite", "group_count", "email", query, func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, query, args...)
	})
	metrics.RecordDBQueryDuration("group_count", "email", time.Since(start))
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.GroupID] = r.N
	}
	return counts, nil
}

// MailboxRole returns the user's role on the mailbox, or "" when the user
// has no access.
func (s *SQLiteStore) MailboxRole(ctx context.Context, mailboxID, userID string) (string, error) {
	var role string
	err := s.db.GetContext(ctx, &role,
		"SELECT role FROM mailbox_for_user WHERE mailbox_id = ? AND user_id = ?",
		mailboxID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return role, err
}

// UpsertMailboxUser grants userID the given role on mailboxID, creating the
// mailbox row if needed.
func (s *SQLiteStore) UpsertMailboxUser(ctx context.Context, mailboxID, userID, role string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO mailbox (id, created_at) VALUES (?, ?)",
		mailboxID, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("inserting mailbox: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO mailbox_for_user (mailbox_id, user_id, role) VALUES (?, ?, ?)",
		mailboxID, userID, role); err != nil {
		return fmt.Errorf("inserting mailbox user: %w", err)
	}
	return tx.Commit()
}

// UpsertEmails inserts or replaces a batch of emails with their senders.
func (s *SQLiteStore) UpsertEmails(ctx context.Context, emails []model.Email) error {
	if len(emails) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const emailQuery = `
		INSERT OR REPLACE INTO email (
			id, mailbox_id, subject, snippet, body,
			is_read, is_starred, is_sender,
			binned_at, category_id, temp_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	const senderQuery = `INSERT OR REPLACE INTO email_sender (email_id, name, address) VALUES (?, ?, ?)`

	for _, e := range emails {
		if e.CategoryID != nil && e.TempID != nil {
			return fmt.Errorf("email %s has both a category and a temp alias", e.ID)
		}

		var binnedAt any
		if e.BinnedAt != nil {
			binnedAt = e.BinnedAt.UnixMilli()
		}
		if _, err := tx.ExecContext(ctx, emailQuery,
			e.ID, e.MailboxID, e.Subject, e.Snippet, e.Body,
			sqliteDialect.boolArg(e.IsRead), sqliteDialect.boolArg(e.IsStarred), sqliteDialect.boolArg(e.IsSender),
			binnedAt, e.CategoryID, e.TempID, e.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("inserting email %s: %w", e.ID, err)
		}

		if e.Sender.Address == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, senderQuery, e.ID, e.Sender.Name, e.Sender.Address); err != nil {
			return fmt.Errorf("inserting sender for %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// UpsertDrafts inserts or replaces a batch of drafts.
func (s *SQLiteStore) UpsertDrafts(ctx context.Context, drafts []model.DraftEmail) error {
	if len(drafts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO draft_email (
			id, mailbox_id, subject, body, from_address, recipients, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	for _, d := range drafts {
		to := d.To
		if to == nil {
			to = []model.Recipient{}
		}
		recipients, err := json.Marshal(to)
		if err != nil {
			return fmt.Errorf("encoding recipients for %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			d.ID, d.MailboxID, d.Subject, d.Body, d.From, string(recipients), d.UpdatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("inserting draft %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

func (r sqliteEmailRow) toModel(mailboxID string) model.Email {
	e := model.Email{
		ID:         r.ID,
		MailboxID:  mailboxID,
		Subject:    nullString(r.Subject),
		Snippet:    nullString(r.Snippet),
		Body:       r.Body,
		IsRead:     r.IsRead,
		IsStarred:  r.IsStarred,
		CategoryID: nullString(r.CategoryID),
		TempID:     nullString(r.TempID),
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
		Sender: model.EmailSender{
			Name:    nullString(r.SenderName),
			Address: r.SenderAddress.String,
		},
	}
	if r.BinnedAt.Valid {
		t := time.UnixMilli(r.BinnedAt.Int64).UTC()
		e.BinnedAt = &t
	}
	return e
}

func (r sqliteDraftRow) toModel(mailboxID string) model.DraftEmail {
	return model.DraftEmail{
		ID:        r.ID,
		MailboxID: mailboxID,
		Subject:   nullString(r.Subject),
		Body:      r.Body,
		From:      nullString(r.From),
		UpdatedAt: time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

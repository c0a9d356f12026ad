package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"emailthing/internal/maillist"
	"emailthing/internal/model"
	"emailthing/pkg/metrics"
	"emailthing/pkg/otel"
)

// pgQuerier is the subset of *pgxpool.Pool the store needs.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore reads mailbox pages from PostgreSQL.
type PostgresStore struct {
	db pgQuerier
}

func NewPostgresStore(db pgQuerier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) FindMany(ctx context.Context, q maillist.Query) ([]model.Record, error) {
	query, args := buildFindMany(postgresDialect, q)
	table := tableFor(q.Predicate)

	var records []model.Record
	start := time.Now()
	err := otel.Query(ctx, "postgresql", "select", table, query, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r model.Record
			if q.Predicate.Source == maillist.SourceDraft {
				r, err = scanPostgresDraft(rows, q.Predicate.MailboxID)
			} else {
				r, err = scanPostgresEmail(rows, q.Predicate.MailboxID)
			}
			if err != nil {
				return err
			}
			records = append(records, r)
		}
		return rows.Err()
	})
	metrics.RecordDBQueryDuration("select", table, time.Since(start))
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *PostgresStore) Count(ctx context.Context, p maillist.Predicate) (int, error) {
	query, args := buildCount(postgresDialect, p)
	table := tableFor(p)

	var n int
	start := time.Now()
	err := otel.Query(ctx, "postgresql", "count", table, query, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, query, args...).Scan(&n)
	})
	metrics.RecordDBQueryDuration("count", table, time.Since(start))
	return n, err
}

func (s *PostgresStore) GroupByCount(ctx context.Context, p maillist.Predicate, field maillist.GroupField) (map[string]int, error) {
	query, args, err := buildGroupByCount(postgresDialect, p, field)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	start := time.Now()
	err = otel.Query(ctx, "postgresql", "group_count", "email", query, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id string
				n  int
			)
			if err := rows.Scan(&id, &n); err != nil {
				return err
			}
			counts[id] = n
		}
		return rows.Err()
	})
	metrics.RecordDBQueryDuration("group_count", "email", time.Since(start))
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// MailboxRole returns the user's role on the mailbox, or "" when the user
// has no access.
func (s *PostgresStore) MailboxRole(ctx context.Context, mailboxID, userID string) (string, error) {
	query := `
        SELECT role
        FROM mailbox_for_user
        WHERE mailbox_id = $1 AND user_id = $2
    `
	var role string
	err := otel.Query(ctx, "postgresql", "select", "mailbox_for_user", query, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, query, mailboxID, userID).Scan(&role)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return role, err
}

func scanPostgresEmail(rows pgx.Rows, mailboxID string) (model.Record, error) {
	e := model.Email{MailboxID: mailboxID}
	var senderAddress *string
	err := rows.Scan(
		&e.ID,
		&e.Subject,
		&e.Snippet,
		&e.Body,
		&e.CreatedAt,
		&e.IsRead,
		&e.IsStarred,
		&e.BinnedAt,
		&e.CategoryID,
		&e.TempID,
		&e.Sender.Name,
		&senderAddress,
	)
	if err != nil {
		return model.Record{}, err
	}
	if senderAddress != nil {
		e.Sender.Address = *senderAddress
	}
	return model.EmailRecord(e), nil
}

func scanPostgresDraft(rows pgx.Rows, mailboxID string) (model.Record, error) {
	d := model.DraftEmail{MailboxID: mailboxID}
	err := rows.Scan(
		&d.ID,
		&d.Subject,
		&d.Body,
		&d.From,
		&d.UpdatedAt,
	)
	if err != nil {
		return model.Record{}, err
	}
	return model.DraftRecord(d), nil
}

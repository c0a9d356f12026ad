// Package testutil builds throwaway SQLite mailboxes for tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"emailthing/internal/model"
	"emailthing/internal/repository"
)

// Base is the reference time fixtures are laid out from.
var Base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// NewStore opens a migrated SQLite store in a temp dir, closed on cleanup.
func NewStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mail.db")
	store, err := repository.NewSQLiteStore(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// NewID returns a fresh random id.
func NewID() string {
	return uuid.NewString()
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Email returns a received, unread inbox email created minutesAgo before Base.
func Email(mailboxID string, minutesAgo int) model.Email {
	id := NewID()
	return model.Email{
		ID:        id,
		MailboxID: mailboxID,
		Subject:   Ptr("subject " + id[:8]),
		Snippet:   Ptr("snippet " + id[:8]),
		Body:      "body " + id[:8],
		Sender:    model.EmailSender{Name: Ptr("Alice"), Address: "alice@example.com"},
		CreatedAt: Base.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

// Draft returns a draft last saved minutesAgo before Base.
func Draft(mailboxID string, minutesAgo int) model.DraftEmail {
	id := NewID()
	return model.DraftEmail{
		ID:        id,
		MailboxID: mailboxID,
		Subject:   Ptr("draft " + id[:8]),
		Body:      "draft body " + id[:8],
		From:      Ptr("me@example.com"),
		To:        []model.Recipient{{Address: "bob@example.com"}},
		UpdatedAt: Base.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

// Seed writes emails and drafts into store.
func Seed(t *testing.T, store *repository.SQLiteStore, emails []model.Email, drafts []model.DraftEmail) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.UpsertEmails(ctx, emails))
	require.NoError(t, store.UpsertDrafts(ctx, drafts))
}

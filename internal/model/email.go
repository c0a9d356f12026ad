package model

import "time"

// Email is a finalized message, either received or sent from the mailbox.
// At most one of CategoryID and TempID is set.
type Email struct {
	ID         string
	MailboxID  string
	Subject    *string
	Snippet    *string
	Body       string
	IsRead     bool
	IsStarred  bool
	IsSender   bool
	BinnedAt   *time.Time
	CategoryID *string
	TempID     *string
	Sender     EmailSender
	CreatedAt  time.Time
}

type EmailSender struct {
	Name    *string
	Address string
}

// DraftEmail is an unsent message. Drafts have no creation time of their
// own: UpdatedAt is bumped on every autosave and is what drafts sort by.
type DraftEmail struct {
	ID        string
	MailboxID string
	Subject   *string
	Body      string
	From      *string
	To        []Recipient
	UpdatedAt time.Time
}

// Recipient is one entry of a draft's "to" list.
type Recipient struct {
	Name    *string `json:"name"`
	Address string  `json:"address"`
	// Cc is "cc", "bcc" or empty for a direct recipient.
	Cc string `json:"cc,omitempty"`
}

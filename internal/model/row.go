package model

import "time"

// Row is the flat shape the mailbox list renders. Emails and drafts are
// both projected into it, so consumers never branch on the record kind.
type Row struct {
	ID         string     `json:"id"`
	Subject    *string    `json:"subject"`
	Snippet    *string    `json:"snippet"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"createdAt"`
	IsRead     bool       `json:"isRead"`
	IsStarred  *bool      `json:"isStarred"`
	BinnedAt   *time.Time `json:"binnedAt"`
	CategoryID *string    `json:"categoryId"`
	From       RowSender  `json:"from"`
}

type RowSender struct {
	Address *string `json:"address"`
	Name    *string `json:"name"`
}

package mq

import "time"

// RoutingKeyMailboxAccessChanged is published whenever a user is added to,
// removed from, or has their role changed on a mailbox.
const RoutingKeyMailboxAccessChanged = "mailbox.access_changed"

// MailboxAccessChangedPayload is the body of a mailbox.access_changed event.
// An empty UserID means membership of the whole mailbox changed, e.g. the
// mailbox was deleted.
type MailboxAccessChangedPayload struct {
	MailboxID string    `json:"mailbox_id"`
	UserID    string    `json:"user_id,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

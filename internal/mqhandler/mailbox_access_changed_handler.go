package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"emailthing/contracts/mq"
	"emailthing/pkg/logger"
	"emailthing/pkg/util"
)

// Invalidator drops cached mailbox access entries.
type Invalidator interface {
	Invalidate(ctx context.Context, mailboxID, userID string) error
	InvalidateMailbox(ctx context.Context, mailboxID string) error
}

type MailboxAccessChangedHandler struct {
	cache  Invalidator
	logger *zap.Logger
}

func NewMailboxAccessChangedHandler(cache Invalidator, logger *zap.Logger) *MailboxAccessChangedHandler {
	return &MailboxAccessChangedHandler{
		cache:  cache,
		logger: logger,
	}
}

// Handle evicts the cached role for the affected user, or for every user of
// the mailbox when the event carries no user id. Malformed payloads are
// permanent failures; cache errors are returned for redelivery.
func (h *MailboxAccessChangedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mq.MailboxAccessChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal mailbox access payload", zap.Error(err))
		return err
	}
	if p.MailboxID == "" {
		log.Error("Mailbox access payload without mailbox_id", zap.ByteString("payload", raw))
		return fmt.Errorf("%w: missing mailbox_id", util.ErrPermanent)
	}

	if p.UserID == "" {
		if err := h.cache.InvalidateMailbox(ctx, p.MailboxID); err != nil {
			log.Warn("Failed to invalidate mailbox access",
				zap.String("mailbox_id", p.MailboxID),
				zap.Error(err),
			)
			return err
		}
	} else if err := h.cache.Invalidate(ctx, p.MailboxID, p.UserID); err != nil {
		log.Warn("Failed to invalidate user access",
			zap.String("mailbox_id", p.MailboxID),
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
		return err
	}

	log.Info("Invalidated mailbox access cache",
		zap.String("mailbox_id", p.MailboxID),
		zap.String("user_id", p.UserID),
		zap.Time("changed_at", p.ChangedAt),
	)
	return nil
}

// Package access decides whether a user may act on a mailbox.
package access

import (
	"context"
	"errors"
	"fmt"

	"emailthing/pkg/rbac"
)

var ErrNoAccess = errors.New("no access to mailbox")

// RoleSource looks up a user's role on a mailbox. An empty role with a nil
// error means the user has no access.
type RoleSource interface {
	MailboxRole(ctx context.Context, mailboxID, userID string) (string, error)
}

type Checker struct {
	roles RoleSource
}

func NewChecker(roles RoleSource) *Checker {
	return &Checker{roles: roles}
}

// Authorize returns ErrNoAccess unless userID holds a role on mailboxID that
// grants permission. Lookup failures are returned as is.
func (c *Checker) Authorize(ctx context.Context, userID, mailboxID, permission string) error {
	if userID == "" || mailboxID == "" {
		return ErrNoAccess
	}

	role, err := c.roles.MailboxRole(ctx, mailboxID, userID)
	if err != nil {
		return fmt.Errorf("lookup mailbox role: %w", err)
	}
	if role == "" {
		return ErrNoAccess
	}
	if err := rbac.CheckPermission(role, permission); err != nil {
		return fmt.Errorf("%w: %v", ErrNoAccess, err)
	}
	return nil
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"emailthing/internal/maillist"
	"emailthing/internal/model"
	"emailthing/pkg/logger"
)

type Lister interface {
	List(ctx context.Context, req maillist.Request) (*maillist.Response, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, userID, mailboxID, permission string) error
}

type EmailListHandler struct {
	lister Lister
	logger *zap.Logger
}

func NewEmailListHandler(lister Lister, logger *zap.Logger) *EmailListHandler {
	return &EmailListHandler{
		lister: lister,
		logger: logger,
	}
}

type emailListResponse struct {
	Emails         []model.Row    `json:"emails"`
	CategoryCounts map[string]int `json:"categoryCounts"`
	TotalCount     int            `json:"totalCount"`
	NextCursor     *string        `json:"nextCursor"`
}

// ListEmails handles GET /api/v1/mailboxes/:mailboxId/emails
func (h *EmailListHandler) ListEmails(c *gin.Context) {
	facet, err := maillist.ParseFacet(c.Query("facet"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cursor, err := maillist.DecodeCursor(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var take int
	if raw := c.Query("take"); raw != "" {
		take, err = strconv.Atoi(raw)
		if err != nil || take < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "take must be a positive integer"})
			return
		}
	}

	req := maillist.Request{
		MailboxID:  c.Param("mailboxId"),
		Facet:      facet,
		CategoryID: c.Query("category"),
		Search:     c.Query("search"),
		Cursor:     cursor,
		PageSize:   take,
	}

	resp, err := h.lister.List(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, maillist.ErrInvalidFacet) || errors.Is(err, maillist.ErrMissingMailbox) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to list emails",
			zap.String("mailbox_id", req.MailboxID),
			zap.String("facet", string(req.Facet)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch emails"})
		return
	}

	out := emailListResponse{
		Emails:         resp.Rows,
		CategoryCounts: resp.CategoryCounts,
		TotalCount:     resp.TotalCount,
	}
	if resp.NextCursor != nil {
		token := resp.NextCursor.Encode()
		out.NextCursor = &token
	}
	c.JSON(http.StatusOK, out)
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"emailthing/internal/access"
	"emailthing/pkg/logger"
	"emailthing/pkg/metrics"
	"emailthing/pkg/trace"
	"emailthing/pkg/util"
)

const userIDKey = "user_id"

// TraceMiddleware reads or generates the trace ID and puts it on the request context and response header.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeader(c.GetHeader(trace.HeaderName), c.GetHeader("X-Request-ID"))
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName, traceID)
		c.Next()
	}
}

// MetricsMiddleware records request latency labelled by route template, not raw path.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		userID, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequireMailboxPermission aborts unless the authenticated user holds permission on :mailboxId.
func RequireMailboxPermission(authz Authorizer, permission string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(userIDKey)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}

		mailboxID := c.Param("mailboxId")
		err := authz.Authorize(c.Request.Context(), userID, mailboxID, permission)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, access.ErrNoAccess):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no access to mailbox"})
		default:
			logger.WithTrace(c.Request.Context(), log).Error("Mailbox access check failed",
				zap.String("user_id", userID),
				zap.String("mailbox_id", mailboxID),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "access check failed"})
		}
	}
}

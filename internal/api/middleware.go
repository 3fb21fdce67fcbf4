package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safar/dropshop/internal/auth"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/telemetry"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-ID"
	headerSessionID = "X-Session-ID"

	ctxRequestID = "request_id"
	ctxClaims    = "claims"
)

// requestIDMiddleware propagates the caller's request id or assigns one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

func loggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if claims, ok := currentUser(c); ok {
			fields = append(fields, zap.Int64("user_id", claims.UserID))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("HTTP request", fields...)
			return
		}
		log.Info("HTTP request", fields...)
	}
}

// recoveryMiddleware reports panics to Sentry before answering 500.
func recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		err := fmt.Errorf("panic: %v", recovered)
		logger.Error("panic recovered",
			zap.String("request_id", requestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stack"))
		telemetry.CaptureError(err, map[string]string{
			"request_id": requestID(c),
			"route":      c.FullPath(),
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", true
	}
	return strings.TrimSpace(parts[1]), true
}

// requireAuth rejects requests without a valid access token.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearerToken(c)
		if !present {
			respondMessage(c, http.StatusUnauthorized, "authorization header required")
			c.Abort()
			return
		}
		if !h.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

// optionalAuth attaches claims when a token is sent and lets guests through.
// A token that is sent but invalid is still rejected.
func (h *Handler) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearerToken(c)
		if present && !h.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

func (h *Handler) authenticate(c *gin.Context, token string) bool {
	if token == "" {
		respondMessage(c, http.StatusUnauthorized, "invalid authorization header format")
		c.Abort()
		return false
	}

	claims, err := h.svc.Auth.Authenticate(token)
	if err != nil {
		respondError(c, err)
		c.Abort()
		return false
	}

	c.Set(ctxClaims, claims)
	return true
}

func currentUser(c *gin.Context) (*auth.AccessClaims, bool) {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.AccessClaims)
	return claims, ok
}

// userID returns the caller's id, or nil for guests.
func userID(c *gin.Context) *int64 {
	claims, ok := currentUser(c)
	if !ok {
		return nil
	}
	id := claims.UserID
	return &id
}

// requirePermission checks the caller's role against the policy. It must run
// after requireAuth. Token claims are checked first; a caller they allow is
// then re-checked against the stored account.
func (h *Handler) requirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentUser(c)
		if !ok {
			respondMessage(c, http.StatusUnauthorized, "authentication required")
			c.Abort()
			return
		}

		if !h.authorize(c, claims, resource, action) {
			return
		}
		c.Next()
	}
}

// authorize answers 403 and aborts unless both the token role and the stored
// account allow the action.
func (h *Handler) authorize(c *gin.Context, claims *auth.AccessClaims, resource, action string) bool {
	if !h.allow(c, claims.Role, resource, action) {
		return false
	}

	role, err := h.svc.Auth.CurrentRole(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		c.Abort()
		return false
	}
	return role == claims.Role || h.allow(c, role, resource, action)
}

func (h *Handler) allow(c *gin.Context, role models.Role, resource, action string) bool {
	allowed, err := h.authz.Can(role, resource, action)
	if err != nil {
		respondError(c, err)
		c.Abort()
		return false
	}
	if !allowed {
		respondMessage(c, http.StatusForbidden, "access denied")
		c.Abort()
		return false
	}
	return true
}

// sessionID resolves the guest cart session from the body value, the
// X-Session-ID header or the sessionId query parameter, in that order.
func sessionID(c *gin.Context, fromBody string) string {
	if s := strings.TrimSpace(fromBody); s != "" {
		return s
	}
	if s := strings.TrimSpace(c.GetHeader(headerSessionID)); s != "" {
		return s
	}
	return strings.TrimSpace(c.Query("sessionId"))
}

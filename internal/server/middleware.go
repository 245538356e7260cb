package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/discid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			generated, err := uuid.NewV7()
			if err != nil {
				generated = uuid.New()
			}
			requestID = generated.String()
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(started)))
	}
}

// requireEditor redirects requests without a valid editor session to the login page.
func (h *httpHandler) requireEditor(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		fields := []zap.Field{
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err),
		}
		if errors.Is(err, auth.ErrNoSession) || errors.Is(err, auth.ErrSessionExpired) {
			h.logger.Info("session validation failed", fields...)
		} else {
			h.logger.Warn("session validation failed", fields...)
		}
		c.Redirect(http.StatusSeeOther, loginRedirect(h.loginPath, c.Request.URL.RequestURI()))
		c.Abort()
		return
	}
	c.Set(editorContextKey, discid.Editor{ID: claims.EditorID, Name: claims.EditorName})
	c.Next()
}

func loginRedirect(loginPath, returnTo string) string {
	separator := "?"
	if strings.Contains(loginPath, "?") {
		separator = "&"
	}
	return loginPath + separator + url.Values{"returnto": []string{returnTo}}.Encode()
}

func editorFromContext(c *gin.Context) (discid.Editor, bool) {
	value, ok := c.Get(editorContextKey)
	if !ok {
		return discid.Editor{}, false
	}
	editor, ok := value.(discid.Editor)
	return editor, ok && editor.ID > 0
}

package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/serviciomed/serviciomed/internal/sessions"
	"github.com/serviciomed/serviciomed/pkg/logger"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "serviciomed_session"

const sessionKey = "session"

// SessionValidator is the subset of sessions.Service the middleware needs.
type SessionValidator interface {
	Validate(ctx context.Context, id string) (*sessions.Session, error)
}

// LoadSession attaches the session named by the cookie, if any, to the
// request. It never rejects a request.
func LoadSession(v SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		if err != nil || id == "" {
			c.Next()
			return
		}
		sess, err := v.Validate(c.Request.Context(), id)
		if err != nil {
			logger.Warnf("session lookup failed: %v", err)
		}
		if sess != nil {
			c.Set(sessionKey, sess)
		}
		c.Next()
	}
}

// RequireSession redirects to loginPath unless LoadSession attached a
// session. Nothing after it runs for anonymous requests.
func RequireSession(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentSession(c) == nil {
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentSession returns the session attached to the request, or nil.
func CurrentSession(c *gin.Context) *sessions.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*sessions.Session)
	return sess
}

package auth

import (
	"github.com/binhbb2204/mangashelf/pkg/apperror"
	"github.com/binhbb2204/mangashelf/pkg/models"
	"github.com/gin-gonic/gin"
)

type Mode int

const (
	// ModeTry resolves the session if possible and never touches the cookie.
	ModeTry Mode = iota
	// ModeOptional continues anonymously and expires an invalid cookie.
	ModeOptional
	// ModeRequired rejects the request with 401 when no user resolves.
	ModeRequired
)

const userContextKey = "auth_user"

// Authenticate resolves the session cookie according to mode.
func (s *SessionManager) Authenticate(mode Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := c.Cookie(CookieName)
		hasCookie := err == nil && value != ""

		var u *models.User
		if hasCookie {
			u, err = s.Validate(c.Request.Context(), value)
			if err != nil {
				u = nil
			}
		}

		if u != nil {
			c.Set(userContextKey, u)
			c.Next()
			return
		}

		switch mode {
		case ModeRequired:
			apperror.Respond(c, apperror.Unauthorized("Missing authentication"))
			return
		case ModeOptional:
			if hasCookie {
				s.Clear(c)
			}
		}
		c.Next()
	}
}

// CurrentUser returns the user resolved by Authenticate, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

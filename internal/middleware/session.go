package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionKey = "session_id"

// Session makes sure every request carries a session id, issuing a
// browser-session cookie when the client has none.
func Session(cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cookieName)
		if err == nil {
			_, err = uuid.Parse(id)
		}
		if err != nil {
			id = uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			// MaxAge 0: the view dies with the browser session
			c.SetCookie(cookieName, id, 0, "/", "", c.Request.TLS != nil, true)
		}

		c.Set(sessionKey, id)
		c.Next()
	}
}

// SessionID returns the id attached by Session.
func SessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

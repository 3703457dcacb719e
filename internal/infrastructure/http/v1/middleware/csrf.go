package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"catreg/internal/core/apperror"
)

const (
	CSRFCookie = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

// CSRF implements the double-submit check: unsafe methods must echo the
// csrf_token cookie in the X-CSRF-Token header. Safe requests without the
// cookie are issued one.
func CSRF(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(CSRFCookie)

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if err != nil || cookie == "" {
				token, genErr := newCSRFToken()
				if genErr != nil {
					_ = c.Error(apperror.NewInternal(genErr))
					c.Abort()
					return
				}
				c.SetSameSite(http.SameSiteStrictMode)
				c.SetCookie(CSRFCookie, token, 0, "/", "", secure, false)
			}
			c.Next()
			return
		}

		header := c.GetHeader(CSRFHeader)
		if err != nil || cookie == "" || header == "" ||
			subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			_ = c.Error(apperror.NewCSRFMismatch())
			c.Abort()
			return
		}
		c.Next()
	}
}

func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

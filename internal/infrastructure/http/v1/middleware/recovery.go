// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"catreg/internal/core/apperror"
	"catreg/pkg/logger"
)

// Recovery turns a panic into INTERNAL_ERROR. It must run inside
// ErrorHandler, which renders the registered error. The stack goes to the
// log only; the client gets the request id to quote.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"panic", rec,
				"route", c.FullPath(),
				"entity_type", c.Param("type"),
				"stack", string(debug.Stack()),
			)
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic in %s: %v", c.FullPath(), rec)).
				WithDetail("request_id", c.GetString("request_id")))
			c.Abort()
		}()
		c.Next()
	}
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"catreg/internal/core/apperror"
	"catreg/internal/infrastructure/http/v1/dto"
	"catreg/pkg/logger"
)

// ErrorHandler renders the last error registered on the gin context as
// {code, message, details}. It is the only place errors become responses.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// A streamed response (CSV export) may already be partly written.
		if c.Writer.Written() {
			logger.Error(c.Request.Context(), "error after response started", "error", err)
			return
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			c.JSON(appErr.HTTPStatus, dto.ErrorResponse{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			})
			return
		}

		logger.Error(c.Request.Context(), "unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Code:    apperror.CodeInternal,
			Message: "Internal server error",
			Details: map[string]any{"request_id": c.GetString("request_id")},
		})
	}
}

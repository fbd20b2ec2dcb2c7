package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/modelmart/pkg/api"
	"go.uber.org/zap"
)

// ErrorHandler renders errors pushed through c.Error as RFC 9457 problem documents.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		var problem *api.Problem
		if errors.As(err, &problem) {
			// the wrapped cause is for us, never for the client
			if problem.Log != nil {
				logger.Error("request failed",
					zap.Int("status", problem.Status),
					zap.String("path", c.FullPath()),
					zap.Error(problem.Log),
				)
			}

			// RFC 9457 dictates the json is at the root
			c.JSON(problem.Status, problem)
			c.Abort()
			return
		}

		logger.Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))

		c.JSON(http.StatusInternalServerError, api.NewError(
			http.StatusInternalServerError,
			"Internal Server Error",
			"An unexpected error occurred.",
		))
		c.Abort()
	}
}

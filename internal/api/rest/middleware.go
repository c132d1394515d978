package rest

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oshokin/frigate-notifier/internal/logger"
)

// requestLogger logs every request and puts the logger into the request context.
func requestLogger(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqCtx := logger.ToContext(c.Request.Context(), logger.FromContext(ctx))
		c.Request = c.Request.WithContext(reqCtx)

		c.Next()

		logger.DebugKV(reqCtx, "HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func recovery(ctx context.Context) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.ErrorKV(ctx, "Panic recovered", "error", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	})
}

// bearerAuth rejects requests without the expected bearer token.
func bearerAuth(token string) gin.HandlerFunc {
	expected := []byte(token)

	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			logger.WarnKV(c.Request.Context(), "Rejected unauthenticated request",
				"path", c.FullPath(), "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})

			return
		}

		c.Next()
	}
}

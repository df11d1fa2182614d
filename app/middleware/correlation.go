package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ufmedic/pkg/logger"
)

const correlationHeader = "X-Correlation-ID"

// Correlation attaches a correlation id to the request context so every
// log line of a request (and its detached remediation run) can be tied
// together. An incoming header wins, otherwise one is generated.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationHeader)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := logger.WithCorrelationID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(correlationHeader, id)

		c.Next()
	}
}

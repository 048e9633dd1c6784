package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vespo92/rhizome/pkg/log"
)

type loggedRequest struct {
	Proto    string `json:"proto"`
	Method   string `json:"method"`
	Host     string `json:"host"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
	Duration string `json:"duration"`
}

// NewLogger creates logging middleware that logs every request.
func NewLogger(logger log.Logger) gin.HandlerFunc {
	logger = logger.WithSubsystem(logger.Subsystem() + ".access")
	return func(c *gin.Context) {
		s := time.Now()

		c.Next()

		req := &loggedRequest{
			Proto:    c.Request.Proto,
			Method:   c.Request.Method,
			Host:     c.Request.Host,
			Path:     c.Request.URL.Path,
			Status:   c.Writer.Status(),
			Duration: time.Since(s).String(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request", zap.Any("request", req))
		} else {
			logger.Debug("request", zap.Any("request", req))
		}
	}
}

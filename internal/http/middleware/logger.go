package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Logger logs each HTTP request once it has been handled.
// Fields: request_id, method, path, status, latency_ms, ip.
// Server errors are logged at error level, everything else at info.
func Logger(logger *zap.Logger) fiber.Handler {
	log := logger.With(zap.String("component", "http"))

	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}

		fields := []zap.Field{
			zap.String("request_id", RequestIDFrom(c)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
			zap.String("ip", ClientIP(c)),
		}
		if status >= fiber.StatusInternalServerError {
			log.Error("http_request", append(fields, zap.Error(err))...)
		} else {
			log.Info("http_request", fields...)
		}

		return err
	}
}

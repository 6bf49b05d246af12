package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"apphub/internal/apperr"
	"apphub/internal/http/middleware"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_LIMIT", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: middleware.RequestIDFrom(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
//
// Coded errors keep their code and client-safe message. Persistence and
// uncoded failures are logged and answered with a generic 500.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return writeFiberError(c, fe)
		}

		status := middleware.StatusFor(err)
		switch apperr.KindOf(err) {
		case apperr.KindPersistence, apperr.KindInternal:
			logger.Error("request_failed",
				zap.String("request_id", middleware.RequestIDFrom(c)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		default:
			return writeError(c, status, string(apperr.Code(err)), apperr.Message(err))
		}
	}
}

func writeFiberError(c *fiber.Ctx, fe *fiber.Error) error {
	switch fe.Code {
	case fiber.StatusBadRequest:
		return writeError(c, fe.Code, "BAD_REQUEST", "bad request")
	case fiber.StatusNotFound:
		return writeError(c, fe.Code, "NOT_FOUND", "resource not found")
	case fiber.StatusMethodNotAllowed:
		return writeError(c, fe.Code, "METHOD_NOT_ALLOWED", "method not allowed")
	case fiber.StatusRequestEntityTooLarge:
		return writeError(c, fe.Code, string(apperr.CodeUploadTooLarge), "upload exceeds the size limit")
	case fiber.StatusUnsupportedMediaType, fiber.StatusUnprocessableEntity:
		return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "bad request")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

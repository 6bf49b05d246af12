package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"apphub/internal/apperr"
)

// StatusFor maps an error onto the HTTP status the error handler will write.
func StatusFor(err error) int {
	return statusOf(err)
}

func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		if apperr.Code(err) == apperr.CodeUploadTooLarge {
			return fiber.StatusRequestEntityTooLarge
		}
		return fiber.StatusBadRequest
	case apperr.KindSecurity:
		return fiber.StatusForbidden
	case apperr.KindIntegrity:
		if apperr.Code(err) == apperr.CodeScannerUnavailable {
			return fiber.StatusServiceUnavailable
		}
		return fiber.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindUnauthenticated:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

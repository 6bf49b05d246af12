package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"apphub/internal/config"
)

// NewAppConfig returns the fiber settings the portal runs with.
//
// Request bodies are streamed so multipart uploads spill to temporary files
// instead of being held in memory. BodyLimit rejects oversized requests by
// Content-Length before the handler runs; the upload pipeline enforces the
// exact payload cap.
func NewAppConfig(up config.UploadConfig, logger *zap.Logger) fiber.Config {
	return fiber.Config{
		ErrorHandler:          ErrorHandler(logger),
		BodyLimit:             int((up.MaxMB + up.MultipartHeadroomMB) * 1024 * 1024),
		StreamRequestBody:     true,
		DisableStartupMessage: true,
	}
}

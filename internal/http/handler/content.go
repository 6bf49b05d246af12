package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"apphub/internal/apperr"
	"apphub/internal/http/middleware"
	"apphub/internal/service"
)

// HeaderAccelRedirect hands the response body over to the fronting web server.
const HeaderAccelRedirect = "X-Accel-Redirect"

// CSRFToken returns the token for the current client so scripted callers can
// echo it back in the X-CSRF-Token header.
//
//	@Summary	Current CSRF token
//	@Tags		session
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/csrf [get]
func CSRFToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"csrf_token": middleware.CSRFTokenFrom(c)})
	}
}

// Me returns the principal resolved for this request.
//
//	@Summary	Current principal
//	@Tags		session
//	@Produce	json
//	@Success	200	{object}	model.Principal
//	@Failure	401	{object}	errorPayload
//	@Router		/me [get]
func Me() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := middleware.PrincipalFrom(c)
		if !ok {
			return apperr.Unauthenticated("missing principal")
		}
		return c.JSON(p)
	}
}

// Download serves a release binary through an internal redirect.
//
//	@Summary	Download a release file
//	@Tags		content
//	@Param		id	path	int	true	"File ID"
//	@Success	200
//	@Failure	403	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Router		/download/{id} [get]
func Download(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		r, err := svc.ResolveDownload(c.UserContext(), id)
		if err != nil {
			return err
		}
		return sendRetrieval(c, r)
	}
}

// Media serves an app image through an internal redirect.
//
//	@Summary	Fetch app media
//	@Tags		content
//	@Param		id	path	int	true	"Media ID"
//	@Success	200
//	@Failure	403	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Router		/media/{id} [get]
func Media(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		r, err := svc.ResolveMedia(c.UserContext(), id)
		if err != nil {
			return err
		}
		return sendRetrieval(c, r)
	}
}

func sendRetrieval(c *fiber.Ctx, r *service.Retrieval) error {
	if r.Attachment {
		c.Attachment(r.Filename)
	}
	if r.ContentType != "" {
		c.Set(fiber.HeaderContentType, r.ContentType)
	}
	c.Set(HeaderAccelRedirect, r.Redirect)
	c.Status(fiber.StatusOK)
	return nil
}

func pathID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(apperr.CodeInvalidInput, "invalid id")
	}
	return id, nil
}

package handler

import (
	"context"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"apphub/internal/apperr"
	"apphub/internal/http/middleware"
	"apphub/internal/model"
	"apphub/internal/service"
	"apphub/internal/upload"
)

// UploadFieldName is the multipart field carrying the uploaded bytes.
const UploadFieldName = "upload"

func actorFrom(c *fiber.Ctx) (service.Actor, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return service.Actor{}, apperr.Unauthenticated("missing principal")
	}
	return service.Actor{Principal: p, SourceIP: middleware.ClientIP(c)}, nil
}

func formInt(c *fiber.Ctx, field string, required bool) (int64, error) {
	raw := strings.TrimSpace(c.FormValue(field))
	if raw == "" && !required {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validationf(apperr.CodeInvalidInput, "invalid %s", field)
	}
	return v, nil
}

// openUpload opens the multipart part. The caller closes the returned file.
func openUpload(c *fiber.Ctx) (upload.Descriptor, multipart.File, error) {
	fh, err := c.FormFile(UploadFieldName)
	if err != nil {
		return upload.Descriptor{}, nil, apperr.Validation(apperr.CodeInvalidInput, "upload is required")
	}
	f, err := fh.Open()
	if err != nil {
		return upload.Descriptor{}, nil, apperr.Validation(apperr.CodeInvalidInput, "cannot open uploaded file")
	}
	return upload.Descriptor{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Body:        f,
	}, f, nil
}

// UploadFile ingests a release binary.
//
//	@Summary	Upload a release file
//	@Tags		admin
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		release_id	formData	int		true	"Release ID"
//	@Param		platform	formData	string	true	"Platform"
//	@Param		arch		formData	string	true	"Architecture"
//	@Param		upload		formData	file	true	"Binary"
//	@Success	201			{object}	model.FileRecord
//	@Failure	400			{object}	errorPayload
//	@Failure	403			{object}	errorPayload
//	@Failure	413			{object}	errorPayload
//	@Failure	422			{object}	errorPayload
//	@Failure	503			{object}	errorPayload
//	@Router		/admin/files/upload [post]
func UploadFile(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		releaseID, err := formInt(c, "release_id", true)
		if err != nil {
			return err
		}
		d, f, err := openUpload(c)
		if err != nil {
			return err
		}
		defer f.Close()

		rec, err := svc.UploadFile(c.UserContext(), actor, service.FileUpload{
			ReleaseID: releaseID,
			Platform:  strings.TrimSpace(c.FormValue("platform")),
			Arch:      strings.TrimSpace(c.FormValue("arch")),
			Upload:    d,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	}
}

// UploadMedia ingests an app image.
//
//	@Summary	Upload app media
//	@Tags		admin
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		app_id		formData	int		true	"App ID"
//	@Param		type		formData	string	false	"Media type"
//	@Param		caption		formData	string	false	"Caption"
//	@Param		sort_order	formData	int		false	"Sort order"
//	@Param		upload		formData	file	true	"Image"
//	@Success	201			{object}	model.MediaRecord
//	@Failure	400			{object}	errorPayload
//	@Failure	403			{object}	errorPayload
//	@Router		/admin/media/upload [post]
func UploadMedia(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		appID, err := formInt(c, "app_id", true)
		if err != nil {
			return err
		}
		sortOrder, err := formInt(c, "sort_order", false)
		if err != nil {
			return err
		}
		d, f, err := openUpload(c)
		if err != nil {
			return err
		}
		defer f.Close()

		rec, err := svc.UploadMedia(c.UserContext(), actor, service.MediaUpload{
			AppID:     appID,
			Type:      strings.TrimSpace(c.FormValue("type")),
			Caption:   c.FormValue("caption"),
			SortOrder: int(sortOrder),
			Upload:    d,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	}
}

func deleteHandler(del func(ctx context.Context, actor service.Actor, id int64) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		id, err := pathID(c)
		if err != nil {
			return err
		}
		if err := del(c.UserContext(), actor, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DeleteFile soft deletes a release file.
//
//	@Summary	Delete a release file
//	@Tags		admin
//	@Param		id	path	int	true	"File ID"
//	@Success	204
//	@Failure	403	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Router		/admin/files/{id}/delete [post]
func DeleteFile(svc service.PortalService) fiber.Handler {
	return deleteHandler(svc.DeleteFile)
}

// DeleteMedia removes an app image and its stored file.
//
//	@Summary	Delete app media
//	@Tags		admin
//	@Param		id	path	int	true	"Media ID"
//	@Success	204
//	@Failure	403	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Router		/admin/media/{id}/delete [post]
func DeleteMedia(svc service.PortalService) fiber.Handler {
	return deleteHandler(svc.DeleteMedia)
}

// DeleteApp soft deletes an app listing.
//
//	@Summary	Delete an app
//	@Tags		admin
//	@Param		id	path	int	true	"App ID"
//	@Success	204
//	@Failure	403	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Router		/admin/apps/{id}/delete [post]
func DeleteApp(svc service.PortalService) fiber.Handler {
	return deleteHandler(svc.DeleteApp)
}

type roleRequest struct {
	Role string `json:"role" form:"role"`
}

// SetUserRole changes a user's role.
//
//	@Summary	Change a user's role
//	@Tags		admin
//	@Accept		json,x-www-form-urlencoded
//	@Param		id		path	int			true	"User ID"
//	@Param		body	body	roleRequest	true	"New role"
//	@Success	204
//	@Failure	400	{object}	errorPayload
//	@Failure	403	{object}	errorPayload
//	@Router		/admin/users/{id}/role [post]
func SetUserRole(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		id, err := pathID(c)
		if err != nil {
			return err
		}
		var req roleRequest
		if err := c.BodyParser(&req); err != nil {
			return apperr.Validation(apperr.CodeInvalidInput, "invalid body")
		}
		role, err := model.ParseRole(req.Role)
		if err != nil {
			return apperr.Validation(apperr.CodeInvalidInput, "invalid role")
		}
		if err := svc.SetUserRole(c.UserContext(), actor, id, role); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ListAudit pages through the audit log, newest first.
//
//	@Summary	List audit entries
//	@Tags		admin
//	@Produce	json
//	@Param		limit	query		int	false	"Page size"	default(50)
//	@Param		offset	query		int	false	"Offset"	default(0)
//	@Success	200		{object}	service.AuditListResult
//	@Failure	400		{object}	errorPayload
//	@Failure	403		{object}	errorPayload
//	@Router		/admin/audit [get]
func ListAudit(svc service.PortalService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		limit, err := strconv.Atoi(c.Query("limit", "50"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.ListAudit(c.UserContext(), actor, limit, offset)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

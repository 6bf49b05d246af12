package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"apphub/internal/config"
	"apphub/internal/http/middleware"
	"apphub/internal/model"
	"apphub/internal/service"
)

// Options carries what RegisterRoutes needs besides the app.
type Options struct {
	Service  service.PortalService
	CSRF     config.CSRFConfig
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
//
// Probes and /metrics are unauthenticated. Every other route passes the CSRF
// check first and then resolves the principal from the proxy identity
// headers, so forged requests never reach the database.
func RegisterRoutes(app *fiber.App, o Options) {
	svc := o.Service
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app.Get("/health", HealthCheck(svc))
	app.Get("/healthz", LivenessProbe())
	if o.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})))
	}

	portal := app.Group("", middleware.CSRF(o.CSRF, logger), middleware.Identity(svc))
	portal.Get("/csrf", CSRFToken())
	portal.Get("/me", Me())
	portal.Get("/download/:id", Download(svc))
	portal.Get("/media/:id", Media(svc))

	editor := middleware.RequireRole(model.RoleEditor, logger)
	admin := middleware.RequireRole(model.RoleAdmin, logger)

	adm := portal.Group("/admin")
	adm.Post("/files/upload", editor, UploadFile(svc))
	adm.Post("/media/upload", editor, UploadMedia(svc))
	adm.Post("/files/:id/delete", admin, DeleteFile(svc))
	adm.Post("/media/:id/delete", admin, DeleteMedia(svc))
	adm.Post("/apps/:id/delete", admin, DeleteApp(svc))
	adm.Post("/users/:id/role", admin, SetUserRole(svc))
	adm.Get("/audit", admin, ListAudit(svc))
}

package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"apphub/internal/apperr"
	"apphub/internal/config"
	"apphub/internal/model"
)

// statusErrors renders middleware errors the way the real error handler
// picks statuses, without the envelope.
func statusErrors(c *fiber.Ctx, err error) error {
	return c.SendStatus(StatusFor(err))
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: statusErrors})
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestRequestID(t *testing.T) {
	app := newTestApp()
	app.Use(RequestID())

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendString(RequestIDFrom(c))
	})

	t.Run("should generate new request id if not present", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		ridHeader := resp.Header.Get(RequestIDHeader)
		assert.Len(t, ridHeader, 36)
		assert.Equal(t, ridHeader, body(t, resp))
	})

	t.Run("should preserve existing request id", func(t *testing.T) {
		existingID := "test-id-123"
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, existingID)

		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, existingID, resp.Header.Get(RequestIDHeader))
		assert.Equal(t, existingID, body(t, resp))
	})

	t.Run("should replace unsafe request id", func(t *testing.T) {
		for _, bad := range []string{"has space", strings.Repeat("a", maxRequestIDLen+1)} {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set(RequestIDHeader, bad)

			resp, err := app.Test(req)
			require.NoError(t, err)

			got := resp.Header.Get(RequestIDHeader)
			assert.NotEqual(t, bad, got)
			assert.Len(t, got, 36)
		}
	})
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	app := newTestApp()

	app.Use(RequestID())
	app.Use(Logger(zap.New(core)))

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, "203.0.113.7, 10.0.0.1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, resp.Header.Get(RequestIDHeader), fields["request_id"])
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/test", fields["path"])
	assert.Equal(t, int64(fiber.StatusAccepted), fields["status"])
	assert.Equal(t, "203.0.113.7", fields["ip"])
	assert.Contains(t, fields, "latency_ms")
	assert.Equal(t, "http", fields["component"])

	_, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)

	failed := logs.FilterMessage("http_request").FilterField(zap.Int("status", fiber.StatusInternalServerError)).All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
}

func TestClientIP(t *testing.T) {
	app := newTestApp()
	app.Get("/ip", func(c *fiber.Ctx) error {
		return c.SendString(ClientIP(c))
	})

	req := httptest.NewRequest("GET", "/ip", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, " 198.51.100.2 ,10.0.0.1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.2", body(t, resp))

	resp, err = app.Test(httptest.NewRequest("GET", "/ip", nil))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", body(t, resp))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"fiber error", fiber.NewError(fiber.StatusRequestEntityTooLarge, "too big"), 413},
		{"validation", apperr.Validation(apperr.CodeExtensionRejected, "no"), 400},
		{"too large", apperr.Validation(apperr.CodeUploadTooLarge, "no"), 413},
		{"csrf", apperr.Security(apperr.CodeCSRFRejected, "no"), 403},
		{"path", apperr.Security(apperr.CodePathRejected, "no"), 403},
		{"malware", apperr.Integrity(apperr.CodeMalwareDetected, "no", nil), 422},
		{"scanner down", apperr.Integrity(apperr.CodeScannerUnavailable, "no", nil), 503},
		{"not found", apperr.NotFound("no"), 404},
		{"unauthenticated", apperr.Unauthenticated("no"), 401},
		{"persistence", apperr.Persistence(errors.New("down"), "no"), 500},
		{"uncoded", errors.New("raw"), 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

var testCSRF = config.CSRFConfig{
	CookieName:   "apphub_csrf",
	HeaderName:   "X-CSRF-Token",
	FormField:    "csrf_token",
	CookieSecure: true,
}

func newCSRFApp(t *testing.T) (*fiber.App, *observer.ObservedLogs, *int) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	reached := 0

	app := newTestApp()
	app.Use(CSRF(testCSRF, zap.New(core)))
	app.Get("/form", func(c *fiber.Ctx) error {
		return c.SendString(CSRFTokenFrom(c))
	})
	app.Post("/mutate", func(c *fiber.Ctx) error {
		reached++
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app, logs, &reached
}

func TestCSRF_IssuesCookie(t *testing.T) {
	app, _, _ := newCSRFApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/form", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var issued *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == "apphub_csrf" {
			issued = ck
		}
	}
	require.NotNil(t, issued)
	assert.Len(t, issued.Value, 43)
	assert.Equal(t, issued.Value, body(t, resp))
	assert.Equal(t, "/", issued.Path)
	assert.True(t, issued.Secure)
	assert.False(t, issued.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, issued.SameSite)
}

func TestCSRF_KeepsExistingCookie(t *testing.T) {
	app, _, _ := newCSRFApp(t)

	req := httptest.NewRequest("GET", "/form", nil)
	req.AddCookie(&http.Cookie{Name: "apphub_csrf", Value: "stable-token"})
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, "stable-token", body(t, resp))
	assert.Empty(t, resp.Header.Values(fiber.HeaderSetCookie))
}

func TestCSRF_Verify(t *testing.T) {
	tests := []struct {
		name    string
		cookie  string
		header  string
		form    string
		status  int
		reached bool
	}{
		{name: "no cookie", header: "tok", status: 403},
		{name: "no submitted token", cookie: "tok", status: 403},
		{name: "header mismatch", cookie: "tok", header: "other", status: 403},
		{name: "header match", cookie: "tok", header: "tok", status: 204, reached: true},
		{name: "form match", cookie: "tok", form: "tok", status: 204, reached: true},
		{name: "header wins over form", cookie: "tok", header: "bad", form: "tok", status: 403},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, logs, reached := newCSRFApp(t)

			values := url.Values{}
			if tt.form != "" {
				values.Set("csrf_token", tt.form)
			}
			req := httptest.NewRequest("POST", "/mutate", strings.NewReader(values.Encode()))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "apphub_csrf", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.reached, *reached == 1)

			rejected := logs.FilterMessage("csrf_rejected").All()
			if tt.reached {
				assert.Empty(t, rejected)
			} else {
				require.Len(t, rejected, 1)
				assert.Equal(t, true, rejected[0].ContextMap()["security_event"])
			}
		})
	}
}

func TestCSRF_IgnoresFormForJSON(t *testing.T) {
	app, _, reached := newCSRFApp(t)

	req := httptest.NewRequest("POST", "/mutate", strings.NewReader(`{"csrf_token":"tok"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.AddCookie(&http.Cookie{Name: "apphub_csrf", Value: "tok"})

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, *reached)
}

type stubIdentifier struct {
	principal model.Principal
	err       error
	email     string
	name      string
}

func (s *stubIdentifier) Identify(_ context.Context, email, displayName string) (*model.Principal, error) {
	s.email, s.name = email, displayName
	if s.err != nil {
		return nil, s.err
	}
	p := s.principal
	p.Email = email
	return &p, nil
}

func newIdentityApp(id Identifier, min model.Role) (*fiber.App, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	app := newTestApp()
	app.Use(Identity(id))
	app.Get("/me", func(c *fiber.Ctx) error {
		p, _ := PrincipalFrom(c)
		return c.SendString(p.Email)
	})
	app.Post("/admin", RequireRole(min, zap.New(core)), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app, logs
}

func TestIdentity(t *testing.T) {
	t.Run("missing email is unauthenticated", func(t *testing.T) {
		id := &stubIdentifier{principal: model.Principal{Role: model.RoleViewer}}
		app, _ := newIdentityApp(id, model.RoleAdmin)

		resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, id.email)
	})

	t.Run("normalizes email and prefers preferred username", func(t *testing.T) {
		id := &stubIdentifier{principal: model.Principal{ID: 4, Role: model.RoleViewer}}
		app, _ := newIdentityApp(id, model.RoleAdmin)

		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set(HeaderAuthEmail, "  Ana@Example.COM ")
		req.Header.Set(HeaderAuthPreferredUsername, "ana")
		req.Header.Set(HeaderAuthUser, "ana.user")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "ana@example.com", body(t, resp))
		assert.Equal(t, "ana", id.name)
	})

	t.Run("falls back to auth user", func(t *testing.T) {
		id := &stubIdentifier{principal: model.Principal{Role: model.RoleViewer}}
		app, _ := newIdentityApp(id, model.RoleAdmin)

		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set(HeaderAuthEmail, "ana@example.com")
		req.Header.Set(HeaderAuthUser, "ana.user")

		_, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, "ana.user", id.name)
	})

	t.Run("identify failure propagates", func(t *testing.T) {
		id := &stubIdentifier{err: apperr.Persistence(errors.New("down"), "upsert user")}
		app, _ := newIdentityApp(id, model.RoleAdmin)

		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set(HeaderAuthEmail, "ana@example.com")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	})
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role   model.Role
		status int
	}{
		{model.RoleViewer, fiber.StatusForbidden},
		{model.RoleEditor, fiber.StatusForbidden},
		{model.RoleAdmin, fiber.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			app, logs := newIdentityApp(&stubIdentifier{principal: model.Principal{Role: tt.role}}, model.RoleAdmin)

			req := httptest.NewRequest("POST", "/admin", nil)
			req.Header.Set(HeaderAuthEmail, "ana@example.com")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			denied := logs.FilterMessage("access_denied").All()
			if tt.status == fiber.StatusForbidden {
				require.Len(t, denied, 1)
				assert.Equal(t, tt.role.String(), denied[0].ContextMap()["role"])
				assert.Equal(t, true, denied[0].ContextMap()["security_event"])
			} else {
				assert.Empty(t, denied)
			}
		})
	}

	t.Run("without identity", func(t *testing.T) {
		app := newTestApp()
		app.Post("/admin", RequireRole(model.RoleViewer, zap.NewNop()), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNoContent)
		})

		resp, err := app.Test(httptest.NewRequest("POST", "/admin", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

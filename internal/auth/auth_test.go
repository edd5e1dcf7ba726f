package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
	apperrors "github.com/spec-kit/ticket-dispatch/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30)

	issued, raw, err := tm.GenerateToken("ops@example.com", domain.RoleDispatcher)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, issued.ExpiresAt.Sub(issued.IssuedAt))

	claims, err := tm.ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, domain.RoleDispatcher, claims.Role)
}

func TestTokenRejections(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	_, raw, err := tm.GenerateToken("ops", domain.RoleViewer)
	require.NoError(t, err)

	_, err = NewTokenManager("other", 5).ParseToken(raw)
	assert.Error(t, err, "wrong secret")

	tm.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = tm.ParseToken(raw)
	assert.Error(t, err, "expired")

	_, _, err = tm.GenerateToken("ops", "root")
	assert.Error(t, err)
	_, _, err = tm.GenerateToken("", domain.RoleAdmin)
	assert.Error(t, err)
}

func newProtectedApp(tm *TokenManager, required domain.OperatorRole) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		if fe, ok := err.(*fiber.Error); ok {
			return c.SendStatus(fe.Code)
		}
		return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
	}})
	app.Get("/", NewAuthMiddleware(tm).Handle, RequireRole(required), func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.SendString(principal.Subject)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	_, viewer, err := tm.GenerateToken("viewer", domain.RoleViewer)
	require.NoError(t, err)
	_, admin, err := tm.GenerateToken("admin", domain.RoleAdmin)
	require.NoError(t, err)
	app := newProtectedApp(tm, domain.RoleDispatcher)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"insufficient role", "Bearer " + viewer, http.StatusForbidden},
		{"admin passes", "Bearer " + admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestRoleOrdering(t *testing.T) {
	assert.True(t, domain.RoleAdmin.AtLeast(domain.RoleViewer))
	assert.True(t, domain.RoleDispatcher.AtLeast(domain.RoleDispatcher))
	assert.False(t, domain.RoleViewer.AtLeast(domain.RoleDispatcher))
	assert.False(t, domain.OperatorRole("root").AtLeast(domain.RoleViewer))
}

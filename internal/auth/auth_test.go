package auth_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-router/internal/auth"
	"github.com/spec-kit/support-router/internal/domain"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := auth.NewTokenManager("secret", 5)
	meta, token, err := tm.GenerateToken("adapter-1", domain.SubjectTypeAdapter)
	require.NoError(t, err)
	assert.Equal(t, "adapter-1", meta.SubjectID)
	assert.WithinDuration(t, meta.IssuedAt.Add(5*time.Minute), meta.ExpiresAt, time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "adapter-1", claims.ClientID)
	assert.Equal(t, domain.SubjectTypeAdapter, claims.Subject)
}

func TestTokenRejectsForeignSecret(t *testing.T) {
	_, token, err := auth.NewTokenManager("one", 5).GenerateToken("c", domain.SubjectTypeAdapter)
	require.NoError(t, err)

	_, err = auth.NewTokenManager("two", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestSecretHashing(t *testing.T) {
	hash, err := auth.HashSecret("s3cret", 4)
	require.NoError(t, err)
	assert.NoError(t, auth.CompareSecret(hash, "s3cret"))
	assert.Error(t, auth.CompareSecret(hash, "wrong"))
}

func newApp(mw *auth.AuthMiddleware) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Get("/adapter", mw.Handle, auth.RequireAdapter(), func(c *fiber.Ctx) error {
		p, _ := auth.PrincipalFromContext(c)
		return c.SendString(p.ClientID)
	})
	app.Get("/operator", mw.Handle, auth.RequireOperator(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func call(t *testing.T, app *fiber.App, path, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMiddlewareEnforcesSubjects(t *testing.T) {
	tm := auth.NewTokenManager("secret", 5)
	app := newApp(auth.NewAuthMiddleware(tm, true))

	_, adapterToken, err := tm.GenerateToken("adapter-1", domain.SubjectTypeAdapter)
	require.NoError(t, err)
	_, operatorToken, err := tm.GenerateToken("ops", domain.SubjectTypeOperator)
	require.NoError(t, err)

	status, body := call(t, app, "/adapter", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body)

	status, _ = call(t, app, "/adapter", "garbage")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = call(t, app, "/adapter", adapterToken)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "adapter-1", body)

	status, _ = call(t, app, "/operator", adapterToken)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, app, "/operator", operatorToken)
	assert.Equal(t, http.StatusOK, status)
}

func TestDisabledMiddlewareGrantsLocalOperator(t *testing.T) {
	app := newApp(auth.NewAuthMiddleware(nil, false))

	status, body := call(t, app, "/adapter", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, auth.LocalClientID, body)

	status, _ = call(t, app, "/operator", "")
	assert.Equal(t, http.StatusOK, status)
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/incident-service/internal/domain"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	operator := domain.Operator{ID: "op-1", Name: "Sam", Role: domain.OperatorRoleAgent}

	token, expiresAt, err := tm.GenerateToken(operator)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, operator, claims.Operator())

	subject, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "op-1", subject)
}

func TestParseTokenRequiresSubject(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	token, _, err := tm.GenerateToken(domain.Operator{Role: domain.OperatorRoleAgent})
	require.NoError(t, err)

	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	token, _, err := tm.GenerateToken(domain.Operator{ID: "op-1", Role: domain.OperatorRoleAgent})
	require.NoError(t, err)

	other := NewTokenManager("other-secret", 1)
	_, err = other.ParseToken(token)
	assert.Error(t, err)

	tm.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func newAuthApp(tm *TokenManager, roles ...domain.OperatorRole) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		domainErr := apperrors.ToDomainError(err)
		return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"code": domainErr.Code})
	}})
	app.Get("/whoami", NewAuthMiddleware(tm).Handle, RequireRole(roles...), func(c *fiber.Ctx) error {
		operator, _ := OperatorFromContext(c)
		return c.SendString(operator.ID)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	agentToken, _, err := tm.GenerateToken(domain.Operator{ID: "op-1", Role: domain.OperatorRoleAgent})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		roles  []domain.OperatorRole
		status int
	}{
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "any role", header: "Bearer " + agentToken, status: http.StatusOK},
		{name: "allowed role", header: "Bearer " + agentToken, roles: []domain.OperatorRole{domain.OperatorRoleAgent}, status: http.StatusOK},
		{name: "insufficient role", header: "Bearer " + agentToken, roles: []domain.OperatorRole{domain.OperatorRoleAdmin}, status: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newAuthApp(tm, tc.roles...)
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

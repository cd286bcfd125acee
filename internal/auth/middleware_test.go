package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

type parseOnlyVerifier struct{ tokens *TokenManager }

func (v parseOnlyVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	return v.tokens.ParseToken(token)
}

func newTestApp(t *testing.T) (*fiber.App, *TokenManager, *domain.User, *domain.User) {
	t.Helper()
	store := repository.NewMemoryStore()
	member := &domain.User{Name: "Member", Email: "member@example.com", Role: domain.RoleUser}
	admin := &domain.User{Name: "Admin", Email: "admin@example.com", Role: domain.RoleAdmin}
	for _, u := range []*domain.User{member, admin} {
		if err := store.Users().Create(context.Background(), u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	tokens := NewTokenManager("secret", 5)
	mw := NewAuthMiddleware(parseOnlyVerifier{tokens}, store.Users())

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var domainErr *apperrors.DomainError
			if errors.As(err, &domainErr) {
				return c.SendStatus(domainErr.HTTPStatus)
			}
			return c.SendStatus(http.StatusInternalServerError)
		},
	})
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(string(p.Actor().Role))
	})
	app.Get("/admin", mw.Handle, RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	app.Get("/stream", mw.HandleStream, func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	return app, tokens, member, admin
}

func TestAuthMiddleware(t *testing.T) {
	app, tokens, member, admin := newTestApp(t)
	memberToken, _ := tokens.GenerateToken(member.ID, member.Role)
	adminToken, _ := tokens.GenerateToken(admin.ID, admin.Role)
	ghostToken, _ := tokens.GenerateToken("no-such-user", domain.RoleUser)

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"unknown user", "/me", "Bearer " + ghostToken.Token, http.StatusUnauthorized},
		{"member ok", "/me", "Bearer " + memberToken.Token, http.StatusOK},
		{"member on admin route", "/admin", "Bearer " + memberToken.Token, http.StatusForbidden},
		{"admin on admin route", "/admin", "Bearer " + adminToken.Token, http.StatusNoContent},
		{"query token ignored outside stream", "/me?token=" + memberToken.Token, "", http.StatusUnauthorized},
		{"query token on stream", "/stream?token=" + memberToken.Token, "", http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arxiv/relations/internal/domain"
	"github.com/arxiv/relations/internal/present/rest/presenter"
	"github.com/arxiv/relations/internal/service"
)

var tracer = otel.Tracer("auth")

type AuthMiddleware struct {
	auth *service.AuthService
}

func NewAuthMiddleware(auth *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		auth: auth,
	}
}

// IdentifyIdentity stores the X-Requester header on the request context. It
// never rejects a request.
func (s *AuthMiddleware) IdentifyIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.IdentifyIdentity")
		defer span.End()

		requester := strings.TrimSpace(c.Request().Header.Get(domain.RequesterIdHeader))
		if requester != "" {
			ctx = domain.WithRequester(ctx, requester)
			span.SetAttributes(attribute.String("RequesterId", requester))
		}

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// RequireAPIKey rejects requests whose X-API-KEY does not match the
// configured hash.
func (s *AuthMiddleware) RequireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.RequireAPIKey")
		defer span.End()

		if err := s.auth.VerifyAPIKey(ctx, c.Request().Header.Get(domain.APIKeyHeader)); err != nil {
			span.RecordError(err)
			return presenter.Unauthorized(c, err.Error())
		}

		return next(c)
	}
}

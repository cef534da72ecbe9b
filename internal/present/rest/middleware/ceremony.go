package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/passkey-wallet/internal/domain"
)

var tracer = otel.Tracer("middleware")

// CeremonySession binds the caller's ceremony relay session and request id to
// the request context.
func CeremonySession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Middleware.CeremonySession")
		defer span.End()

		if requestID := c.Response().Header().Get(echo.HeaderXRequestID); requestID != "" {
			ctx = context.WithValue(ctx, domain.RequestIDCtxKey, requestID)
			span.SetAttributes(attribute.String("RequestId", requestID))
		}

		if session := c.Request().Header.Get(domain.CeremonySessionHeader); session != "" {
			ctx = context.WithValue(ctx, domain.CeremonySessionCtxKey, session)
			span.SetAttributes(attribute.String("CeremonySession", session))
		}

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

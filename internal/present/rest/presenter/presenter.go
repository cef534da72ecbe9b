package presenter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/totegamma/passkey-wallet/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func BadRequestMessage(c echo.Context, msg string) error {
	slog.InfoContext(c.Request().Context(), "bad request", slog.String("error", msg), slog.String("module", "rest"))
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func InternalErrorMessage(c echo.Context, err error, msg string) error {
	slog.ErrorContext(c.Request().Context(), msg, slog.String("error", err.Error()), slog.String("module", "rest"))
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: msg})
}

// Status maps an error kind to its HTTP status.
func Status(err error) int {
	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound
	}
	switch domain.KindOf(err) {
	case domain.KindInvalidArgument, domain.KindUnsupportedCurrency, domain.KindSubmissionFailed, domain.KindAccountNotInitialized:
		return http.StatusBadRequest
	case domain.KindAuthenticationFailed:
		return http.StatusUnauthorized
	case domain.KindCredentialExists:
		return http.StatusConflict
	case domain.KindNotInitialized:
		return http.StatusServiceUnavailable
	case domain.KindBindingFailed, domain.KindTransferFailed:
		return http.StatusBadGateway
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error renders err as {"error": kind}. Underlying transport text is logged only.
func Error(c echo.Context, err error) error {
	status := Status(err)
	kind := string(domain.KindOf(err))
	if status == http.StatusNotFound {
		kind = "not_found"
	}
	if kind == "" {
		kind = "internal"
	}

	trace.SpanFromContext(c.Request().Context()).RecordError(err)

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(c.Request().Context(), level, "request failed",
		slog.String("path", c.Path()),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("module", "rest"),
	)
	return c.JSON(status, errorResponse{Error: kind})
}

// ErrorWith renders err like Error and adds extra fields to the body.
func ErrorWith(c echo.Context, err error, extra echo.Map) error {
	status := Status(err)
	body := echo.Map{"error": string(domain.KindOf(err))}
	for k, v := range extra {
		body[k] = v
	}
	slog.WarnContext(c.Request().Context(), "request failed",
		slog.String("path", c.Path()),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("module", "rest"),
	)
	return c.JSON(status, body)
}

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/pscheid92/pollpulse/internal/platform/correlation"
	apperrors "github.com/pscheid92/pollpulse/internal/platform/errors"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorName = "X-Actor-Name"

	contextKeyActorID   = "actorID"
	contextKeyActorName = "actorName"

	retryAfterSeconds = "1"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = correlation.NewID()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)

		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// actorMiddleware reads the caller's opaque actor id and display name. Both
// are optional here; operations that need an actor reject an empty one.
func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actorID := strings.TrimSpace(c.Request().Header.Get(headerActorID))
		c.Set(contextKeyActorID, actorID)
		c.Set(contextKeyActorName, strings.TrimSpace(c.Request().Header.Get(headerActorName)))

		if actorID != "" {
			ctx := correlation.WithActor(c.Request().Context(), actorID)
			c.SetRequest(c.Request().WithContext(ctx))
		}
		return next(c)
	}
}

func actorID(c echo.Context) string {
	id, _ := c.Get(contextKeyActorID).(string)
	return id
}

func actorName(c echo.Context) string {
	name, _ := c.Get(contextKeyActorName).(string)
	return name
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			return HandleError(c, err)
		}
	}
}

// HandleError maps err to a structured error, logs it and writes the JSON
// response. Internal errors are also sent to Sentry.
func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := toAPIError(err)
	logError(c, structuredErr)

	if structuredErr.Type == apperrors.TypeInternal {
		captureError(c.Request().Context(), structuredErr)
	}
	if structuredErr.Retryable() {
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
	}

	if c.Response().Committed {
		return nil
	}
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

// toAPIError is the single place where domain errors get their HTTP meaning.
func toAPIError(err error) *apperrors.Error {
	var structuredErr *apperrors.Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	switch {
	case errors.Is(err, domain.ErrPollNotFound):
		return apperrors.NotFoundError("poll not found").WithCode("poll_not_found")
	case errors.Is(err, domain.ErrInvalidPoll):
		return apperrors.ValidationError(err.Error()).WithCode("invalid_poll")
	case errors.Is(err, domain.ErrInvalidOption):
		return apperrors.ValidationError(err.Error()).WithCode("invalid_option")
	case errors.Is(err, domain.ErrInvalidFeedback):
		return apperrors.ValidationError(err.Error()).WithCode("invalid_feedback")
	case errors.Is(err, domain.ErrMissingActor):
		return apperrors.ValidationError("the " + headerActorID + " header is required").WithCode("missing_actor")
	case errors.Is(err, domain.ErrAlreadyVoted):
		return apperrors.ConflictError(err.Error()).WithCode("already_voted")
	case errors.Is(err, domain.ErrContention):
		return apperrors.UnavailableError("poll is busy, retry shortly", err).WithCode("contention")
	case errors.Is(err, domain.ErrTooManySubscribers):
		return apperrors.UnavailableError("too many viewers on this poll", err).WithCode("too_many_subscribers")
	case errors.Is(err, domain.ErrHubStopped):
		return apperrors.UnavailableError("server is shutting down", err).WithCode("shutting_down")
	case errors.Is(err, context.Canceled):
		return apperrors.CanceledError("request canceled", err).WithCode("client_closed")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.UnavailableError("request timed out", err).WithCode("timeout")
	default:
		return apperrors.InternalError("internal server error", err)
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"code", err.Code,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.InfoContext(ctx, "Conflict", attrs...)
	case apperrors.TypeRateLimited:
		slog.InfoContext(ctx, "Rate limited", attrs...)
	case apperrors.TypeCanceled:
		slog.DebugContext(ctx, "Request canceled by client", attrs...)
	case apperrors.TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.WarnContext(ctx, "Service unavailable", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func captureError(ctx context.Context, err *apperrors.Error) {
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		if id, ok := correlation.ID(ctx); ok {
			scope.SetTag("correlation_id", id)
		}
		scope.SetTag("error_code", err.Code)
	})
	hub.CaptureException(err)
}

// WrapHTTPError converts an echo error (from binding or routing) into a
// structured one.
func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var err *apperrors.Error
	switch httpErr.Code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		err = apperrors.ValidationError(message)
	case http.StatusNotFound:
		err = apperrors.NotFoundError(message)
	case http.StatusConflict:
		err = apperrors.ConflictError(message)
	case http.StatusServiceUnavailable:
		err = apperrors.UnavailableError(message, nil)
	default:
		err = apperrors.InternalError(message, nil)
	}

	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}
	return err
}

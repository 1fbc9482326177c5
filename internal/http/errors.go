package http

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/history"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/service"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/token"
)

// apiError carries an explicit status and body chosen by a handler.
type apiError struct {
	status int
	body   any
}

func (e *apiError) Error() string { return fmt.Sprintf("http %d: %v", e.status, e.body) }

func detail(status int, msg string) *apiError {
	return &apiError{status: status, body: fiber.Map{"detail": msg}}
}

func unprocessable(msg string) *apiError {
	return &apiError{status: fiber.StatusUnprocessableEntity, body: fiber.Map{
		"message": "Can not process entity. " + msg,
		"detail":  msg,
	}}
}

var notFoundErrors = []error{
	service.ErrDeviceNotFound,
	service.ErrGardenNotFound,
	service.ErrDeviceTypeNotFound,
}

// ErrorHandler turns handler errors into JSON responses. Unclassified
// errors are logged and answered with a generic 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var ae *apiError
	if errors.As(err, &ae) {
		return c.Status(ae.status).JSON(ae.body)
	}

	for _, nf := range notFoundErrors {
		if errors.Is(err, nf) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"detail": nf.Error()})
		}
	}

	switch {
	case errors.Is(err, history.ErrInvalidGranularity):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "Invalid group_by value"})
	case errors.Is(err, token.ErrInvalidToken):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"detail": "Invalid access token"})
	case errors.Is(err, service.ErrExportDisabled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"detail": "History export is not configured"})
	case errors.Is(err, service.ErrValidation):
		ae = unprocessable(err.Error())
		return c.Status(ae.status).JSON(ae.body)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"detail": fe.Message})
	}

	log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": "Server Error.",
		"detail":  nil,
	})
}

package middleware

import (
	"errors"

	"learnhub/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// AppErrorResponse maps a service error to the response envelope using
// the error kind.
func AppErrorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = fiber.StatusNotFound
	case apperr.KindInvalidArgument:
		status = fiber.StatusBadRequest
	case apperr.KindConflict:
		status = fiber.StatusConflict
	case apperr.KindPrecondition:
		status = fiber.StatusPreconditionFailed
	case apperr.KindUpstream:
		status = fiber.StatusBadGateway
	}

	message := "Something went wrong!"
	var e *apperr.Error
	if errors.As(err, &e) {
		message = e.Message
	}
	return JsonResponse(c, status, false, message, nil)
}

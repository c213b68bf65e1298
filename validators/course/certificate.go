package courseValidator

import (
	"strings"

	"learnhub/middleware"

	"github.com/gofiber/fiber/v2"
)

// RevokeCertificate validates the revoke body for an issued certificate.
func RevokeCertificate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		certID, ok := parseIDParam(c, "certificate_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Certificate ID!", nil)
		}

		reqData := new(struct {
			Reason string `json:"reason" validate:"required,min=3,max=500"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		reqData.Reason = strings.TrimSpace(reqData.Reason)

		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, map[string]string{
				"reason": "Reason must be between 3 and 500 characters!",
			})
		}

		c.Locals("certificateID", certID)
		c.Locals("validatedRevoke", reqData)
		return c.Next()
	}
}

// VerifyCode validates the public verification code parameter.
func VerifyCode() fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := strings.TrimSpace(c.Params("code"))
		if code == "" {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Verification code is required!", nil)
		}

		return c.Next()
	}
}

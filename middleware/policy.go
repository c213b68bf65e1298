package middleware

import (
	"learnhub/models"

	"github.com/gofiber/fiber/v2"
)

// Actions guarded by the policy gate. Handlers never compare roles
// themselves; every authorization decision goes through one rule table.
const (
	ActionAuthorCourse     = "course:author"
	ActionViewEnrollments  = "course:view-enrollments"
	ActionOverrideProgress = "progress:override"
	ActionUpdateScores     = "progress:update-scores"
	ActionRevokeCert       = "certificate:revoke"
)

// policyRules maps an action to the roles allowed to perform it.
var policyRules = map[string][]string{
	ActionAuthorCourse:     {models.RoleInstructor, models.RoleAdmin},
	ActionViewEnrollments:  {models.RoleInstructor, models.RoleAdmin},
	ActionOverrideProgress: {models.RoleInstructor, models.RoleAdmin},
	ActionUpdateScores:     {models.RoleInstructor, models.RoleAdmin},
	ActionRevokeCert:       {models.RoleAdmin},
}

// Allowed evaluates the rule table for (role, action).
func Allowed(role, action string) bool {
	for _, allowed := range policyRules[action] {
		if role == allowed {
			return true
		}
	}
	return false
}

// RequireAction returns a middleware that rejects requests whose
// authenticated role is not allowed to perform the action. Must run
// after JWTMiddleware.
func RequireAction(action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals("userRole").(string)
		if !ok || role == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status":  false,
				"message": "Unauthorized: role not found",
				"data":    nil,
			})
		}
		if !Allowed(role, action) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"status":  false,
				"message": "You do not have permission to access this resource!",
				"data":    nil,
			})
		}
		return c.Next()
	}
}

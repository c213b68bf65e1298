package courseRoutes

import (
	controllers "learnhub/controllers/course"
	"learnhub/middleware"
	validators "learnhub/validators/course"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminCourseRoutes sets up course authoring routes for
// instructors and admins.
func SetupAdminCourseRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin/course",
		middleware.JWTMiddleware, middleware.RequireAction(middleware.ActionAuthorCourse))

	adminGroup.Post("/create", validators.CreateCourse(), controllers.CreateCourse)
	adminGroup.Put("/:course_id", validators.UpdateCourse(), controllers.UpdateCourse)
	adminGroup.Patch("/:course_id/publish", validators.PublishCourse(), controllers.PublishCourse)

	adminGroup.Post("/:course_id/module", validators.CreateModule(), controllers.CreateModule)
	adminGroup.Post("/:course_id/module/:module_id/lesson", validators.CreateLesson(), controllers.CreateLesson)

	adminGroup.Get("/:course_id/enrollments",
		middleware.RequireAction(middleware.ActionViewEnrollments),
		validators.CourseList(), validators.CourseID(), controllers.GetCourseEnrollments)
}

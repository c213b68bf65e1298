package courseRoutes

import (
	controllers "learnhub/controllers/course"
	"learnhub/middleware"
	validators "learnhub/validators/course"

	"github.com/gofiber/fiber/v2"
)

// SetupCourseRoutes sets up all student-facing course routes
func SetupCourseRoutes(app *fiber.App) {
	courseGroup := app.Group("/course")

	// Catalog
	courseGroup.Get("/list", middleware.JWTMiddleware, validators.CourseList(), controllers.GetAllCourses)
	courseGroup.Get("/:course_id", middleware.JWTMiddleware, validators.CourseID(), controllers.GetCourseDetails)

	// Enrollment
	courseGroup.Post("/:course_id/enroll", middleware.JWTMiddleware, validators.CourseID(), controllers.EnrollInCourse)

	// Progress tracking
	courseGroup.Post("/:course_id/module/:module_id/lesson/:lesson_id/complete",
		middleware.JWTMiddleware, validators.LessonComplete(), controllers.MarkLessonComplete)
	courseGroup.Post("/:course_id/module/:module_id/complete",
		middleware.JWTMiddleware, middleware.RequireAction(middleware.ActionOverrideProgress),
		validators.ModuleComplete(), controllers.MarkModuleComplete)
	courseGroup.Post("/:course_id/time",
		middleware.JWTMiddleware, validators.TimeSpent(), controllers.AddTimeSpent)
	courseGroup.Get("/:course_id/progress",
		middleware.JWTMiddleware, validators.CourseID(), controllers.GetUserProgress)

	// Assessment scores pushed by quiz/assignment grading
	courseGroup.Put("/:course_id/student/:student_id/scores",
		middleware.JWTMiddleware, middleware.RequireAction(middleware.ActionUpdateScores),
		validators.Scores(), controllers.UpdateStudentScores)

	// Certificates
	courseGroup.Post("/:course_id/certificate",
		middleware.JWTMiddleware, validators.CourseID(), controllers.IssueCertificate)

	userGroup := app.Group("/user")
	userGroup.Get("/enrollments", middleware.JWTMiddleware, controllers.GetUserEnrollmentsList)
	userGroup.Get("/progress", middleware.JWTMiddleware, controllers.GetAllUserProgress)
	userGroup.Get("/certificates", middleware.JWTMiddleware, controllers.GetUserCertificates)

	certGroup := app.Group("/certificate")
	certGroup.Get("/verify/:code", validators.VerifyCode(), controllers.VerifyCertificate)
	certGroup.Get("/:certificate_id", middleware.JWTMiddleware, validators.CertificateID(), controllers.GetCertificate)
	certGroup.Patch("/:certificate_id/revoke",
		middleware.JWTMiddleware, middleware.RequireAction(middleware.ActionRevokeCert),
		validators.RevokeCertificate(), controllers.RevokeCertificate)
}

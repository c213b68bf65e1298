package courseValidator

import (
	"learnhub/middleware"
	"learnhub/services/progress"

	"github.com/gofiber/fiber/v2"
)

// LessonComplete validates the lesson completion route params plus the
// optional time spent body.
func LessonComplete() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseIDParam(c, "course_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}
		moduleID, ok := parseIDParam(c, "module_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Module ID!", nil)
		}
		lessonID, ok := parseIDParam(c, "lesson_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Lesson ID!", nil)
		}

		reqData := new(struct {
			TimeSpentMinutes int `json:"time_spent_minutes"`
		})
		// Body is optional; a missing or empty body means no time recorded.
		_ = c.BodyParser(reqData)

		if reqData.TimeSpentMinutes < 0 {
			return middleware.ValidationErrorResponse(c, map[string]string{
				"time_spent_minutes": "Time spent cannot be negative!",
			})
		}

		c.Locals("courseID", courseID)
		c.Locals("moduleID", moduleID)
		c.Locals("lessonID", lessonID)
		c.Locals("timeSpentMinutes", reqData.TimeSpentMinutes)
		return c.Next()
	}
}

// ModuleComplete validates the module override route params plus the
// optional student target in the body.
func ModuleComplete() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseIDParam(c, "course_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}
		moduleID, ok := parseIDParam(c, "module_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Module ID!", nil)
		}

		reqData := new(struct {
			StudentID *int `json:"student_id"`
		})
		_ = c.BodyParser(reqData)

		if reqData.StudentID != nil {
			if *reqData.StudentID <= 0 {
				return middleware.ValidationErrorResponse(c, map[string]string{
					"student_id": "Invalid Student ID!",
				})
			}
			c.Locals("studentID", *reqData.StudentID)
		}

		c.Locals("courseID", courseID)
		c.Locals("moduleID", moduleID)
		return c.Next()
	}
}

// TimeSpent validates the standalone time tracking body.
func TimeSpent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseIDParam(c, "course_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}

		reqData := new(struct {
			ModuleID *uint `json:"module_id"`
			Minutes  int   `json:"minutes" validate:"required,gt=0"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, map[string]string{
				"minutes": "Minutes must be greater than 0!",
			})
		}

		c.Locals("courseID", courseID)
		c.Locals("validatedTimeSpent", reqData)
		return c.Next()
	}
}

// Scores validates the assessment score update for a student.
func Scores() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseIDParam(c, "course_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}
		studentID, ok := parseIDParam(c, "student_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Student ID!", nil)
		}

		reqData := new(progress.ScoreUpdate)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		errors := make(map[string]string)

		checkCounter := func(field string, v *int) {
			if v != nil && *v < 0 {
				errors[field] = "Value cannot be negative!"
			}
		}
		checkScore := func(field string, v *float64) {
			if v != nil && (*v < 0 || *v > 100) {
				errors[field] = "Score must be between 0 and 100!"
			}
		}

		checkCounter("total_assignments", reqData.TotalAssignments)
		checkCounter("completed_assignments", reqData.CompletedAssignments)
		checkCounter("total_quizzes", reqData.TotalQuizzes)
		checkCounter("completed_quizzes", reqData.CompletedQuizzes)
		checkScore("avg_quiz_score", reqData.AvgQuizScore)
		checkScore("avg_assignment_score", reqData.AvgAssignmentScore)

		if len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}

		c.Locals("courseID", courseID)
		c.Locals("studentID", studentID)
		c.Locals("validatedScores", reqData)
		return c.Next()
	}
}

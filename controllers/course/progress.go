package controllers

import (
	"learnhub/database"
	"learnhub/middleware"
	"learnhub/models"
	"learnhub/services/progress"

	"github.com/gofiber/fiber/v2"
)

// MarkLessonComplete records a completed lesson and returns the updated
// progress snapshot. Certificate issuance, when completion is reached, is
// best effort; clients re-fetch progress to observe the linkage.
func MarkLessonComplete(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", userID, false).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "User not found!", nil)
	}

	courseID := c.Locals("courseID").(int)
	moduleID := c.Locals("moduleID").(int)
	lessonID := c.Locals("lessonID").(int)
	timeSpent, _ := c.Locals("timeSpentMinutes").(int)

	enrollment, err := progressSvc.MarkLessonComplete(c.Context(), userID, uint(courseID), uint(moduleID), uint(lessonID), timeSpent)
	if err != nil {
		return middleware.AppErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Lesson marked as completed successfully!", enrollment)
}

// MarkModuleComplete force-completes a module for a student. Instructor
// and admin only; the policy gate runs before this handler.
func MarkModuleComplete(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	courseID := c.Locals("courseID").(int)
	moduleID := c.Locals("moduleID").(int)

	// The override targets another student's record when student_id is
	// supplied; instructors use this to unblock stuck enrollments.
	targetID := userID
	if sid, ok := c.Locals("studentID").(int); ok && sid > 0 {
		targetID = uint(sid)
	}

	enrollment, err := progressSvc.MarkModuleComplete(c.Context(), targetID, uint(courseID), uint(moduleID))
	if err != nil {
		return middleware.AppErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Module marked as completed successfully!", enrollment)
}

// AddTimeSpent records study time against the enrollment and optionally
// one module.
func AddTimeSpent(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", userID, false).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "User not found!", nil)
	}

	courseID := c.Locals("courseID").(int)
	reqData, ok := c.Locals("validatedTimeSpent").(*struct {
		ModuleID *uint `json:"module_id"`
		Minutes  int   `json:"minutes" validate:"required,gt=0"`
	})
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	var moduleID uint
	if reqData.ModuleID != nil {
		moduleID = *reqData.ModuleID
	}

	enrollment, err := progressSvc.AddTimeSpent(c.Context(), userID, uint(courseID), moduleID, reqData.Minutes)
	if err != nil {
		return middleware.AppErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Time recorded successfully!", enrollment)
}

// UpdateStudentScores applies assessment counters from the quiz and
// assignment subsystems. Instructor and admin only.
func UpdateStudentScores(c *fiber.Ctx) error {
	_, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	courseID := c.Locals("courseID").(int)
	studentID := c.Locals("studentID").(int)

	upd, ok := c.Locals("validatedScores").(*progress.ScoreUpdate)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	enrollment, err := progressSvc.UpdateScores(c.Context(), uint(studentID), uint(courseID), *upd)
	if err != nil {
		return middleware.AppErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Scores updated successfully!", enrollment)
}

// GetUserProgress gets the user's progress in a course
func GetUserProgress(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	courseID := c.Locals("courseID").(int)

	enrollment, err := progressSvc.GetProgress(c.Context(), userID, uint(courseID))
	if err != nil {
		return middleware.AppErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress fetched successfully!", enrollment)
}

// GetAllUserProgress gets progress snapshots across all the user's courses
func GetAllUserProgress(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	enrollments, err := progressSvc.GetAllProgress(c.Context(), userID)
	if err != nil {
		return middleware.AppErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress fetched successfully!", fiber.Map{
		"enrollments": enrollments,
		"total":       len(enrollments),
	})
}

package controllers

import (
	"learnhub/database"
	"learnhub/middleware"
	"learnhub/models"
	courseModels "learnhub/models/course"

	"github.com/gofiber/fiber/v2"
)

// canManageCourse reports whether the user may author content on the course.
// Admins manage everything, instructors only their own courses.
func canManageCourse(user *models.User, course *courseModels.Course) bool {
	if user.Role == models.RoleAdmin {
		return true
	}
	return user.Role == models.RoleInstructor && course.InstructorID == user.ID
}

// CreateCourse creates a new course in DRAFT status
func CreateCourse(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", userID, false).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "User not found!", nil)
	}

	reqData, ok := c.Locals("validatedCourse").(*struct {
		Title        string `json:"title" validate:"required,min=3,max=200"`
		Description  string `json:"description" validate:"omitempty,max=2000"`
		Author       string `json:"author" validate:"omitempty,max=100"`
		Duration     int64  `json:"duration" validate:"omitempty,gte=0"`
		ThumbnailURL string `json:"thumbnail_url" validate:"omitempty,url"`
	})
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	author := reqData.Author
	if author == "" {
		author = user.Name
	}

	course := courseModels.Course{
		Title:        reqData.Title,
		Description:  reqData.Description,
		InstructorID: user.ID,
		Author:       author,
		Duration:     reqData.Duration,
		ThumbnailURL: reqData.ThumbnailURL,
		Status:       courseModels.StatusDraft,
		IsPublished:  false,
	}

	if err := database.Database.Db.Create(&course).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to create course!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Course created successfully!", course)
}

// UpdateCourse updates an existing course
func UpdateCourse(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", userID, false).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "User not found!", nil)
	}

	courseID := c.Locals("courseID").(int)

	var course courseModels.Course
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", courseID, false).First(&course).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Course not found!", nil)
	}

	if !canManageCourse(&user, &course) {
		return middleware.JsonResponse(c, fiber.StatusForbidden, false, "Access denied! You do not manage this course.", nil)
	}

	reqData, ok := c.Locals("validatedCourseUpdate").(*struct {
		Title        string `json:"title" validate:"omitempty,min=3,max=200"`
		Description  string `json:"description" validate:"omitempty,max=2000"`
		Author       string `json:"author" validate:"omitempty,max=100"`
		Duration     int64  `json:"duration" validate:"omitempty,gte=0"`
		ThumbnailURL string `json:"thumbnail_url" validate:"omitempty,url"`
		Status       string `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE INACTIVE"`
	})
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	// Update only provided fields
	if reqData.Title != "" {
		course.Title = reqData.Title
	}
	if reqData.Description != "" {
		course.Description = reqData.Description
	}
	if reqData.Author != "" {
		course.Author = reqData.Author
	}
	if reqData.Duration > 0 {
		course.Duration = reqData.Duration
	}
	if reqData.ThumbnailURL != "" {
		course.ThumbnailURL = reqData.ThumbnailURL
	}
	if reqData.Status != "" {
		course.Status = reqData.Status
	}

	if err := database.Database.Db.Save(&course).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to update course!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Course updated successfully!", course)
}

// PublishCourse publishes or unpublishes a course
func PublishCourse(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", userID, false).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "User not found!", nil)
	}

	courseID := c.Locals("courseID").(int)
	publishStatus := c.Locals("publishStatus").(bool)

	var course courseModels.Course
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", courseID, false).First(&course).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Course not found!", nil)
	}

	if !canManageCourse(&user, &course) {
		return middleware.JsonResponse(c, fiber.StatusForbidden, false, "Access denied! You do not manage this course.", nil)
	}

	course.IsPublished = publishStatus
	if publishStatus {
		course.Status = courseModels.StatusActive
	}

	if err := database.Database.Db.Save(&course).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to update course!", nil)
	}

	message := "Course unpublished successfully!"
	if publishStatus {
		message = "Course published successfully!"
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, message, course)
}

// CreateModule adds a module to a course
func CreateModule(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", userID, false).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "User not found!", nil)
	}

	courseID := c.Locals("courseID").(int)

	var course courseModels.Course
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", courseID, false).First(&course).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Course not found!", nil)
	}

	if !canManageCourse(&user, &course) {
		return middleware.JsonResponse(c, fiber.StatusForbidden, false, "Access denied! You do not manage this course.", nil)
	}

	reqData, ok := c.Locals("validatedModule").(*struct {
		Title       string `json:"title" validate:"required,min=2,max=200"`
		Description string `json:"description" validate:"omitempty,max=2000"`
		OrderIndex  int    `json:"order_index" validate:"omitempty,gte=0"`
	})
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	orderIndex := reqData.OrderIndex
	if orderIndex == 0 {
		var count int64
		database.Database.Db.Model(&courseModels.Module{}).
			Where("course_id = ? AND is_deleted = ?", courseID, false).Count(&count)
		orderIndex = int(count) + 1
	}

	module := courseModels.Module{
		CourseID:    uint(courseID),
		Title:       reqData.Title,
		Description: reqData.Description,
		OrderIndex:  orderIndex,
	}

	if err := database.Database.Db.Create(&module).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to create module!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Module created successfully!", module)
}

// CreateLesson adds a lesson to a module
func CreateLesson(c *fiber.Ctx) error {
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

	var course courseModels.Course
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", courseID, false).First(&course).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Course not found!", nil)
	}

	if !canManageCourse(&user, &course) {
		return middleware.JsonResponse(c, fiber.StatusForbidden, false, "Access denied! You do not manage this course.", nil)
	}

	var module courseModels.Module
	if err := database.Database.Db.Where("id = ? AND course_id = ? AND is_deleted = ?", moduleID, courseID, false).First(&module).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Module not found!", nil)
	}

	reqData, ok := c.Locals("validatedLesson").(*struct {
		Title           string `json:"title" validate:"required,min=2,max=200"`
		ContentType     string `json:"content_type" validate:"required,oneof=VIDEO ARTICLE QUIZ ASSIGNMENT"`
		ContentURL      string `json:"content_url" validate:"omitempty,url"`
		DurationMinutes int    `json:"duration_minutes" validate:"omitempty,gte=0"`
		OrderIndex      int    `json:"order_index" validate:"omitempty,gte=0"`
	})
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	orderIndex := reqData.OrderIndex
	if orderIndex == 0 {
		var count int64
		database.Database.Db.Model(&courseModels.Lesson{}).
			Where("module_id = ? AND is_deleted = ?", moduleID, false).Count(&count)
		orderIndex = int(count) + 1
	}

	lesson := courseModels.Lesson{
		ModuleID:        module.ID,
		CourseID:        uint(courseID),
		Title:           reqData.Title,
		ContentType:     reqData.ContentType,
		ContentURL:      reqData.ContentURL,
		DurationMinutes: reqData.DurationMinutes,
		OrderIndex:      orderIndex,
		IsPublished:     true,
	}

	if err := database.Database.Db.Create(&lesson).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to create lesson!", nil)
	}

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Lesson created successfully!", lesson)
}

// GetCourseEnrollments lists all enrollments for a course with their progress
func GetCourseEnrollments(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", userID, false).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "User not found!", nil)
	}

	courseID := c.Locals("courseID").(int)

	var course courseModels.Course
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", courseID, false).First(&course).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Course not found!", nil)
	}

	if !canManageCourse(&user, &course) {
		return middleware.JsonResponse(c, fiber.StatusForbidden, false, "Access denied! You do not manage this course.", nil)
	}

	reqData, ok := c.Locals("validatedList").(*struct {
		Page  *int `json:"page"`
		Limit *int `json:"limit"`
	})

	page := 1
	limit := 10
	if ok && reqData.Page != nil && *reqData.Page > 0 {
		page = *reqData.Page
	}
	if ok && reqData.Limit != nil && *reqData.Limit > 0 {
		limit = *reqData.Limit
	}
	offset := (page - 1) * limit

	var enrollments []courseModels.Enrollment
	var total int64

	db := database.Database.Db.Model(&courseModels.Enrollment{}).
		Where("course_id = ? AND is_deleted = ?", courseID, false)
	db.Count(&total)

	if err := db.Offset(offset).Limit(limit).Order("last_activity desc").Find(&enrollments).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to fetch enrollments!", nil)
	}

	type EnrollmentWithStudent struct {
		courseModels.Enrollment
		StudentName  string `json:"student_name"`
		StudentEmail string `json:"student_email"`
	}

	result := make([]EnrollmentWithStudent, len(enrollments))
	for i, enr := range enrollments {
		var student models.User
		database.Database.Db.Where("id = ?", enr.UserID).First(&student)
		result[i] = EnrollmentWithStudent{
			Enrollment:   enr,
			StudentName:  student.Name,
			StudentEmail: student.Email,
		}
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollments fetched successfully!", fiber.Map{
		"enrollments": result,
		"pagination": fiber.Map{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

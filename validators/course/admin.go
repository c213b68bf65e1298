package courseValidator

import (
	"learnhub/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// CreateCourse validates the course creation body.
func CreateCourse() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(struct {
			Title        string `json:"title" validate:"required,min=3,max=200"`
			Description  string `json:"description" validate:"omitempty,max=2000"`
			Author       string `json:"author" validate:"omitempty,max=100"`
			Duration     int64  `json:"duration" validate:"omitempty,gte=0"`
			ThumbnailURL string `json:"thumbnail_url" validate:"omitempty,url"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, fieldErrors(err))
		}

		c.Locals("validatedCourse", reqData)
		return c.Next()
	}
}

// UpdateCourse validates the partial course update body.
func UpdateCourse() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseIDParam(c, "course_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}

		reqData := new(struct {
			Title        string `json:"title" validate:"omitempty,min=3,max=200"`
			Description  string `json:"description" validate:"omitempty,max=2000"`
			Author       string `json:"author" validate:"omitempty,max=100"`
			Duration     int64  `json:"duration" validate:"omitempty,gte=0"`
			ThumbnailURL string `json:"thumbnail_url" validate:"omitempty,url"`
			Status       string `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE INACTIVE"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, fieldErrors(err))
		}

		c.Locals("courseID", courseID)
		c.Locals("validatedCourseUpdate", reqData)
		return c.Next()
	}
}

// CreateModule validates the module creation body.
func CreateModule() fiber.Handler {
	return func(c *fiber.Ctx) error {
		courseID, ok := parseIDParam(c, "course_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}

		reqData := new(struct {
			Title       string `json:"title" validate:"required,min=2,max=200"`
			Description string `json:"description" validate:"omitempty,max=2000"`
			OrderIndex  int    `json:"order_index" validate:"omitempty,gte=0"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, fieldErrors(err))
		}

		c.Locals("courseID", courseID)
		c.Locals("validatedModule", reqData)
		return c.Next()
	}
}

// CreateLesson validates the lesson creation body.
func CreateLesson() fiber.Handler {
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
			Title           string `json:"title" validate:"required,min=2,max=200"`
			ContentType     string `json:"content_type" validate:"required,oneof=VIDEO ARTICLE QUIZ ASSIGNMENT"`
			ContentURL      string `json:"content_url" validate:"omitempty,url"`
			DurationMinutes int    `json:"duration_minutes" validate:"omitempty,gte=0"`
			OrderIndex      int    `json:"order_index" validate:"omitempty,gte=0"`
		})

		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, fieldErrors(err))
		}

		c.Locals("courseID", courseID)
		c.Locals("moduleID", moduleID)
		c.Locals("validatedLesson", reqData)
		return c.Next()
	}
}

// fieldErrors flattens validator output into a field -> message map.
func fieldErrors(err error) map[string]string {
	errors := make(map[string]string)
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		errors["body"] = "Invalid request data!"
		return errors
	}
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			errors[fe.Field()] = fe.Field() + " is required!"
		case "oneof":
			errors[fe.Field()] = fe.Field() + " must be one of: " + fe.Param()
		case "url":
			errors[fe.Field()] = fe.Field() + " must be a valid URL!"
		default:
			errors[fe.Field()] = fe.Field() + " is invalid!"
		}
	}
	return errors
}

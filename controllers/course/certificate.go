package controllers

import (
	"learnhub/database"
	"learnhub/middleware"
	"learnhub/models"
	courseModels "learnhub/models/course"
	"learnhub/services/certificate"

	"github.com/gofiber/fiber/v2"
)

// GetUserCertificates gets all certificates for the current user
func GetUserCertificates(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", userID, false).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "User not found!", nil)
	}

	certificates, err := certSvc.ListForUser(c.Context(), userID)
	if err != nil {
		return middleware.AppErrorResponse(c, err)
	}

	type CertificateWithCourse struct {
		courseModels.Certificate
		CourseName string `json:"course_name"`
	}

	result := make([]CertificateWithCourse, len(certificates))
	for i, cert := range certificates {
		var course courseModels.Course
		database.Database.Db.Where("id = ?", cert.CourseID).First(&course)
		result[i] = CertificateWithCourse{
			Certificate: cert,
			CourseName:  course.Title,
		}
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificates fetched successfully!", fiber.Map{
		"certificates": result,
		"total":        len(result),
	})
}

// IssueCertificate issues a certificate for a completed course on demand,
// without waiting for the next progress update to trigger it.
func IssueCertificate(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	var user models.User
	if err := database.Database.Db.Where("id = ? AND is_deleted = ?", userID, false).First(&user).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "User not found!", nil)
	}

	courseID := c.Locals("courseID").(int)

	cert, err := certSvc.IssueManually(c.Context(), userID, uint(courseID))
	if err != nil {
		return middleware.AppErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Certificate issued successfully!", cert)
}

// GetCertificate returns one of the user's certificates and counts the view.
func GetCertificate(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	certID := c.Locals("certificateID").(int)

	var cert courseModels.Certificate
	if err := database.Database.Db.Where("id = ? AND user_id = ? AND is_deleted = ?", certID, userID, false).First(&cert).Error; err != nil {
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Certificate not found!", nil)
	}

	if err := certSvc.Track(c.Context(), cert.ID, certificate.MetricView); err == nil {
		cert.ViewCount++
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate fetched successfully!", cert)
}

// RevokeCertificate revokes an issued certificate. Admin only.
func RevokeCertificate(c *fiber.Ctx) error {
	_, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	certID := c.Locals("certificateID").(int)
	reqData, ok := c.Locals("validatedRevoke").(*struct {
		Reason string `json:"reason" validate:"required,min=3,max=500"`
	})
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request data!", nil)
	}

	cert, err := certSvc.Revoke(c.Context(), uint(certID), reqData.Reason)
	if err != nil {
		return middleware.AppErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate revoked successfully!", cert)
}

// VerifyCertificate resolves a public verification code. No auth; this
// endpoint backs the printed verification URL.
func VerifyCertificate(c *fiber.Ctx) error {
	code := c.Params("code")

	summary, err := certSvc.Verify(c.Context(), code)
	if err != nil {
		return middleware.AppErrorResponse(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate verified successfully!", summary)
}

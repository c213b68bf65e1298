package course

import (
	"time"

	"gorm.io/gorm"
)

// Certificate statuses. PENDING exists for compatibility with the admin
// request flow but issuance from the progress pipeline goes straight to
// ISSUED. EXPIRED is declared but no process sets it yet.
const (
	CertPending = "PENDING"
	CertIssued  = "ISSUED"
	CertRevoked = "REVOKED"
	CertExpired = "EXPIRED"
)

// Certificate represents an issued certificate for course completion.
// One row per (user, course). Performance fields are a snapshot taken at
// issuance time and are never re-derived from the enrollment afterwards.
type Certificate struct {
	gorm.Model
	UserID       uint `json:"user_id" gorm:"uniqueIndex:idx_certificate_user_course;not null"`
	CourseID     uint `json:"course_id" gorm:"uniqueIndex:idx_certificate_user_course;not null"`
	EnrollmentID uint `json:"enrollment_id" gorm:"index;not null"`

	CertificateID     string `json:"certificate_id" gorm:"uniqueIndex;not null"` // internal uuid
	CertificateNumber string `json:"certificate_number" gorm:"uniqueIndex"`      // CERT-YYYYMM-####
	VerificationCode  string `json:"verification_code" gorm:"uniqueIndex"`       // public, upper-case
	VerificationURL   string `json:"verification_url"`
	CertificateURL    string `json:"certificate_url"` // rendered artifact, best effort

	Status       string     `json:"status" gorm:"default:'PENDING'"` // PENDING, ISSUED, REVOKED, EXPIRED
	IssuedAt     *time.Time `json:"issued_at"`
	RevokedAt    *time.Time `json:"revoked_at"`
	RevokeReason string     `json:"revoke_reason"`

	// Issuance-time snapshot
	StudentName          string     `json:"student_name"`
	CourseTitle          string     `json:"course_title"`
	FinalScore           int        `json:"final_score"`
	GradeLetter          string     `json:"grade_letter"`
	OverallProgress      int        `json:"overall_progress"`
	CompletionPercentage int        `json:"completion_percentage"`
	AvgQuizScore         float64    `json:"avg_quiz_score"`
	AvgAssignmentScore   float64    `json:"avg_assignment_score"`
	TimeSpentMinutes     int        `json:"time_spent_minutes"`
	CompletionDate       *time.Time `json:"completion_date"`

	// Analytics counters, monotonically incremented
	ViewCount         int `json:"view_count" gorm:"default:0"`
	DownloadCount     int `json:"download_count" gorm:"default:0"`
	ShareCount        int `json:"share_count" gorm:"default:0"`
	VerificationCount int `json:"verification_count" gorm:"default:0"`

	Version   int  `json:"-" gorm:"default:0"`
	IsDeleted bool `gorm:"default:false"`
}

// PublicSummary is the shape returned by the public verification lookup.
type PublicSummary struct {
	CertificateNumber string     `json:"certificate_number"`
	StudentName       string     `json:"student_name"`
	CourseTitle       string     `json:"course_title"`
	GradeLetter       string     `json:"grade_letter"`
	FinalScore        int        `json:"final_score"`
	IssuedAt          *time.Time `json:"issued_at"`
	CompletionDate    *time.Time `json:"completion_date"`
}

// Summary converts the certificate to its public verification shape.
func (c *Certificate) Summary() PublicSummary {
	return PublicSummary{
		CertificateNumber: c.CertificateNumber,
		StudentName:       c.StudentName,
		CourseTitle:       c.CourseTitle,
		GradeLetter:       c.GradeLetter,
		FinalScore:        c.FinalScore,
		IssuedAt:          c.IssuedAt,
		CompletionDate:    c.CompletionDate,
	}
}

package certificate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"learnhub/config"
	"learnhub/models"
	courseModels "learnhub/models/course"
	"learnhub/pkg/apperr"
	"learnhub/pkg/keymutex"
	"learnhub/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Identity generation retries before giving up on a unique collision.
const maxIdentityAttempts = 5

// Analytics metrics
const (
	MetricView     = "view"
	MetricDownload = "download"
	MetricShare    = "share"
)

// Directory provides the course and student lookups needed to build the
// denormalized snapshot on a certificate.
type Directory interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
	GetCourse(ctx context.Context, courseID uint) (*courseModels.Course, error)
}

// Mailer delivers the certificate notification. Nil disables mailing.
type Mailer func(email, userName, courseTitle, certificateNumber string) error

// Service owns certificate issuance, revocation and verification. It
// subscribes to the progress service's completion notifications; the
// shared key mutex keeps manual issuance serialized with the progress
// pipeline for the same (user, course) pair.
type Service struct {
	db       *gorm.DB
	dir      Directory
	locks    *keymutex.KeyMutex
	renderer *Renderer
	mailer   Mailer
	log      zerolog.Logger
}

func NewService(db *gorm.DB, dir Directory, locks *keymutex.KeyMutex) *Service {
	return &Service{
		db:    db,
		dir:   dir,
		locks: locks,
		log:   logger.Get().With().Str("service", "certificate").Logger(),
	}
}

// WithRenderer attaches the external renderer client.
func (s *Service) WithRenderer(r *Renderer) *Service {
	s.renderer = r
	return s
}

// WithMailer attaches the notification mailer.
func (s *Service) WithMailer(m Mailer) *Service {
	s.mailer = m
	return s
}

// CompletionReached implements progress.CompletionListener. It runs under
// the caller's per-enrollment lock, so it must not take the lock itself.
func (s *Service) CompletionReached(ctx context.Context, enr *courseModels.Enrollment) error {
	if enr.CertificateGenerated || enr.CompletionPercentage < 100 {
		return nil
	}
	_, err := s.issue(ctx, enr)
	return err
}

// IssueManually issues a certificate outside the automatic trigger, e.g.
// from the admin surface. Unlike the trigger, lookup failures surface to
// the caller.
func (s *Service) IssueManually(ctx context.Context, userID, courseID uint) (*courseModels.Certificate, error) {
	key := fmt.Sprintf("enrollment:%d:%d", userID, courseID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var enr courseModels.Enrollment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND is_deleted = ?", userID, courseID, false).
		Preload("ModuleProgress").
		First(&enr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not enrolled in this course")
	}
	if err != nil {
		return nil, apperr.Upstream("failed to load enrollment", err)
	}

	if enr.CertificateGenerated {
		return nil, apperr.Conflict("certificate already issued for this course")
	}
	if enr.CompletionPercentage < 100 {
		return nil, apperr.Precondition("course is not completed yet")
	}
	return s.issue(ctx, &enr)
}

// issue constructs and persists the certificate in issued status, then
// back-links it on the enrollment. The certificate insert comes first;
// if the back-link write fails the reconciliation sweep repairs it, and
// the boolean guard on the enrollment is never set before the insert
// succeeded. Caller holds the per-enrollment lock.
func (s *Service) issue(ctx context.Context, enr *courseModels.Enrollment) (*courseModels.Certificate, error) {
	now := time.Now().UTC()
	if enr.CompletedAt == nil {
		t := now
		enr.CompletedAt = &t
	}

	user, err := s.dir.GetUser(ctx, enr.UserID)
	if err != nil {
		return nil, apperr.Upstream("student lookup failed during issuance", err)
	}
	crs, err := s.dir.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return nil, apperr.Upstream("course lookup failed during issuance", err)
	}

	issuedAt := now
	cert := &courseModels.Certificate{
		UserID:       enr.UserID,
		CourseID:     enr.CourseID,
		EnrollmentID: enr.ID,

		CertificateID: uuid.NewString(),
		Status:        courseModels.CertIssued,
		IssuedAt:      &issuedAt,

		StudentName:          user.Name,
		CourseTitle:          crs.Title,
		FinalScore:           enr.FinalScore,
		GradeLetter:          GradeLetter(enr.FinalScore),
		OverallProgress:      enr.OverallProgress,
		CompletionPercentage: enr.CompletionPercentage,
		AvgQuizScore:         enr.AvgQuizScore,
		AvgAssignmentScore:   enr.AvgAssignmentScore,
		TimeSpentMinutes:     enr.TotalTimeSpent,
		CompletionDate:       enr.CompletedAt,
	}

	persisted, err := s.insertWithIdentity(ctx, cert)
	if err != nil {
		return nil, err
	}

	s.backlink(ctx, enr, persisted)

	if persisted.CertificateURL == "" && s.renderer != nil {
		if url, rerr := s.renderer.Render(ctx, persisted); rerr != nil {
			s.log.Warn().Err(rerr).Str("certificate", persisted.CertificateNumber).Msg("certificate rendering failed")
		} else if url != "" {
			persisted.CertificateURL = url
			s.db.WithContext(ctx).Model(persisted).Update("certificate_url", url)
		}
	}

	if s.mailer != nil {
		go func(email, name, title, number string) {
			if merr := s.mailer(email, name, title, number); merr != nil {
				s.log.Warn().Err(merr).Str("certificate", number).Msg("certificate email failed")
			}
		}(user.Email, user.Name, crs.Title, persisted.CertificateNumber)
	}

	s.log.Info().
		Uint("user_id", enr.UserID).
		Uint("course_id", enr.CourseID).
		Str("certificate", persisted.CertificateNumber).
		Msg("certificate issued")
	return persisted, nil
}

// insertWithIdentity assigns identity fields and inserts, regenerating on
// identity collisions. A duplicate on the (user, course) pair means a
// concurrent writer already issued; that certificate is fetched and used.
func (s *Service) insertWithIdentity(ctx context.Context, cert *courseModels.Certificate) (*courseModels.Certificate, error) {
	for attempt := 0; attempt < maxIdentityAttempts; attempt++ {
		now := time.Now().UTC()
		cert.CertificateNumber = GenerateCertificateNumber(now)
		cert.VerificationCode = GenerateVerificationCode(now)
		cert.VerificationURL = verificationURL(cert.VerificationCode)

		err := s.db.WithContext(ctx).Create(cert).Error
		if err == nil {
			return cert, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Upstream("failed to persist certificate", err)
		}

		// Duplicate key: either another writer issued for this pair, or
		// the random identity collided. Check the pair first.
		var existing courseModels.Certificate
		ferr := s.db.WithContext(ctx).
			Where("user_id = ? AND course_id = ? AND is_deleted = ?", cert.UserID, cert.CourseID, false).
			First(&existing).Error
		if ferr == nil {
			return &existing, nil
		}
		if !errors.Is(ferr, gorm.ErrRecordNotFound) {
			return nil, apperr.Upstream("failed to check existing certificate", ferr)
		}
		// Identity collision; clear the assigned ID so GORM re-inserts.
		cert.ID = 0
	}
	return nil, apperr.Conflict("could not allocate a unique certificate identity")
}

func verificationURL(code string) string {
	base := "http://localhost:3000/certificate/verify"
	if config.AppConfig != nil && config.AppConfig.CertificateBaseURL != "" {
		base = config.AppConfig.CertificateBaseURL
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), code)
}

// backlink sets the guard and the certificate reference on the
// enrollment. Failure here leaves an issued certificate without a
// back-link; it is logged and repaired by ReconcileLinks.
func (s *Service) backlink(ctx context.Context, enr *courseModels.Enrollment, cert *courseModels.Certificate) {
	certID := cert.ID
	res := s.db.WithContext(ctx).Model(&courseModels.Enrollment{}).
		Where("id = ?", enr.ID).
		Updates(map[string]interface{}{
			"certificate_generated": true,
			"certificate_id":        certID,
			"completed_at":          enr.CompletedAt,
			"version":               gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		s.log.Error().Err(res.Error).
			Uint("enrollment_id", enr.ID).
			Str("certificate", cert.CertificateNumber).
			Msg("certificate back-link failed, awaiting reconciliation")
		return
	}
	enr.CertificateGenerated = true
	enr.CertificateID = &certID
	enr.Version++
}

// Revoke transitions an issued certificate to revoked. Irreversible.
func (s *Service) Revoke(ctx context.Context, certDBID uint, reason string) (*courseModels.Certificate, error) {
	var cert courseModels.Certificate
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", certDBID, false).
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("certificate not found")
	}
	if err != nil {
		return nil, apperr.Upstream("failed to load certificate", err)
	}
	if cert.Status != courseModels.CertIssued {
		return nil, apperr.Conflict("only issued certificates can be revoked")
	}

	now := time.Now().UTC()
	cert.Status = courseModels.CertRevoked
	cert.RevokedAt = &now
	cert.RevokeReason = reason
	res := s.db.WithContext(ctx).Model(&cert).
		Updates(map[string]interface{}{
			"status":        cert.Status,
			"revoked_at":    cert.RevokedAt,
			"revoke_reason": cert.RevokeReason,
			"version":       gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, apperr.Upstream("failed to revoke certificate", res.Error)
	}

	s.log.Info().Str("certificate", cert.CertificateNumber).Str("reason", reason).Msg("certificate revoked")
	return &cert, nil
}

// Verify resolves a public verification code to the certificate summary.
// Only issued certificates verify; revoked or unknown codes are a plain
// NotFound. Each successful verification bumps the counter.
func (s *Service) Verify(ctx context.Context, code string) (*courseModels.PublicSummary, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperr.InvalidArgument("verification code is required")
	}

	var cert courseModels.Certificate
	err := s.db.WithContext(ctx).
		Where("verification_code = ? AND is_deleted = ?", code, false).
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("certificate not found")
	}
	if err != nil {
		return nil, apperr.Upstream("failed to load certificate", err)
	}
	if cert.Status != courseModels.CertIssued {
		return nil, apperr.NotFound("certificate not found")
	}

	// The counter bump is a side effect of verification, separate from
	// the lookup result; a failed bump does not fail the verification.
	if err := s.db.WithContext(ctx).Model(&cert).
		UpdateColumn("verification_count", gorm.Expr("verification_count + 1")).Error; err != nil {
		s.log.Warn().Err(err).Str("certificate", cert.CertificateNumber).Msg("verification counter bump failed")
	}

	summary := cert.Summary()
	return &summary, nil
}

// ListForUser returns all certificates belonging to the user.
func (s *Service) ListForUser(ctx context.Context, userID uint) ([]courseModels.Certificate, error) {
	var certs []courseModels.Certificate
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Order("issued_at desc").
		Find(&certs).Error
	if err != nil {
		return nil, apperr.Upstream("failed to fetch certificates", err)
	}
	return certs, nil
}

// Track increments one of the analytics counters.
func (s *Service) Track(ctx context.Context, certDBID uint, metric string) error {
	var column string
	switch metric {
	case MetricView:
		column = "view_count"
	case MetricDownload:
		column = "download_count"
	case MetricShare:
		column = "share_count"
	default:
		return apperr.InvalidArgument("unknown analytics metric")
	}
	res := s.db.WithContext(ctx).Model(&courseModels.Certificate{}).
		Where("id = ? AND is_deleted = ?", certDBID, false).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return apperr.Upstream("failed to track certificate metric", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("certificate not found")
	}
	return nil
}

// ReconcileLinks repairs enrollments whose certificate insert succeeded
// but whose back-link write was lost. Runs from the scheduler.
func (s *Service) ReconcileLinks(ctx context.Context) (int, error) {
	var orphans []courseModels.Certificate
	err := s.db.WithContext(ctx).
		Joins("JOIN enrollments ON enrollments.id = certificates.enrollment_id AND enrollments.certificate_generated = ?", false).
		Where("certificates.status = ? AND certificates.is_deleted = ?", courseModels.CertIssued, false).
		Find(&orphans).Error
	if err != nil {
		return 0, apperr.Upstream("failed to scan for unlinked certificates", err)
	}

	repaired := 0
	for i := range orphans {
		cert := &orphans[i]
		key := fmt.Sprintf("enrollment:%d:%d", cert.UserID, cert.CourseID)
		s.locks.Lock(key)
		certID := cert.ID
		// The lost write also carried the completion timestamp; restore
		// it from the certificate snapshot without clobbering a value
		// another writer set in the meantime.
		completedAt := cert.CompletionDate
		if completedAt == nil {
			completedAt = cert.IssuedAt
		}
		res := s.db.WithContext(ctx).Model(&courseModels.Enrollment{}).
			Where("id = ? AND certificate_generated = ?", cert.EnrollmentID, false).
			Updates(map[string]interface{}{
				"certificate_generated": true,
				"certificate_id":        certID,
				"completed_at":          gorm.Expr("COALESCE(completed_at, ?)", completedAt),
				"version":               gorm.Expr("version + 1"),
			})
		s.locks.Unlock(key)
		if res.Error != nil {
			s.log.Error().Err(res.Error).Uint("enrollment_id", cert.EnrollmentID).Msg("back-link repair failed")
			continue
		}
		if res.RowsAffected > 0 {
			repaired++
			s.log.Info().
				Uint("enrollment_id", cert.EnrollmentID).
				Str("certificate", cert.CertificateNumber).
				Msg("repaired certificate back-link")
		}
	}
	return repaired, nil
}

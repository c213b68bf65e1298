package certificate

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"learnhub/models"
	courseModels "learnhub/models/course"
	"learnhub/pkg/apperr"
	"learnhub/pkg/keymutex"
	"learnhub/services/catalog"
	"learnhub/services/progress"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func openTestDb(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&courseModels.Course{},
		&courseModels.Module{},
		&courseModels.Lesson{},
		&courseModels.Enrollment{},
		&courseModels.ModuleProgress{},
		&courseModels.Certificate{},
	))
	return db
}

// seedCompleted creates a student, a course, and a completed enrollment
// ready for issuance.
func seedCompleted(t *testing.T, db *gorm.DB) (models.User, courseModels.Course, courseModels.Enrollment) {
	t.Helper()

	user := models.User{Name: "Ada Student", Email: "ada@learnhub.local", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)

	course := courseModels.Course{Title: "Distributed Systems", Status: courseModels.StatusActive, IsPublished: true}
	require.NoError(t, db.Create(&course).Error)

	enr := courseModels.Enrollment{
		UserID:               user.ID,
		CourseID:             course.ID,
		Status:               courseModels.EnrollmentCompleted,
		OverallProgress:      100,
		CompletionPercentage: 100,
		FinalScore:           92,
		TotalTimeSpent:       340,
	}
	require.NoError(t, db.Create(&enr).Error)
	return user, course, enr
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDb(t)
	return NewService(db, catalog.NewService(db), keymutex.New()), db
}

func TestCompletionReachedIssues(t *testing.T) {
	svc, db := newTestService(t)
	user, course, enr := seedCompleted(t, db)
	ctx := context.Background()

	require.NoError(t, svc.CompletionReached(ctx, &enr))

	var cert courseModels.Certificate
	require.NoError(t, db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&cert).Error)
	assert.Equal(t, courseModels.CertIssued, cert.Status)
	assert.NotNil(t, cert.IssuedAt)
	assert.Equal(t, "Ada Student", cert.StudentName)
	assert.Equal(t, "Distributed Systems", cert.CourseTitle)
	assert.Equal(t, 92, cert.FinalScore)
	assert.Equal(t, "A", cert.GradeLetter)
	assert.Equal(t, 340, cert.TimeSpentMinutes)
	assert.NotEmpty(t, cert.CertificateNumber)
	assert.NotEmpty(t, cert.VerificationCode)
	assert.Contains(t, cert.VerificationURL, cert.VerificationCode)

	// Back-link on the enrollment.
	var row courseModels.Enrollment
	require.NoError(t, db.Where("id = ?", enr.ID).First(&row).Error)
	assert.True(t, row.CertificateGenerated)
	require.NotNil(t, row.CertificateID)
	assert.Equal(t, cert.ID, *row.CertificateID)
	assert.NotNil(t, row.CompletedAt)
}

func TestCompletionReachedGuarded(t *testing.T) {
	svc, db := newTestService(t)
	_, _, enr := seedCompleted(t, db)
	ctx := context.Background()

	require.NoError(t, svc.CompletionReached(ctx, &enr))
	// enr now carries the guard; a second notification is a no-op.
	require.NoError(t, svc.CompletionReached(ctx, &enr))

	var count int64
	db.Model(&courseModels.Certificate{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCompletionReachedIgnoresIncomplete(t *testing.T) {
	svc, db := newTestService(t)
	_, _, enr := seedCompleted(t, db)
	enr.CompletionPercentage = 80
	ctx := context.Background()

	require.NoError(t, svc.CompletionReached(ctx, &enr))

	var count int64
	db.Model(&courseModels.Certificate{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestIssueManually(t *testing.T) {
	svc, db := newTestService(t)
	user, course, _ := seedCompleted(t, db)
	ctx := context.Background()

	cert, err := svc.IssueManually(ctx, user.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, courseModels.CertIssued, cert.Status)

	// Second issuance conflicts on the guard.
	_, err = svc.IssueManually(ctx, user.ID, course.ID)
	assert.True(t, apperr.IsConflict(err))
}

func TestIssueManuallyPreconditions(t *testing.T) {
	svc, db := newTestService(t)
	user, course, enr := seedCompleted(t, db)
	ctx := context.Background()

	_, err := svc.IssueManually(ctx, user.ID+100, course.ID)
	assert.True(t, apperr.IsNotFound(err))

	require.NoError(t, db.Model(&courseModels.Enrollment{}).
		Where("id = ?", enr.ID).
		Update("completion_percentage", 60).Error)
	_, err = svc.IssueManually(ctx, user.ID, course.ID)
	assert.True(t, apperr.IsPrecondition(err))
}

func TestIssueManuallyConcurrent(t *testing.T) {
	svc, db := newTestService(t)
	user, course, _ := seedCompleted(t, db)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IssueManually(ctx, user.ID, course.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	conflicted := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case apperr.IsConflict(err):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicted)

	var count int64
	db.Model(&courseModels.Certificate{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

// Exercises the automatic trigger end to end: many racing progress
// updates all land on the final lesson and exactly one certificate
// comes out.
func TestConcurrentCompletionIssuesOnce(t *testing.T) {
	db := openTestDb(t)
	locks := keymutex.New()
	certSvc := NewService(db, catalog.NewService(db), locks)
	progSvc := progress.NewService(db, catalog.NewService(db), locks)
	progSvc.Subscribe(certSvc)
	ctx := context.Background()

	user := models.User{Name: "Ada Student", Email: "ada@learnhub.local", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)
	course := courseModels.Course{Title: "Distributed Systems", Status: courseModels.StatusActive, IsPublished: true}
	require.NoError(t, db.Create(&course).Error)
	module := courseModels.Module{CourseID: course.ID, Title: "Module 1", OrderIndex: 1}
	require.NoError(t, db.Create(&module).Error)
	lesson := courseModels.Lesson{ModuleID: module.ID, CourseID: course.ID, Title: "Lesson 1.1", ContentType: "VIDEO", OrderIndex: 1, IsPublished: true}
	require.NoError(t, db.Create(&lesson).Error)

	_, err := progSvc.Enroll(ctx, user.ID, course.ID)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := progSvc.MarkLessonComplete(ctx, user.ID, course.ID, module.ID, lesson.ID, 0)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	for err := range results {
		assert.NoError(t, err)
	}

	var count int64
	db.Model(&courseModels.Certificate{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var enr courseModels.Enrollment
	require.NoError(t, db.Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&enr).Error)
	assert.True(t, enr.CertificateGenerated)
	require.NotNil(t, enr.CertificateID)
	assert.Equal(t, courseModels.EnrollmentCompleted, enr.Status)
}

func TestVerify(t *testing.T) {
	svc, db := newTestService(t)
	user, course, _ := seedCompleted(t, db)
	ctx := context.Background()

	cert, err := svc.IssueManually(ctx, user.ID, course.ID)
	require.NoError(t, err)

	summary, err := svc.Verify(ctx, cert.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, cert.CertificateNumber, summary.CertificateNumber)
	assert.Equal(t, "Ada Student", summary.StudentName)
	assert.Equal(t, "A", summary.GradeLetter)

	// Case-insensitive lookup.
	_, err = svc.Verify(ctx, "  "+cert.VerificationCode+" ")
	assert.NoError(t, err)

	var row courseModels.Certificate
	require.NoError(t, db.Where("id = ?", cert.ID).First(&row).Error)
	assert.Equal(t, 2, row.VerificationCount)

	_, err = svc.Verify(ctx, "NOPE123")
	assert.True(t, apperr.IsNotFound(err))

	_, err = svc.Verify(ctx, "   ")
	assert.True(t, apperr.IsInvalidArgument(err))
}

func TestVerifyRevokedLooksAbsent(t *testing.T) {
	svc, db := newTestService(t)
	user, course, _ := seedCompleted(t, db)
	ctx := context.Background()

	cert, err := svc.IssueManually(ctx, user.ID, course.ID)
	require.NoError(t, err)

	_, err = svc.Revoke(ctx, cert.ID, "academic dishonesty")
	require.NoError(t, err)

	// Revoked certificates do not reveal their existence.
	_, err = svc.Verify(ctx, cert.VerificationCode)
	assert.True(t, apperr.IsNotFound(err))

	var row courseModels.Certificate
	require.NoError(t, db.Where("id = ?", cert.ID).First(&row).Error)
	assert.Equal(t, 0, row.VerificationCount)
}

func TestRevoke(t *testing.T) {
	svc, db := newTestService(t)
	user, course, _ := seedCompleted(t, db)
	ctx := context.Background()

	cert, err := svc.IssueManually(ctx, user.ID, course.ID)
	require.NoError(t, err)

	revoked, err := svc.Revoke(ctx, cert.ID, "issued in error")
	require.NoError(t, err)
	assert.Equal(t, courseModels.CertRevoked, revoked.Status)
	assert.NotNil(t, revoked.RevokedAt)
	assert.Equal(t, "issued in error", revoked.RevokeReason)

	// Revocation is terminal.
	_, err = svc.Revoke(ctx, cert.ID, "again")
	assert.True(t, apperr.IsConflict(err))

	_, err = svc.Revoke(ctx, cert.ID+999, "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestTrack(t *testing.T) {
	svc, db := newTestService(t)
	user, course, _ := seedCompleted(t, db)
	ctx := context.Background()

	cert, err := svc.IssueManually(ctx, user.ID, course.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Track(ctx, cert.ID, MetricView))
	require.NoError(t, svc.Track(ctx, cert.ID, MetricView))
	require.NoError(t, svc.Track(ctx, cert.ID, MetricDownload))
	require.NoError(t, svc.Track(ctx, cert.ID, MetricShare))

	var row courseModels.Certificate
	require.NoError(t, db.Where("id = ?", cert.ID).First(&row).Error)
	assert.Equal(t, 2, row.ViewCount)
	assert.Equal(t, 1, row.DownloadCount)
	assert.Equal(t, 1, row.ShareCount)

	assert.True(t, apperr.IsInvalidArgument(svc.Track(ctx, cert.ID, "clicks")))
	assert.True(t, apperr.IsNotFound(svc.Track(ctx, cert.ID+999, MetricView)))
}

func TestListForUser(t *testing.T) {
	svc, db := newTestService(t)
	user, course, _ := seedCompleted(t, db)
	ctx := context.Background()

	_, err := svc.IssueManually(ctx, user.ID, course.ID)
	require.NoError(t, err)

	certs, err := svc.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, certs, 1)

	certs, err = svc.ListForUser(ctx, user.ID+50)
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestReconcileLinks(t *testing.T) {
	svc, db := newTestService(t)
	user, course, enr := seedCompleted(t, db)
	ctx := context.Background()

	cert, err := svc.IssueManually(ctx, user.ID, course.ID)
	require.NoError(t, err)

	// Simulate a lost back-link write.
	require.NoError(t, db.Model(&courseModels.Enrollment{}).
		Where("id = ?", enr.ID).
		Updates(map[string]interface{}{
			"certificate_generated": false,
			"certificate_id":        nil,
			"completed_at":          nil,
		}).Error)

	repaired, err := svc.ReconcileLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	var row courseModels.Enrollment
	require.NoError(t, db.Where("id = ?", enr.ID).First(&row).Error)
	assert.True(t, row.CertificateGenerated)
	require.NotNil(t, row.CertificateID)
	assert.Equal(t, cert.ID, *row.CertificateID)
	// The completion timestamp travels with the repair.
	require.NotNil(t, row.CompletedAt)
	require.NotNil(t, cert.CompletionDate)
	assert.Equal(t, cert.CompletionDate.Unix(), row.CompletedAt.Unix())

	// Nothing left to repair.
	repaired, err = svc.ReconcileLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired)
}

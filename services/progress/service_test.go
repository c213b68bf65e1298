package progress

import (
	"context"
	"fmt"
	"testing"

	"learnhub/models"
	courseModels "learnhub/models/course"
	"learnhub/pkg/apperr"
	"learnhub/pkg/keymutex"
	"learnhub/services/catalog"

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

// seedCourse creates a published course with two modules: module one has
// two lessons, module two has one.
func seedCourse(t *testing.T, db *gorm.DB) (course courseModels.Course, modules []courseModels.Module, lessons []courseModels.Lesson) {
	t.Helper()

	course = courseModels.Course{
		Title:       "Test Course",
		Status:      courseModels.StatusActive,
		IsPublished: true,
	}
	require.NoError(t, db.Create(&course).Error)

	for i := 0; i < 2; i++ {
		m := courseModels.Module{CourseID: course.ID, Title: fmt.Sprintf("Module %d", i+1), OrderIndex: i + 1}
		require.NoError(t, db.Create(&m).Error)
		modules = append(modules, m)
	}

	lessonSpec := []struct {
		module int
		title  string
	}{
		{0, "Lesson 1.1"},
		{0, "Lesson 1.2"},
		{1, "Lesson 2.1"},
	}
	for i, spec := range lessonSpec {
		l := courseModels.Lesson{
			ModuleID:    modules[spec.module].ID,
			CourseID:    course.ID,
			Title:       spec.title,
			ContentType: "VIDEO",
			OrderIndex:  i + 1,
			IsPublished: true,
		}
		require.NoError(t, db.Create(&l).Error)
		lessons = append(lessons, l)
	}
	return course, modules, lessons
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDb(t)
	return NewService(db, catalog.NewService(db), keymutex.New()), db
}

// completionSpy counts completion notifications and sets the guard the
// way the certificate pipeline does.
type completionSpy struct {
	db    *gorm.DB
	calls int
}

func (s *completionSpy) CompletionReached(ctx context.Context, enr *courseModels.Enrollment) error {
	s.calls++
	return s.db.Model(&courseModels.Enrollment{}).
		Where("id = ?", enr.ID).
		Update("certificate_generated", true).Error
}

func TestEnroll(t *testing.T) {
	svc, _ := newTestService(t)
	course, modules, _ := seedCourse(t, svc.db)
	ctx := context.Background()

	enr, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentEnrolled, enr.Status)
	assert.Len(t, enr.ModuleProgress, len(modules))
	assert.Equal(t, 0, enr.OverallProgress)

	// Second enrollment for the same pair conflicts.
	_, err = svc.Enroll(ctx, 1, course.ID)
	assert.True(t, apperr.IsConflict(err))

	// A different user enrolls fine.
	_, err = svc.Enroll(ctx, 2, course.ID)
	assert.NoError(t, err)
}

func TestEnrollSnapshotsModules(t *testing.T) {
	svc, db := newTestService(t)
	course, _, _ := seedCourse(t, db)
	ctx := context.Background()

	enr, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)
	require.Len(t, enr.ModuleProgress, 2)

	// A module added after enrollment does not appear in the record.
	late := courseModels.Module{CourseID: course.ID, Title: "Late Module", OrderIndex: 3}
	require.NoError(t, db.Create(&late).Error)

	got, err := svc.GetProgress(ctx, 1, course.ID)
	require.NoError(t, err)
	assert.Len(t, got.ModuleProgress, 2)
}

func TestMarkLessonComplete(t *testing.T) {
	svc, db := newTestService(t)
	course, modules, lessons := seedCourse(t, db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)

	enr, err := svc.MarkLessonComplete(ctx, 1, course.ID, modules[0].ID, lessons[0].ID, 10)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentInProgress, enr.Status)
	assert.Equal(t, 10, enr.TotalTimeSpent)
	assert.Equal(t, 0, enr.OverallProgress) // module one not done yet

	// Completing the second lesson flips module one: 1 of 2 modules.
	enr, err = svc.MarkLessonComplete(ctx, 1, course.ID, modules[0].ID, lessons[1].ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 50, enr.OverallProgress)
	assert.True(t, enr.ModuleProgress[0].Completed)
	assert.Equal(t, 15, enr.TotalTimeSpent)
}

func TestMarkLessonCompleteIdempotentButTimeAdds(t *testing.T) {
	svc, db := newTestService(t)
	course, modules, lessons := seedCourse(t, db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)

	first, err := svc.MarkLessonComplete(ctx, 1, course.ID, modules[0].ID, lessons[0].ID, 10)
	require.NoError(t, err)

	// Repeat: completion set unchanged, time still added.
	second, err := svc.MarkLessonComplete(ctx, 1, course.ID, modules[0].ID, lessons[0].ID, 10)
	require.NoError(t, err)
	assert.Equal(t, first.ModuleProgress[0].CompletedLessonCount(), second.ModuleProgress[0].CompletedLessonCount())
	assert.Equal(t, 20, second.TotalTimeSpent)
	assert.Equal(t, first.OverallProgress, second.OverallProgress)
}

func TestMarkLessonCompleteErrors(t *testing.T) {
	svc, db := newTestService(t)
	course, modules, lessons := seedCourse(t, db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)

	_, err = svc.MarkLessonComplete(ctx, 1, course.ID, modules[0].ID, lessons[0].ID, -5)
	assert.True(t, apperr.IsInvalidArgument(err))

	_, err = svc.MarkLessonComplete(ctx, 1, course.ID, 9999, lessons[0].ID, 0)
	assert.True(t, apperr.IsNotFound(err))

	// Lesson from another module does not count against this one.
	_, err = svc.MarkLessonComplete(ctx, 1, course.ID, modules[0].ID, lessons[2].ID, 0)
	assert.True(t, apperr.IsNotFound(err))

	_, err = svc.MarkLessonComplete(ctx, 42, course.ID, modules[0].ID, lessons[0].ID, 0)
	assert.True(t, apperr.IsNotFound(err))
}

func TestMarkModuleCompleteOverride(t *testing.T) {
	svc, db := newTestService(t)
	course, modules, _ := seedCourse(t, db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)

	// Override completes the module without touching any lesson.
	enr, err := svc.MarkModuleComplete(ctx, 1, course.ID, modules[1].ID)
	require.NoError(t, err)
	assert.True(t, enr.ModuleProgress[1].Completed)
	assert.Equal(t, 50, enr.OverallProgress)
	assert.Equal(t, 0, enr.ModuleProgress[1].CompletedLessonCount())
}

func TestAddTimeSpent(t *testing.T) {
	svc, db := newTestService(t)
	course, modules, _ := seedCourse(t, db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)

	enr, err := svc.AddTimeSpent(ctx, 1, course.ID, 0, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, enr.TotalTimeSpent)

	enr, err = svc.AddTimeSpent(ctx, 1, course.ID, modules[0].ID, 15)
	require.NoError(t, err)
	assert.Equal(t, 45, enr.TotalTimeSpent)
	assert.Equal(t, 15, enr.ModuleProgress[0].TimeSpent)

	_, err = svc.AddTimeSpent(ctx, 1, course.ID, 0, 0)
	assert.True(t, apperr.IsInvalidArgument(err))

	_, err = svc.AddTimeSpent(ctx, 1, course.ID, 0, -10)
	assert.True(t, apperr.IsInvalidArgument(err))
}

func TestUpdateScores(t *testing.T) {
	svc, db := newTestService(t)
	course, _, _ := seedCourse(t, db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)

	one := 1
	two := 2
	quiz := 80.0
	assignment := 90.0
	enr, err := svc.UpdateScores(ctx, 1, course.ID, ScoreUpdate{
		TotalQuizzes:       &two,
		CompletedQuizzes:   &one,
		AvgQuizScore:       &quiz,
		AvgAssignmentScore: &assignment,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, enr.TotalQuizzes)
	assert.Equal(t, 1, enr.CompletedQuizzes)
	assert.Equal(t, 86, enr.FinalScore)
	// 1 of 4 items (2 modules + 2 quizzes)
	assert.Equal(t, 25, enr.CompletionPercentage)

	neg := -1
	_, err = svc.UpdateScores(ctx, 1, course.ID, ScoreUpdate{TotalQuizzes: &neg})
	assert.True(t, apperr.IsInvalidArgument(err))
}

func TestUpdateScoresRejectsCompletedOverTotal(t *testing.T) {
	svc, db := newTestService(t)
	course, modules, _ := seedCourse(t, db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)
	_, err = svc.MarkModuleComplete(ctx, 1, course.ID, modules[0].ID)
	require.NoError(t, err)
	_, err = svc.MarkModuleComplete(ctx, 1, course.ID, modules[1].ID)
	require.NoError(t, err)

	one := 1
	three := 3
	_, err = svc.UpdateScores(ctx, 1, course.ID, ScoreUpdate{
		TotalQuizzes:     &one,
		CompletedQuizzes: &three,
	})
	assert.True(t, apperr.IsInvalidArgument(err))

	// The rejected update left nothing behind and the stored percentage
	// stays bounded.
	enr, err := svc.GetProgress(ctx, 1, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, enr.TotalQuizzes)
	assert.Equal(t, 0, enr.CompletedQuizzes)
	assert.LessOrEqual(t, enr.CompletionPercentage, 100)

	// Splitting the same counters across two calls fails the same way.
	_, err = svc.UpdateScores(ctx, 1, course.ID, ScoreUpdate{TotalQuizzes: &one})
	require.NoError(t, err)
	_, err = svc.UpdateScores(ctx, 1, course.ID, ScoreUpdate{CompletedQuizzes: &three})
	assert.True(t, apperr.IsInvalidArgument(err))

	_, err = svc.UpdateScores(ctx, 1, course.ID, ScoreUpdate{CompletedQuizzes: &one})
	require.NoError(t, err)
	enr, err = svc.GetProgress(ctx, 1, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, enr.CompletionPercentage)
}

func TestStatusMovesOnFirstActivity(t *testing.T) {
	svc, db := newTestService(t)
	course, modules, lessons := seedCourse(t, db)
	ctx := context.Background()

	enr, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentEnrolled, enr.Status)

	// One lesson of a two-lesson module: no module complete yet, but the
	// enrollment is no longer untouched.
	enr, err = svc.MarkLessonComplete(ctx, 1, course.ID, modules[0].ID, lessons[0].ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, enr.CompletionPercentage)
	assert.Equal(t, courseModels.EnrollmentInProgress, enr.Status)

	// Recorded study time alone counts as activity too.
	_, err = svc.Enroll(ctx, 2, course.ID)
	require.NoError(t, err)
	enr, err = svc.AddTimeSpent(ctx, 2, course.ID, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentInProgress, enr.Status)
}

func TestCompletionFiresListenerOnce(t *testing.T) {
	svc, db := newTestService(t)
	course, modules, lessons := seedCourse(t, db)
	ctx := context.Background()

	spy := &completionSpy{db: db}
	svc.Subscribe(spy)

	_, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)

	_, err = svc.MarkLessonComplete(ctx, 1, course.ID, modules[0].ID, lessons[0].ID, 0)
	require.NoError(t, err)
	_, err = svc.MarkLessonComplete(ctx, 1, course.ID, modules[0].ID, lessons[1].ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, spy.calls)

	// Last lesson completes the last module and reaches 100%.
	enr, err := svc.MarkLessonComplete(ctx, 1, course.ID, modules[1].ID, lessons[2].ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, enr.CompletionPercentage)
	assert.Equal(t, courseModels.EnrollmentCompleted, enr.Status)
	assert.NotNil(t, enr.CompletedAt)
	assert.Equal(t, 1, spy.calls)

	// Further mutations at 100% do not re-fire once the guard is set.
	_, err = svc.MarkLessonComplete(ctx, 1, course.ID, modules[1].ID, lessons[2].ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, spy.calls)
}

func TestCompletedAtSetOnce(t *testing.T) {
	svc, db := newTestService(t)
	course, modules, lessons := seedCourse(t, db)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)

	for i, l := range lessons {
		moduleIdx := 0
		if i == 2 {
			moduleIdx = 1
		}
		_, err = svc.MarkLessonComplete(ctx, 1, course.ID, modules[moduleIdx].ID, l.ID, 0)
		require.NoError(t, err)
	}

	first, err := svc.GetProgress(ctx, 1, course.ID)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)

	_, err = svc.AddTimeSpent(ctx, 1, course.ID, 0, 5)
	require.NoError(t, err)

	again, err := svc.GetProgress(ctx, 1, course.ID)
	require.NoError(t, err)
	assert.Equal(t, first.CompletedAt.UTC(), again.CompletedAt.UTC())
}

func TestVersionAdvancesPerMutation(t *testing.T) {
	svc, db := newTestService(t)
	course, _, _ := seedCourse(t, db)
	ctx := context.Background()

	enr, err := svc.Enroll(ctx, 1, course.ID)
	require.NoError(t, err)
	base := enr.Version

	_, err = svc.AddTimeSpent(ctx, 1, course.ID, 0, 5)
	require.NoError(t, err)
	_, err = svc.AddTimeSpent(ctx, 1, course.ID, 0, 5)
	require.NoError(t, err)

	var row courseModels.Enrollment
	require.NoError(t, db.Where("id = ?", enr.ID).First(&row).Error)
	assert.Equal(t, base+2, row.Version)
}

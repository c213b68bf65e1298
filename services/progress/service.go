package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	courseModels "learnhub/models/course"
	"learnhub/pkg/apperr"
	"learnhub/pkg/keymutex"
	"learnhub/pkg/logger"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	// Default deadline for a single progress operation when the caller
	// did not supply one.
	defaultTimeout = 5 * time.Second

	// Bounded read-recompute-retry on optimistic-concurrency conflicts.
	maxSaveAttempts = 3
)

var errStaleRecord = errors.New("enrollment version changed")

// Service implements the progress update protocol. Every mutation for a
// given (user, course) pair is serialized through a per-key mutex and
// persisted with an optimistic version check, so concurrent updates can
// neither lose lesson completions nor double-fire the completion event.
type Service struct {
	db        *gorm.DB
	catalog   Catalog
	locks     *keymutex.KeyMutex
	listeners []CompletionListener
	log       zerolog.Logger
}

func NewService(db *gorm.DB, cat Catalog, locks *keymutex.KeyMutex) *Service {
	return &Service{
		db:      db,
		catalog: cat,
		locks:   locks,
		log:     logger.Get().With().Str("service", "progress").Logger(),
	}
}

// Subscribe registers a completion listener. Not safe to call after the
// service started handling requests.
func (s *Service) Subscribe(l CompletionListener) {
	s.listeners = append(s.listeners, l)
}

// ScoreUpdate carries assessment counters owned by the quiz/assignment
// subsystems. Nil fields are left unchanged.
type ScoreUpdate struct {
	TotalAssignments     *int     `json:"total_assignments"`
	CompletedAssignments *int     `json:"completed_assignments"`
	TotalQuizzes         *int     `json:"total_quizzes"`
	CompletedQuizzes     *int     `json:"completed_quizzes"`
	AvgQuizScore         *float64 `json:"avg_quiz_score"`
	AvgAssignmentScore   *float64 `json:"avg_assignment_score"`
}

func lockKey(userID, courseID uint) string {
	return fmt.Sprintf("enrollment:%d:%d", userID, courseID)
}

// Enroll creates the enrollment record for (user, course), snapshotting
// the course's module list as of now. Modules added to the course later
// are not retrofitted into existing records.
func (s *Service) Enroll(ctx context.Context, userID, courseID uint) (*courseModels.Enrollment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := lockKey(userID, courseID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	moduleIDs, err := s.catalog.GetModuleList(ctx, courseID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	enr := courseModels.Enrollment{
		UserID:       userID,
		CourseID:     courseID,
		Status:       courseModels.EnrollmentEnrolled,
		LastActivity: now,
	}
	for i, moduleID := range moduleIDs {
		enr.ModuleProgress = append(enr.ModuleProgress, courseModels.ModuleProgress{
			ModuleID:   moduleID,
			OrderIndex: i,
		})
	}

	if err := s.db.WithContext(ctx).Create(&enr).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("user already enrolled in this course")
		}
		return nil, apperr.Upstream("failed to create enrollment", err)
	}
	return &enr, nil
}

// MarkLessonComplete records a completed lesson for the module and flips
// the module to completed once all its declared lessons are done. Adding
// an already-completed lesson is a no-op for the completion set, but a
// provided time-spent value is still added (inherited additive-on-retry
// behavior; time accounting is therefore not idempotent).
func (s *Service) MarkLessonComplete(ctx context.Context, userID, courseID, moduleID, lessonID uint, timeSpentMinutes int) (*courseModels.Enrollment, error) {
	if timeSpentMinutes < 0 {
		return nil, apperr.InvalidArgument("time spent must not be negative")
	}
	return s.mutate(ctx, userID, courseID, true, func(ctx context.Context, enr *courseModels.Enrollment) error {
		mp := findModule(enr, moduleID)
		if mp == nil {
			return apperr.NotFound("module is not part of this enrollment")
		}
		ok, err := s.catalog.HasLesson(ctx, moduleID, lessonID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("lesson not found in module")
		}

		mp.AddLesson(lessonID)
		if timeSpentMinutes > 0 {
			mp.TimeSpent += timeSpentMinutes
			enr.TotalTimeSpent += timeSpentMinutes
		}
		now := time.Now().UTC()
		mp.LastAccessed = &now

		lessonCount, err := s.catalog.GetModuleLessonCount(ctx, courseID, moduleID)
		if err != nil {
			return err
		}
		if lessonCount > 0 && mp.CompletedLessonCount() >= lessonCount {
			mp.Completed = true
		}
		return nil
	})
}

// MarkModuleComplete force-sets a module's completed flag regardless of
// lesson completeness. Instructor override, no additional checks.
func (s *Service) MarkModuleComplete(ctx context.Context, userID, courseID, moduleID uint) (*courseModels.Enrollment, error) {
	return s.mutate(ctx, userID, courseID, true, func(ctx context.Context, enr *courseModels.Enrollment) error {
		mp := findModule(enr, moduleID)
		if mp == nil {
			return apperr.NotFound("module is not part of this enrollment")
		}
		mp.Completed = true
		now := time.Now().UTC()
		mp.LastAccessed = &now
		return nil
	})
}

// AddTimeSpent adds study time at the record level and, when moduleID is
// non-zero, at the module level too. Time tracking does not change any
// completion state, so no recomputation happens here.
func (s *Service) AddTimeSpent(ctx context.Context, userID, courseID, moduleID uint, minutes int) (*courseModels.Enrollment, error) {
	if minutes <= 0 {
		return nil, apperr.InvalidArgument("minutes must be positive")
	}
	return s.mutate(ctx, userID, courseID, false, func(ctx context.Context, enr *courseModels.Enrollment) error {
		if moduleID != 0 {
			mp := findModule(enr, moduleID)
			if mp == nil {
				return apperr.NotFound("module is not part of this enrollment")
			}
			mp.TimeSpent += minutes
			now := time.Now().UTC()
			mp.LastAccessed = &now
		}
		enr.TotalTimeSpent += minutes
		return nil
	})
}

// UpdateScores applies assessment counters supplied by the quiz and
// assignment subsystems and recomputes the derived fields.
func (s *Service) UpdateScores(ctx context.Context, userID, courseID uint, upd ScoreUpdate) (*courseModels.Enrollment, error) {
	return s.mutate(ctx, userID, courseID, true, func(ctx context.Context, enr *courseModels.Enrollment) error {
		if upd.TotalAssignments != nil {
			if *upd.TotalAssignments < 0 {
				return apperr.InvalidArgument("total assignments must not be negative")
			}
			enr.TotalAssignments = *upd.TotalAssignments
		}
		if upd.CompletedAssignments != nil {
			if *upd.CompletedAssignments < 0 {
				return apperr.InvalidArgument("completed assignments must not be negative")
			}
			enr.CompletedAssignments = *upd.CompletedAssignments
		}
		if upd.TotalQuizzes != nil {
			if *upd.TotalQuizzes < 0 {
				return apperr.InvalidArgument("total quizzes must not be negative")
			}
			enr.TotalQuizzes = *upd.TotalQuizzes
		}
		if upd.CompletedQuizzes != nil {
			if *upd.CompletedQuizzes < 0 {
				return apperr.InvalidArgument("completed quizzes must not be negative")
			}
			enr.CompletedQuizzes = *upd.CompletedQuizzes
		}
		if upd.AvgQuizScore != nil {
			enr.AvgQuizScore = *upd.AvgQuizScore
		}
		if upd.AvgAssignmentScore != nil {
			enr.AvgAssignmentScore = *upd.AvgAssignmentScore
		}
		// Completed counters above their totals would push the derived
		// percentage past 100, so the resulting state is rejected even
		// when each field is valid on its own.
		if enr.CompletedAssignments > enr.TotalAssignments {
			return apperr.InvalidArgument("completed assignments must not exceed total assignments")
		}
		if enr.CompletedQuizzes > enr.TotalQuizzes {
			return apperr.InvalidArgument("completed quizzes must not exceed total quizzes")
		}
		return nil
	})
}

// GetProgress returns the current enrollment snapshot.
func (s *Service) GetProgress(ctx context.Context, userID, courseID uint) (*courseModels.Enrollment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.load(ctx, userID, courseID)
}

// GetAllProgress returns all enrollment snapshots for a user.
func (s *Service) GetAllProgress(ctx context.Context, userID uint) ([]courseModels.Enrollment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var enrollments []courseModels.Enrollment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Preload("ModuleProgress", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index asc")
		}).
		Order("created_at desc").
		Find(&enrollments).Error
	if err != nil {
		return nil, apperr.Upstream("failed to fetch enrollments", err)
	}
	return enrollments, nil
}

// mutate runs fn against a freshly loaded enrollment under the per-key
// lock, recomputes derived fields when asked, and persists with a version
// check. A stale write triggers a bounded reload-and-retry. After a
// persisted mutation that left completion at 100% with no certificate
// yet, completion listeners run synchronously; their failure is logged
// and the progress update still succeeds.
func (s *Service) mutate(ctx context.Context, userID, courseID uint, recompute bool, fn func(context.Context, *courseModels.Enrollment) error) (*courseModels.Enrollment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := lockKey(userID, courseID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		enr, err := s.load(ctx, userID, courseID)
		if err != nil {
			return nil, err
		}
		if err := fn(ctx, enr); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		enr.LastActivity = now
		if recompute {
			s.recompute(enr, now)
		}

		err = s.persist(ctx, enr)
		if errors.Is(err, errStaleRecord) {
			s.log.Warn().
				Uint("user_id", userID).
				Uint("course_id", courseID).
				Int("attempt", attempt+1).
				Msg("enrollment write conflicted, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		if recompute && enr.CompletionPercentage >= 100 && !enr.CertificateGenerated {
			s.notifyCompletion(ctx, enr)
		}
		return enr, nil
	}
	return nil, apperr.Conflict("enrollment update kept conflicting, giving up")
}

func (s *Service) load(ctx context.Context, userID, courseID uint) (*courseModels.Enrollment, error) {
	var enr courseModels.Enrollment
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND is_deleted = ?", userID, courseID, false).
		Preload("ModuleProgress", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index asc")
		}).
		First(&enr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not enrolled in this course")
	}
	if err != nil {
		return nil, apperr.Upstream("failed to load enrollment", err)
	}
	return &enr, nil
}

// recompute refreshes the derived fields and the status transitions.
// CompletedAt is set exactly once, on the first transition to 100%.
func (s *Service) recompute(enr *courseModels.Enrollment, now time.Time) {
	enr.OverallProgress = OverallProgress(enr)
	enr.CompletionPercentage = CompletionPercentage(enr)
	enr.FinalScore = FinalScore(enr)

	if enr.CompletionPercentage >= 100 {
		enr.Status = courseModels.EnrollmentCompleted
		if enr.CompletedAt == nil {
			t := now
			enr.CompletedAt = &t
		}
	} else if enr.CompletionPercentage > 0 || hasActivity(enr) {
		enr.Status = courseModels.EnrollmentInProgress
	}
}

// hasActivity reports whether the enrollment has any recorded progress
// below the module-completion granularity. Completed lessons and study
// time move the status off ENROLLED before the percentage does.
func hasActivity(enr *courseModels.Enrollment) bool {
	if enr.TotalTimeSpent > 0 || enr.CompletedAssignments > 0 || enr.CompletedQuizzes > 0 {
		return true
	}
	for i := range enr.ModuleProgress {
		mp := &enr.ModuleProgress[i]
		if mp.TimeSpent > 0 || len(mp.LessonSet()) > 0 {
			return true
		}
	}
	return false
}

// persist writes the enrollment and its module rows in one transaction,
// guarded by the version column. Returns errStaleRecord when another
// writer got there first.
func (s *Service) persist(ctx context.Context, enr *courseModels.Enrollment) error {
	prevVersion := enr.Version
	enr.Version = prevVersion + 1

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&courseModels.Enrollment{}).
			Where("id = ? AND version = ?", enr.ID, prevVersion).
			Updates(map[string]interface{}{
				"status":                enr.Status,
				"overall_progress":      enr.OverallProgress,
				"completion_percentage": enr.CompletionPercentage,
				"final_score":           enr.FinalScore,
				"total_assignments":     enr.TotalAssignments,
				"completed_assignments": enr.CompletedAssignments,
				"total_quizzes":         enr.TotalQuizzes,
				"completed_quizzes":     enr.CompletedQuizzes,
				"avg_quiz_score":        enr.AvgQuizScore,
				"avg_assignment_score":  enr.AvgAssignmentScore,
				"total_time_spent":      enr.TotalTimeSpent,
				"completed_at":          enr.CompletedAt,
				"last_activity":         enr.LastActivity,
				"version":               enr.Version,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStaleRecord
		}
		for i := range enr.ModuleProgress {
			if err := tx.Save(&enr.ModuleProgress[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errStaleRecord) {
		enr.Version = prevVersion
		return errStaleRecord
	}
	if err != nil {
		return apperr.Upstream("failed to persist enrollment", err)
	}
	return nil
}

func (s *Service) notifyCompletion(ctx context.Context, enr *courseModels.Enrollment) {
	for _, l := range s.listeners {
		if err := l.CompletionReached(ctx, enr); err != nil {
			// Certificate generation is best effort from the caller's
			// point of view; the next qualifying update retries it.
			s.log.Error().Err(err).
				Uint("user_id", enr.UserID).
				Uint("course_id", enr.CourseID).
				Msg("completion listener failed")
		}
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}

func findModule(enr *courseModels.Enrollment, moduleID uint) *courseModels.ModuleProgress {
	for i := range enr.ModuleProgress {
		if enr.ModuleProgress[i].ModuleID == moduleID {
			return &enr.ModuleProgress[i]
		}
	}
	return nil
}

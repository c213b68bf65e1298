package course

import (
	"encoding/json"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enrollment statuses
const (
	EnrollmentEnrolled   = "ENROLLED"
	EnrollmentInProgress = "IN_PROGRESS"
	EnrollmentCompleted  = "COMPLETED"
)

// Enrollment tracks a user's enrollment in a course with progress.
// One row per (user, course); derived fields are recomputed on every
// progress mutation, assessment counters are owned by the quiz and
// assignment subsystems and only consumed here.
type Enrollment struct {
	gorm.Model
	UserID   uint   `json:"user_id" gorm:"uniqueIndex:idx_enrollment_user_course;not null"`
	CourseID uint   `json:"course_id" gorm:"uniqueIndex:idx_enrollment_user_course;not null"`
	Status   string `json:"status" gorm:"default:'ENROLLED'"` // ENROLLED, IN_PROGRESS, COMPLETED

	// Derived: completed modules / total modules
	OverallProgress int `json:"overall_progress" gorm:"default:0"` // 0-100
	// Derived: (completed modules + assessments) / (total modules + assessments)
	CompletionPercentage int `json:"completion_percentage" gorm:"default:0"` // 0-100
	// Derived: weighted quiz/assignment average
	FinalScore int `json:"final_score" gorm:"default:0"`

	// Assessment counters, supplied by the quiz/assignment subsystems
	TotalAssignments     int     `json:"total_assignments" gorm:"default:0"`
	CompletedAssignments int     `json:"completed_assignments" gorm:"default:0"`
	TotalQuizzes         int     `json:"total_quizzes" gorm:"default:0"`
	CompletedQuizzes     int     `json:"completed_quizzes" gorm:"default:0"`
	AvgQuizScore         float64 `json:"avg_quiz_score" gorm:"default:0"`
	AvgAssignmentScore   float64 `json:"avg_assignment_score" gorm:"default:0"`

	TotalTimeSpent int `json:"total_time_spent" gorm:"default:0"` // minutes

	// Certificate guard: both fields flip together, exactly once
	CertificateGenerated bool  `json:"certificate_generated" gorm:"default:false"`
	CertificateID        *uint `json:"certificate_id" gorm:"index"`

	CompletedAt  *time.Time `json:"completed_at"`
	LastActivity time.Time  `json:"last_activity"`

	// Optimistic concurrency token; bumped on every persisted mutation
	Version   int  `json:"-" gorm:"default:0"`
	IsDeleted bool `gorm:"default:false"`

	ModuleProgress []ModuleProgress `json:"module_progress" gorm:"foreignKey:EnrollmentID"`
}

// ModuleProgress is one module entry of an enrollment. The set of rows is
// snapshotted from the course's module list at enrollment time; modules
// added to the course afterwards do not appear here.
type ModuleProgress struct {
	gorm.Model
	EnrollmentID uint `json:"enrollment_id" gorm:"uniqueIndex:idx_progress_enrollment_module;not null"`
	ModuleID     uint `json:"module_id" gorm:"uniqueIndex:idx_progress_enrollment_module;not null"`
	OrderIndex   int  `json:"order_index" gorm:"default:0"`
	Completed    bool `json:"completed" gorm:"default:false"`
	// JSON array of completed lesson IDs; set semantics enforced in code
	CompletedLessons datatypes.JSON `json:"completed_lessons"`
	TimeSpent        int            `json:"time_spent" gorm:"default:0"` // minutes
	LastAccessed     *time.Time     `json:"last_accessed"`
}

// LessonSet decodes CompletedLessons into a membership set.
func (mp *ModuleProgress) LessonSet() map[uint]bool {
	set := make(map[uint]bool)
	if len(mp.CompletedLessons) == 0 {
		return set
	}
	var ids []uint
	if err := json.Unmarshal(mp.CompletedLessons, &ids); err != nil {
		return set
	}
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// AddLesson records a completed lesson. Returns false when the lesson was
// already in the set, which keeps completion marking idempotent.
func (mp *ModuleProgress) AddLesson(lessonID uint) bool {
	set := mp.LessonSet()
	if set[lessonID] {
		return false
	}
	set[lessonID] = true
	ids := make([]uint, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	raw, _ := json.Marshal(ids)
	mp.CompletedLessons = raw
	return true
}

// CompletedLessonCount returns the size of the completed-lessons set.
func (mp *ModuleProgress) CompletedLessonCount() int {
	return len(mp.LessonSet())
}

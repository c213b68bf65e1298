package progress

import (
	"context"

	courseModels "learnhub/models/course"
)

// CompletionListener is notified when an enrollment's completion
// percentage reaches 100 and no certificate has been generated yet.
// Listeners are invoked synchronously while the per-enrollment lock is
// held, so a listener observes a stable record and two racing progress
// updates cannot both fire it for the same crossing. A listener error is
// logged by the caller and never fails the progress update itself.
type CompletionListener interface {
	CompletionReached(ctx context.Context, enr *courseModels.Enrollment) error
}

// Catalog is the course-structure contract the progress service consumes.
// The module list is snapshotted at enrollment time; lesson counts are
// read live to decide module completion.
type Catalog interface {
	GetModuleList(ctx context.Context, courseID uint) ([]uint, error)
	GetModuleLessonCount(ctx context.Context, courseID, moduleID uint) (int, error)
	HasLesson(ctx context.Context, moduleID, lessonID uint) (bool, error)
}

package progress

import (
	"math"

	"learnhub/config"
	courseModels "learnhub/models/course"
)

// Weighting of the final score: quizzes 40%, assignments 60%.
const (
	quizWeight       = 0.4
	assignmentWeight = 0.6
)

// roundHalfUp rounds to the nearest integer, halves away from zero.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// CompletedModuleCount counts completed entries in the module snapshot.
func CompletedModuleCount(enr *courseModels.Enrollment) int {
	count := 0
	for i := range enr.ModuleProgress {
		if enr.ModuleProgress[i].Completed {
			count++
		}
	}
	return count
}

// OverallProgress derives the module-only progress percentage:
// completed modules over total modules, 0 when the snapshot is empty.
func OverallProgress(enr *courseModels.Enrollment) int {
	total := len(enr.ModuleProgress)
	if total == 0 {
		return 0
	}
	return roundHalfUp(float64(CompletedModuleCount(enr)) * 100 / float64(total))
}

// CompletionPercentage derives the broader completion percentage over
// modules plus tracked assignments and quizzes. When no assessments are
// tracked the denominator degrades to modules only, so this agrees with
// OverallProgress in that case.
func CompletionPercentage(enr *courseModels.Enrollment) int {
	totalItems := len(enr.ModuleProgress) + enr.TotalAssignments + enr.TotalQuizzes
	if totalItems == 0 {
		return 0
	}
	completedItems := CompletedModuleCount(enr) + enr.CompletedAssignments + enr.CompletedQuizzes
	return roundHalfUp(float64(completedItems) * 100 / float64(totalItems))
}

// FinalScore derives the weighted quiz/assignment score. When neither
// average exists yet it returns the configured placeholder score — an
// inherited default, not a real grade; the toggle lives in config so the
// behavior can be switched off without a code change.
func FinalScore(enr *courseModels.Enrollment) int {
	if enr.AvgQuizScore == 0 && enr.AvgAssignmentScore == 0 {
		if cfg := config.AppConfig; cfg != nil {
			if !cfg.PlaceholderScoreEnabled {
				return 0
			}
			return cfg.PlaceholderFinalScore
		}
		return 85
	}
	return roundHalfUp(quizWeight*enr.AvgQuizScore + assignmentWeight*enr.AvgAssignmentScore)
}

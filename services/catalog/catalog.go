package catalog

import (
	"context"
	"errors"

	"learnhub/models"
	courseModels "learnhub/models/course"
	"learnhub/pkg/apperr"

	"gorm.io/gorm"
)

// Service answers course-structure and user-directory lookups for the
// progress and certificate pipelines. Backed by the primary database; the
// consumers only see the interfaces they declare.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetCourse returns a published, non-deleted course.
func (s *Service) GetCourse(ctx context.Context, courseID uint) (*courseModels.Course, error) {
	var c courseModels.Course
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", courseID, false).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("course not found")
	}
	if err != nil {
		return nil, apperr.Upstream("course lookup failed", err)
	}
	return &c, nil
}

// GetModuleList returns the course's module IDs in course order. Callers
// snapshot this list at enrollment time.
func (s *Service) GetModuleList(ctx context.Context, courseID uint) ([]uint, error) {
	var modules []courseModels.Module
	err := s.db.WithContext(ctx).
		Where("course_id = ? AND is_deleted = ?", courseID, false).
		Order("order_index asc").
		Find(&modules).Error
	if err != nil {
		return nil, apperr.Upstream("module list lookup failed", err)
	}
	ids := make([]uint, len(modules))
	for i, m := range modules {
		ids[i] = m.ID
	}
	return ids, nil
}

// GetModuleLessonCount returns how many published lessons the module declares.
func (s *Service) GetModuleLessonCount(ctx context.Context, courseID, moduleID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&courseModels.Lesson{}).
		Where("course_id = ? AND module_id = ? AND is_deleted = ? AND is_published = ?", courseID, moduleID, false, true).
		Count(&count).Error
	if err != nil {
		return 0, apperr.Upstream("lesson count lookup failed", err)
	}
	return int(count), nil
}

// HasLesson reports whether the lesson exists under the given module.
func (s *Service) HasLesson(ctx context.Context, moduleID, lessonID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&courseModels.Lesson{}).
		Where("id = ? AND module_id = ? AND is_deleted = ?", lessonID, moduleID, false).
		Count(&count).Error
	if err != nil {
		return false, apperr.Upstream("lesson lookup failed", err)
	}
	return count > 0, nil
}

// GetUser returns an active user by ID.
func (s *Service) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", userID, false).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Upstream("user lookup failed", err)
	}
	return &u, nil
}

// GetDisplayName returns the user's display name.
func (s *Service) GetDisplayName(ctx context.Context, userID uint) (string, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

// GetRole returns the user's role.
func (s *Service) GetRole(ctx context.Context, userID uint) (string, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

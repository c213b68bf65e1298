package course

import "gorm.io/gorm"

// Module represents a section/module within a course
type Module struct {
	gorm.Model
	CourseID    uint   `json:"course_id" gorm:"index;not null"`
	Title       string `json:"title"`
	Description string `json:"description"`
	OrderIndex  int    `json:"order_index" gorm:"default:0"` // Module order in course
	IsDeleted   bool   `gorm:"default:false"`
}

// Lesson represents a content unit inside a module
type Lesson struct {
	gorm.Model
	ModuleID        uint   `json:"module_id" gorm:"index;not null"`
	CourseID        uint   `json:"course_id" gorm:"index;not null"`
	Title           string `json:"title"`
	ContentType     string `json:"content_type" gorm:"default:'VIDEO'"` // VIDEO, ARTICLE, QUIZ, ASSIGNMENT
	ContentURL      string `json:"content_url"`
	DurationMinutes int    `json:"duration_minutes" gorm:"default:0"`
	OrderIndex      int    `json:"order_index" gorm:"default:0"`
	IsPublished     bool   `json:"is_published" gorm:"default:false"`
	IsDeleted       bool   `gorm:"default:false"`
}

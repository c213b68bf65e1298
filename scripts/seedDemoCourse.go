package main

import (
	"log"

	"learnhub/config"
	"learnhub/database"
	"learnhub/models"
	courseModels "learnhub/models/course"

	"golang.org/x/crypto/bcrypt"
)

// Seeds a demo instructor, a published course with three modules and a
// handful of lessons. Run with: go run scripts/seedDemoCourse.go
func main() {
	config.LoadConfig()
	database.ConnectDb()

	db := database.Database.Db

	hashed, err := bcrypt.GenerateFromPassword([]byte("instructor123"), config.AppConfig.SaltRound)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	instructor := models.User{
		Name:            "Demo Instructor",
		Email:           "instructor@learnhub.local",
		Password:        string(hashed),
		Role:            models.RoleInstructor,
		IsEmailVerified: true,
	}
	if err := db.Where("email = ?", instructor.Email).FirstOrCreate(&instructor).Error; err != nil {
		log.Fatalf("Failed to create instructor: %v", err)
	}

	course := courseModels.Course{
		Title:        "Introduction to Backend Engineering",
		Description:  "Servers, databases and APIs from the ground up.",
		InstructorID: instructor.ID,
		Author:       instructor.Name,
		Duration:     12,
		Status:       courseModels.StatusActive,
		IsPublished:  true,
	}
	if err := db.Where("title = ?", course.Title).FirstOrCreate(&course).Error; err != nil {
		log.Fatalf("Failed to create course: %v", err)
	}

	moduleTitles := []string{"HTTP Fundamentals", "Working with Databases", "Building REST APIs"}
	lessonTitles := [][]string{
		{"What is HTTP?", "Requests and Responses", "Status Codes"},
		{"Relational Basics", "Writing Queries"},
		{"Routing", "Middleware", "Error Handling", "Shipping to Production"},
	}

	for i, title := range moduleTitles {
		module := courseModels.Module{
			CourseID:   course.ID,
			Title:      title,
			OrderIndex: i + 1,
		}
		if err := db.Where("course_id = ? AND title = ?", course.ID, title).FirstOrCreate(&module).Error; err != nil {
			log.Fatalf("Failed to create module %q: %v", title, err)
		}

		for j, lt := range lessonTitles[i] {
			lesson := courseModels.Lesson{
				ModuleID:        module.ID,
				CourseID:        course.ID,
				Title:           lt,
				ContentType:     "VIDEO",
				DurationMinutes: 10,
				OrderIndex:      j + 1,
				IsPublished:     true,
			}
			if err := db.Where("module_id = ? AND title = ?", module.ID, lt).FirstOrCreate(&lesson).Error; err != nil {
				log.Fatalf("Failed to create lesson %q: %v", lt, err)
			}
		}
	}

	log.Printf("Seeded course %d with %d modules", course.ID, len(moduleTitles))
}

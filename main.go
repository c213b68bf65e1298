package main

import (
	"learnhub/config"
	controllers "learnhub/controllers/course"
	"learnhub/database"
	"learnhub/pkg/keymutex"
	applog "learnhub/pkg/logger"
	authRoutes "learnhub/routers/authRoutes"
	courseRoutes "learnhub/routers/courseRoutes"
	"learnhub/services/catalog"
	"learnhub/services/certificate"
	"learnhub/services/progress"
	"learnhub/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	config.LoadConfig()
	applog.Init(config.AppConfig.LogLevel, config.AppConfig.LogFormat)
	database.ConnectDb()

	log := applog.Get()
	db := database.Database.Db

	// Service wiring. The certificate service subscribes to completion
	// notifications from the progress service; both share the same
	// per-enrollment lock set.
	locks := keymutex.New()
	catalogSvc := catalog.NewService(db)
	progressSvc := progress.NewService(db, catalogSvc, locks)
	certSvc := certificate.NewService(db, catalogSvc, locks).
		WithMailer(utils.SendCertificateEmail)
	if config.AppConfig.CertRenderURL != "" {
		certSvc = certSvc.WithRenderer(certificate.NewRenderer(config.AppConfig.CertRenderURL))
	}
	progressSvc.Subscribe(certSvc)
	controllers.Setup(progressSvc, certSvc)

	sched := utils.InitializeSchedulers(certSvc)
	defer sched.Stop()

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE",
		AllowHeaders: "Content-Type,Authorization",
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status} ${latency}\n",
	}))

	authRoutes.SetupAuthRoutes(app)
	courseRoutes.SetupCourseRoutes(app)
	courseRoutes.SetupAdminCourseRoutes(app)

	log.Info().Str("port", config.AppConfig.Port).Msg("server starting")
	if err := app.Listen(":" + config.AppConfig.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

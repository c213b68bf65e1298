package utils

import (
	"context"
	"time"

	"learnhub/pkg/logger"
	"learnhub/services/certificate"

	"github.com/robfig/cron/v3"
)

// StartReconciliationScheduler repairs enrollments whose certificate was
// created but whose back-link update was lost, every ten minutes.
func StartReconciliationScheduler(c *cron.Cron, certSvc *certificate.Service) {
	log := logger.Get()

	c.AddFunc("*/10 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		repaired, err := certSvc.ReconcileLinks(ctx)
		if err != nil {
			log.Error().Err(err).Msg("certificate link reconciliation failed")
			return
		}
		if repaired > 0 {
			log.Info().Int("repaired", repaired).Msg("certificate links reconciled")
		}
	})
}

// InitializeSchedulers sets up all background jobs and starts the cron
// runner.
func InitializeSchedulers(certSvc *certificate.Service) *cron.Cron {
	c := cron.New()

	StartReconciliationScheduler(c, certSvc)

	c.Start()
	log := logger.Get()
	log.Info().Msg("background schedulers started")
	return c
}

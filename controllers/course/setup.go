package controllers

import (
	"learnhub/services/certificate"
	"learnhub/services/progress"
)

var (
	progressSvc *progress.Service
	certSvc     *certificate.Service
)

// Setup wires the services used by the course controllers. Called once
// from main before routes are registered.
func Setup(p *progress.Service, cert *certificate.Service) {
	progressSvc = p
	certSvc = cert
}

package utils

import (
	"fmt"
	"net/smtp"
	"strings"

	"learnhub/config"
)

// SendEmail delivers an HTML email through the configured SMTP account.
func SendEmail(to []string, subject string, htmlBody string) error {
	smtpHost := "smtp.gmail.com"
	smtpPort := "587"

	from := config.AppConfig.EmailSender
	password := config.AppConfig.Password

	msg := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n"
	msg += fmt.Sprintf("From: LearnHub <%s>\r\n", from)
	msg += fmt.Sprintf("To: %s\r\n", strings.Join(to, ","))
	msg += fmt.Sprintf("Subject: %s\r\n\r\n", subject)
	msg += htmlBody

	auth := smtp.PlainAuth("", from, password, smtpHost)

	return smtp.SendMail(smtpHost+":"+smtpPort, auth, from, to, []byte(msg))
}

func getEmailTemplate(title string, bodyContent string) string {
	return fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<style>
			body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
			.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; box-shadow: 0 4px 15px rgba(0,0,0,0.05); }
			.header { background-color: #1A237E; padding: 30px; text-align: center; }
			.header h1 { color: #FFFFFF; margin: 0; font-size: 24px; letter-spacing: 1px; }
			.content { padding: 40px 30px; color: #1A237E; line-height: 1.6; }
			.content h2 { color: #1A237E; margin-top: 0; }
			.footer { background-color: #F6F6F6; padding: 20px; text-align: center; font-size: 12px; color: #666666; border-top: 1px solid #E0E0E0; }
			.btn { display: inline-block; padding: 12px 24px; background-color: #43A047; color: #FFFFFF; text-decoration: none; border-radius: 4px; font-weight: bold; margin-top: 20px; }
			.info-box { background: #E8F0FE; padding: 15px; border-radius: 4px; border-left: 4px solid #43A047; margin: 20px 0; }
		</style>
	</head>
	<body>
		<div class="container">
			<div class="header">
				<h1>LEARNHUB</h1>
			</div>
			<div class="content">
				<h2>%s</h2>
				%s
			</div>
			<div class="footer">
				&copy; 2026 LearnHub. All rights reserved.
			</div>
		</div>
	</body>
	</html>
	`, title, bodyContent)
}

// SendWelcomeEmail goes out after signup.
func SendWelcomeEmail(email, name string) error {
	subject := "Welcome to LearnHub"
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Welcome to <strong>LearnHub</strong>! We are thrilled to have you onboard.</p>
		<p>Your account has been successfully created. You can now browse the catalog and enroll in your first course.</p>
		<p>If you have any questions, feel free to reach out to our support team.</p>
	`, name)

	return SendEmail([]string{email}, subject, getEmailTemplate("Welcome Onboard!", body))
}

// SendEnrollmentEmail goes out after a successful course enrollment.
func SendEnrollmentEmail(email, name, courseTitle string) error {
	subject := "Enrollment Confirmed: " + courseTitle
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>You have successfully enrolled in <strong>%s</strong>.</p>
		<p>Your progress is tracked automatically as you complete lessons. Finish every module and assessment to earn your certificate.</p>
		<div class="info-box">
			<strong>Next Steps:</strong> Open your dashboard and start with the first module.
		</div>
	`, name, courseTitle)

	return SendEmail([]string{email}, subject, getEmailTemplate("Enrollment Successful", body))
}

// SendCertificateEmail goes out when a certificate is issued.
func SendCertificateEmail(email, name, courseTitle, certificateNumber string) error {
	subject := "Your Certificate for " + courseTitle
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Congratulations! You have completed <strong>%s</strong>.</p>
		<p>Your certificate <strong>%s</strong> has been issued and is available in your dashboard.</p>
		<div class="info-box">
			<strong>Tip:</strong> Share the verification link with employers so they can confirm your achievement.
		</div>
	`, name, courseTitle, certificateNumber)

	return SendEmail([]string{email}, subject, getEmailTemplate("Certificate Issued", body))
}

package services

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"time"

	"commitpact-backend/internal/models"
)

type EmailService struct {
	host    string
	port    string
	user    string
	pass    string
	from    string
	devMode bool
}

func NewEmailService(host, port, user, pass, from string) *EmailService {
	devMode := host == "" || user == ""
	if devMode {
		log.Println("⚠ Email service running in DEV MODE (logging to console)")
	}
	return &EmailService{
		host:    host,
		port:    port,
		user:    user,
		pass:    pass,
		from:    from,
		devMode: devMode,
	}
}

// SendPastDueAlert notifies operators about ACTIVE sessions whose window
// ended longer ago than the configured threshold.
func (s *EmailService) SendPastDueAlert(to string, sessions []models.ActiveSession, now time.Time) error {
	subject := fmt.Sprintf("[commitpact] %d session(s) past due", len(sessions))

	var rows strings.Builder
	for _, session := range sessions {
		overdue := now.Sub(session.WindowEndUTC()).Round(time.Minute)
		rows.WriteString(fmt.Sprintf(
			`<tr><td style="padding: 8px 16px; font-family: monospace;">%s</td><td style="padding: 8px 16px;">%s</td><td style="padding: 8px 16px;">%s</td></tr>`,
			session.ID, session.CalendarDate, overdue,
		))
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 560px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: #dc2626; padding: 24px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 20px; font-weight: 700;">Sessions past due</h1>
    </div>
    <div style="padding: 24px;">
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 16px;">
        The closure scheduler has been unable to close the sessions below. The ledger
        close call keeps failing or the scheduler is not reaching them.
      </p>
      <table style="width: 100%%; border-collapse: collapse; font-size: 13px; color: #1e293b;">
        <tr><th style="text-align: left; padding: 8px 16px;">Session</th><th style="text-align: left; padding: 8px 16px;">Date</th><th style="text-align: left; padding: 8px 16px;">Overdue by</th></tr>
        %s
      </table>
    </div>
  </div>
</body>
</html>`, rows.String())

	return s.sendHTML(to, subject, body)
}

func (s *EmailService) sendHTML(to, subject, htmlBody string) error {
	if s.devMode {
		log.Printf("📧 [DEV EMAIL] To: %s | Subject: %s", to, subject)
		return nil
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	log.Printf("📧 Email sent to %s: %s", to, subject)
	return nil
}

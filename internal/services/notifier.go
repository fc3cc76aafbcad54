package services

import (
	"fmt"
	"net/smtp"

	"github.com/gatherly/backend/internal/config"
	"github.com/gatherly/backend/pkg/logger"
)

// Mailer delivers a single message. Implementations may fail; the
// Notifier owns the policy that failures never reach the caller.
type Mailer interface {
	Send(recipient, subject, body string) error
}

type mailJob struct {
	Recipient string
	Subject   string
	Body      string
}

// Notifier dispatches mail best-effort from a background worker.
// Enqueueing never blocks the request that triggered it, and delivery
// failures are logged and discarded.
type Notifier struct {
	mailer Mailer
	queue  chan mailJob
}

func NewNotifier(mailer Mailer) *Notifier {
	n := &Notifier{
		mailer: mailer,
		queue:  make(chan mailJob, 100),
	}
	go n.processQueue()
	return n
}

func (n *Notifier) Send(recipient, subject, body string) {
	job := mailJob{Recipient: recipient, Subject: subject, Body: body}

	select {
	case n.queue <- job:
	default:
		logger.Warn("notification_queue_full", map[string]interface{}{
			"subject": subject,
			"dropped": true,
		})
	}
}

func (n *Notifier) processQueue() {
	for job := range n.queue {
		if err := n.mailer.Send(job.Recipient, job.Subject, job.Body); err != nil {
			logger.Error("notification_send_failed", err, map[string]interface{}{
				"recipient": job.Recipient,
				"subject":   job.Subject,
			})
			continue
		}
		logger.Info("notification_sent", map[string]interface{}{
			"recipient": job.Recipient,
			"subject":   job.Subject,
		})
	}
}

type smtpMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) Mailer {
	return &smtpMailer{cfg: cfg}
}

func (m *smtpMailer) Send(recipient, subject, body string) error {
	if m.cfg.Host == "" {
		return fmt.Errorf("smtp not configured")
	}

	msg := "From: " + m.cfg.From + "\r\n" +
		"To: " + recipient + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n" +
		body + "\r\n"

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	return smtp.SendMail(addr, auth, m.cfg.From, []string{recipient}, []byte(msg))
}

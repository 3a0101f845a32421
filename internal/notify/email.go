package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/wadatrip/farewatch/internal/store"
)

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// EmailNotifier sends plain-text mail to the contact's address. Contacts
// without an email are skipped.
type EmailNotifier struct {
	Config SMTPConfig
	// send defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates an EmailNotifier.
func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	return &EmailNotifier{Config: cfg, send: smtp.SendMail}
}

func (n *EmailNotifier) Notify(ctx context.Context, contact store.Contact, title, body string, _ map[string]any) error {
	to := strings.TrimSpace(contact.Email)
	if to == "" {
		return nil
	}
	c := n.Config
	if c.Host == "" || c.Username == "" || c.Password == "" || c.Sender == "" {
		return fmt.Errorf("email not configured: set SMTP_HOST/SMTP_USER/SMTP_PASS/SMTP_SENDER")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	greeting := "Hello,"
	if contact.Name != "" {
		greeting = fmt.Sprintf("Hello %s,", contact.Name)
	}
	msg := strings.Join([]string{
		"From: " + c.Sender,
		"To: " + to,
		"Subject: farewatch: " + title,
		"Content-Type: text/plain; charset=UTF-8",
		"",
		greeting,
		"",
		body,
		"",
	}, "\r\n")

	send := n.send
	if send == nil {
		send = smtp.SendMail
	}
	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	auth := smtp.PlainAuth("", c.Username, c.Password, c.Host)
	if err := send(addr, auth, c.Sender, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}

package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"strings"
)

// EmailSender sends notifications via SMTP. The SMTP password is resolved
// from the WARDEN_SMTP_PASSWORD environment variable so it never lands in
// the config file.
type EmailSender struct {
	name     string
	addr     string // host:port
	from     string
	to       []string
	username string
}

// NewEmailSender creates an SMTP-based sender named by its channel ref
// (e.g. "email:oncall@example.com").
func NewEmailSender(name, addr, from, to string) *EmailSender {
	recipients := strings.Split(to, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}
	return &EmailSender{
		name: name,
		addr: addr,
		from: from,
		to:   recipients,
	}
}

func (s *EmailSender) Name() string { return s.name }

func (s *EmailSender) Send(_ context.Context, msg *Message) error {
	if len(s.to) == 0 || s.to[0] == "" {
		return fmt.Errorf("email channel %q has no recipients", s.name)
	}

	subject := msg.Subject
	if subject == "" {
		subject = "[Warden] Notification"
	}

	var b strings.Builder
	b.WriteString("From: " + s.from + "\r\n")
	b.WriteString("To: " + strings.Join(s.to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	var auth smtp.Auth
	if password := os.Getenv("WARDEN_SMTP_PASSWORD"); password != "" {
		host := s.addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		username := s.username
		if username == "" {
			username = s.from
		}
		auth = smtp.PlainAuth("", username, password, host)
	}

	if err := smtp.SendMail(s.addr, auth, s.from, s.to, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPMailer sends mail through a plain SMTP relay (Mailpit locally).
type SMTPMailer struct {
	Addr string
	From string
}

// NewSMTPMailer constructs a mailer for host:port.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{Addr: fmt.Sprintf("%s:%d", host, port), From: from}
}

// Send delivers a single plain-text message.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("notifier: smtp send: %w", err)
	}
	return nil
}

// SendVerificationCode implements Notifier by sending synchronously.
func (m *SMTPMailer) SendVerificationCode(ctx context.Context, email, username, code string) error {
	subject, body := VerificationMessage(username, code)
	return m.Send(ctx, email, subject, body)
}

var _ Notifier = (*SMTPMailer)(nil)

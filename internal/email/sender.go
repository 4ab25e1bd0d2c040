// Package email delivers notification mail over SMTP.
package email

import (
	"context"
	"fmt"
	"html"
	"net"
	"time"

	"leadengine/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// Sender delivers lead notifications to users by mail. A nil Sender is
// valid and delivers nothing.
type Sender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func NewSender(cfg config.EmailConfig) *Sender {
	if cfg.GetSMTPHost() == "" {
		return nil
	}

	return &Sender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

// SendNotification mails one notification to a user. Content is plain text
// from the outbox; it is escaped into a minimal HTML body.
func (s *Sender) SendNotification(ctx context.Context, toEmail, title, content string) error {
	if s == nil {
		return nil
	}

	body := fmt.Sprintf("<html><body><h3>%s</h3><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(content))

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(title)
	msg.SetBodyString(gomail.TypeTextHTML, body)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"cleanops_backend/internal/outbox"
	"cleanops_backend/platform/config"
)

// EmailNotifier delivers outbox entries as plain-text emails over SMTP.
// Entries that carry an email field in the payload are sent to that address;
// everything else goes to the operations inbox.
type EmailNotifier struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	opsInbox  string
}

// NewEmailNotifier creates an SMTP-backed notifier from the email config.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
		opsInbox:  cfg.GetOpsInboxAddress(),
	}
}

var _ Notifier = (*EmailNotifier)(nil)

func (n *EmailNotifier) Deliver(ctx context.Context, entry outbox.Entry) error {
	return n.send(ctx, n.recipient(entry), subjectFor(entry.Type), renderBody(entry))
}

func (n *EmailNotifier) recipient(entry outbox.Entry) string {
	var fields struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(entry.Payload, &fields); err == nil && fields.Email != "" {
		return fields.Email
	}
	return n.opsInbox
}

func (n *EmailNotifier) send(ctx context.Context, toEmail, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(n.fromName, n.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(n.host,
		gomail.WithPort(n.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(n.username),
		gomail.WithPassword(n.password),
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

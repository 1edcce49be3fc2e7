package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"html"
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
)

type MailConfig struct {
	Host     string
	Port     string
	User     string
	Pass     string
	From     string
	TLS      bool
	StartTLS bool
	// Timeout bounds one send. Zero means 30s.
	Timeout time.Duration
}

// MailDispatcher sends access links over SMTP.
type MailDispatcher struct {
	cfg  MailConfig
	send func(e *email.Email) error
}

// NewMailDispatcher validates cfg and returns an SMTP dispatcher.
func NewMailDispatcher(cfg MailConfig) (*MailDispatcher, error) {
	if cfg.Host == "" || cfg.Port == "" || cfg.User == "" || cfg.Pass == "" || cfg.From == "" {
		return nil, errors.New("smtp config missing")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	d := &MailDispatcher{cfg: cfg}
	d.send = d.sendSMTP
	return d, nil
}

// BuildMessage renders the plain link message for recipient.
func (d *MailDispatcher) BuildMessage(recipient, link string) *email.Email {
	e := email.NewEmail()
	e.From = d.cfg.From
	e.To = []string{recipient}
	e.Subject = "A file has been shared with you"
	e.Text = []byte("A file has been shared with you. It can be downloaded once from:\n\n" + link + "\n")
	e.HTML = []byte(`
		<p>A file has been shared with you.</p>
		<a href="` + html.EscapeString(link) + `">Download file</a>
		<p>The link works until every recipient has downloaded the file.</p>
	`)
	return e
}

// Dispatch sends one message and gives up after the configured timeout. The
// SMTP client has no deadline of its own, so a hung send is abandoned.
func (d *MailDispatcher) Dispatch(ctx context.Context, recipient, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	e := d.BuildMessage(recipient, link)
	go func() {
		done <- d.send(e)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send mail to %s: %w", recipient, ctx.Err())
	}
}

func (d *MailDispatcher) sendSMTP(e *email.Email) error {
	addr := d.cfg.Host + ":" + d.cfg.Port
	auth := smtp.PlainAuth("", d.cfg.User, d.cfg.Pass, d.cfg.Host)
	tlsConfig := &tls.Config{ServerName: d.cfg.Host}
	useTLS := d.cfg.TLS || d.cfg.Port == "465"

	if useTLS {
		return e.SendWithTLS(addr, auth, tlsConfig)
	}
	if d.cfg.StartTLS {
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}

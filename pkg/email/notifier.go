// Copyright 2024-2026 Aiku AI

// Package email delivers notifications over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"github.com/aiku/threadtag/pkg/conversation"
	"github.com/aiku/threadtag/pkg/conversation/textfmt"
)

// Config holds the SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS is "mandatory", "opportunistic" or "none".
	TLS     string
	Timeout time.Duration
}

// Notifier sends notifications as e-mail. HTML bodies get a plain text
// alternative. Each Send dials its own SMTP session, so concurrent sends do
// not wait on each other.
type Notifier struct {
	host string
	opts []mail.Option
	from string
	log  zerolog.Logger
}

var _ conversation.Notifier = (*Notifier)(nil)

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case "", "opportunistic":
		return mail.TLSOpportunistic, nil
	case "mandatory":
		return mail.TLSMandatory, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("unknown TLS policy %q", name)
	}
}

// NewNotifier creates an SMTP notifier from cfg.
func NewNotifier(cfg Config, log zerolog.Logger) (*Notifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}
	opts := []mail.Option{mail.WithTLSPolicy(policy)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if _, err = mail.NewClient(cfg.Host, opts...); err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err = mail.NewMsg().From(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	return &Notifier{
		host: cfg.Host,
		opts: opts,
		from: cfg.From,
		log:  log.With().Str("component", "smtp_notifier").Logger(),
	}, nil
}

func (n *Notifier) message(address, subject, body string, isHTML bool) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return nil, err
	}
	if err := msg.To(address); err != nil {
		return nil, fmt.Errorf("%w: %v", conversation.ErrUnsupportedAddress, err)
	}
	msg.Subject(subject)
	if isHTML {
		msg.SetBodyString(mail.TypeTextPlain, textfmt.Plain(body))
		msg.AddAlternativeString(mail.TypeTextHTML, body)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, body)
	}
	return msg, nil
}

func (n *Notifier) Send(ctx context.Context, address, subject, body string, isHTML bool) error {
	msg, err := n.message(address, subject, body, isHTML)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(n.host, n.opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err = client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	n.log.Debug().Str("address", address).Msg("Sent notification mail")
	return nil
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers account notifications over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeberg.org/truepet/adopet/internal/config"
	"codeberg.org/truepet/adopet/internal/i18n"
	"github.com/wneessen/go-mail"
)

// DefaultTimeout bounds a single SMTP delivery when none is configured.
const DefaultTimeout = 10 * time.Second

var (
	errMissingHost = errors.New("SMTP host is required")
	errMissingFrom = errors.New("SMTP from address is required")
)

// Service sends localized emails via SMTP.
type Service struct {
	cfg *config.SMTPConfig
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig) (*Service, error) {
	if cfg.Host == "" {
		return nil, errMissingHost
	}
	if cfg.From == "" {
		return nil, errMissingFrom
	}
	return &Service{cfg: cfg}, nil
}

// SendResetCode mails a password recovery code in the locale carried by ctx.
func (s *Service) SendResetCode(ctx context.Context, toEmail, name, code string, ttl time.Duration) error {
	msg, err := s.resetCodeMessage(ctx, toEmail, name, code, ttl)
	if err != nil {
		return err
	}
	return s.send(ctx, msg)
}

func (s *Service) resetCodeMessage(ctx context.Context, toEmail, name, code string, ttl time.Duration) (*mail.Msg, error) {
	if name == "" {
		name = toEmail
	}
	subject := i18n.T(ctx, "email_reset_code_subject")
	body := i18n.TData(ctx, "email_reset_code_body", map[string]any{
		"Name":    name,
		"Code":    code,
		"Minutes": int(ttl.Minutes()),
	})
	return s.newMessage(toEmail, subject, body)
}

func (s *Service) newMessage(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// send delivers msg via SMTP using go-mail.
func (s *Service) send(ctx context.Context, msg *mail.Msg) error {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(timeout),
	}

	// Implicit TLS on 465, STARTTLS elsewhere
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

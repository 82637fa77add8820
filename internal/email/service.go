// Package email delivers transactional mail. Two providers are supported:
// the Resend API and plain SMTP with STARTTLS. When delivery is disabled the
// service logs what it would have sent, which is the mode used in tests and
// local development.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/civicsquare/server/internal/config"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

// confirmationTemplate is the account-confirmation email body. It is small
// enough to keep inline rather than shipping a template directory.
const confirmationTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Confirm your CivicSquare account</h2>
  <p>Hi {{.FirstName}},</p>
  <p>Thanks for signing up. Click the link below to confirm your email address
  and activate your account:</p>
  <p><a href="{{.ConfirmURL}}">Confirm my account</a></p>
  <p>If you did not create this account, you can ignore this message.</p>
  <p style="color: #888; font-size: 12px;">&copy; {{.CurrentYear}} CivicSquare</p>
</body>
</html>`

// ConfirmationData feeds the confirmation email template.
type ConfirmationData struct {
	FirstName   string
	ConfirmURL  string
	CurrentYear int
}

type Service struct {
	config       config.EmailConfig
	template     *template.Template
	resendClient *resend.Client
	logger       zerolog.Logger
}

func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	tmpl, err := template.New("confirmation").Parse(confirmationTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse confirmation template: %w", err)
	}

	svc := &Service{
		config:   cfg,
		template: tmpl,
		logger:   logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled && cfg.Provider == "resend" {
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend provider selected but RESEND_API_KEY is empty")
		}
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// SendConfirmation sends the account-confirmation email.
func (s *Service) SendConfirmation(ctx context.Context, to, firstName, confirmURL string) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}
	if err := validateLinkURL(confirmURL); err != nil {
		return fmt.Errorf("invalid confirmation link: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Str("link", confirmURL).
			Msg("email delivery disabled, skipping confirmation email")
		return nil
	}

	var body bytes.Buffer
	err := s.template.Execute(&body, ConfirmationData{
		FirstName:   firstName,
		ConfirmURL:  confirmURL,
		CurrentYear: time.Now().Year(),
	})
	if err != nil {
		return fmt.Errorf("render confirmation template: %w", err)
	}

	subject := "Confirm your CivicSquare account"
	if err := s.send(ctx, to, subject, body.String()); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}

	s.logger.Info().Str("to", to).Msg("confirmation email sent")
	return nil
}

func (s *Service) send(ctx context.Context, to, subject, htmlBody string) error {
	switch s.config.Provider {
	case "resend":
		return s.sendViaResend(ctx, to, subject, htmlBody)
	case "smtp":
		return s.sendViaSMTP(to, subject, htmlBody)
	default:
		return fmt.Errorf("unknown email provider %q", s.config.Provider)
	}
}

// validateEmailAddress checks format and rejects header injection attempts.
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}

// validateLinkURL requires an http(s) URL with a host, rejecting javascript:
// and data: schemes that could end up in the rendered email.
func validateLinkURL(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

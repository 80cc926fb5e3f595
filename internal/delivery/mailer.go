package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

var (
	ErrEmailDisabled = errors.New("email delivery is not configured")
	ErrTextDisabled  = errors.New("text delivery is not configured")
	ErrInvalidEmail  = errors.New("invalid email address")
)

// Email is one outbound message.
type Email struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
	// InlineImage is a file embedded under InlinePhotoID. Missing files are
	// skipped.
	InlineImage string
}

// Mailer sends email. Implementations return an error the caller may retry.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// Texter sends a text message to an E.164 phone number.
type Texter interface {
	SendText(ctx context.Context, phone, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers mail through an SMTP server with STARTTLS.
type SMTPMailer struct {
	cfg SMTPConfig
	log zerolog.Logger
}

func NewSMTPMailer(cfg SMTPConfig, log zerolog.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, log: log.With().Str("component", "smtp").Logger()}
}

// Send opens a connection per message.
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	msg, err := m.build(email)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", email.To, err)
	}

	m.log.Debug().Str("to", email.To).Str("subject", email.Subject).Msg("mail sent")
	return nil
}

func (m *SMTPMailer) build(email Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("%w: sender %q: %w", ErrInvalidEmail, m.cfg.From, err)
	}
	if err := msg.AddToFormat(email.ToName, email.To); err != nil {
		return nil, fmt.Errorf("%w: recipient %q: %w", ErrInvalidEmail, email.To, err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextPlain, email.Text)
	if email.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, email.HTML)
	}
	if email.InlineImage != "" {
		if _, err := os.Stat(email.InlineImage); err == nil {
			msg.EmbedFile(email.InlineImage, mail.WithFileContentID(InlinePhotoID))
		}
	}
	return msg, nil
}

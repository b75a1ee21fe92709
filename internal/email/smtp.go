package email

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/dropDatabas3/hellodoc/internal/logger"
	mail "github.com/go-mail/mail"
	"go.uber.org/zap"
)

// SMTPConfig de entrega.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLSMode  string // "auto" | "starttls" | "ssl" | "none"
}

// SMTPSender implementa Sender con go-mail.
type SMTPSender struct {
	cfg SMTPConfig
	log *zap.Logger
}

func NewSMTPSender(cfg SMTPConfig, log *zap.Logger) *SMTPSender {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	return &SMTPSender{cfg: cfg, log: logger.Or(log, "email.smtp")}
}

func (s *SMTPSender) message(m Message) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	// multipart/alternative (txt + html)
	if m.Text != "" {
		msg.SetBody("text/plain", m.Text)
	}
	if m.HTML != "" {
		if m.Text == "" {
			msg.SetBody("text/html", m.HTML)
		} else {
			msg.AddAlternative("text/html", m.HTML)
		}
	}
	return msg
}

func (s *SMTPSender) dialer() *mail.Dialer {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	return d
}

// Send entrega el mensaje. go-mail no acepta contexto: sólo se chequea antes de dialar.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := s.log.With(zap.String("host", s.cfg.Host), zap.Int("port", s.cfg.Port))
	if err := s.dialer().DialAndSend(s.message(m)); err != nil {
		log.Error("smtp send failed", logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Debug("email sent", zap.String("subject", m.Subject))
	return nil
}

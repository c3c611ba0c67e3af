package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers messages to an SMTP relay.
type SMTPSender struct {
	config SMTPConfig
	dialer net.Dialer
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTPSender creates an SMTPSender. Port defaults to 25.
func NewSMTPSender(config SMTPConfig, logger *slog.Logger) *SMTPSender {
	if config.Port == 0 {
		config.Port = 25
	}
	return &SMTPSender{
		config: config,
		logger: logger.With("component", "smtp_sender"),
		now:    time.Now,
	}
}

// Send composes msg and delivers it. The context bounds the whole SMTP
// conversation.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	data, err := Compose(s.config.From, msg, s.now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := s.deliver(c, msg.To, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	s.logger.Info("mail sent", "subject", msg.Subject, "attachments", len(msg.Attachments))
	return nil
}

func (s *SMTPSender) deliver(c *smtp.Client, to string, data []byte) error {
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.config.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}
	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}
	if err := c.Mail(s.config.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return c.Quit()
}

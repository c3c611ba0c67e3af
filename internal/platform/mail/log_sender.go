package mail

import (
	"context"
	"log/slog"
	"time"
)

// LogSender composes messages and logs a summary instead of sending them.
// It is used when no SMTP host is configured.
type LogSender struct {
	from   string
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(from string, logger *slog.Logger) *LogSender {
	return &LogSender{from: from, logger: logger.With("component", "log_sender")}
}

// Send validates and composes msg, then logs it.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Compose(s.from, msg, time.Now())
	if err != nil {
		return err
	}

	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	s.logger.Info("mail not sent, no smtp host configured",
		"subject", msg.Subject,
		"attachments", names,
		"size_bytes", len(data))
	return nil
}

// NewSender returns an SMTPSender when config.Host is set and a LogSender
// otherwise.
func NewSender(config SMTPConfig, logger *slog.Logger) Sender {
	if config.Host == "" {
		return NewLogSender(config.From, logger)
	}
	return NewSMTPSender(config, logger)
}

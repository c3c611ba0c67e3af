// Package mail composes and sends outbound e-mail. Messages are built as
// MIME documents with github.com/emersion/go-message and delivered over SMTP,
// or written to the log when no SMTP host is configured.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Common errors
var (
	ErrNoRecipient = errors.New("message has no recipient")
	ErrNoSender    = errors.New("message has no sender")
)

// Attachment is a file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outbound e-mail with a plain-text body.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Compose renders msg as an RFC 5322 message from the given address. Bodies
// are UTF-8 plain text; attachments default to application/octet-stream.
func Compose(from string, msg Message, now time.Time) ([]byte, error) {
	if strings.TrimSpace(from) == "" {
		return nil, ErrNoSender
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, ErrNoRecipient
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline part: %w", err)
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := tw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := io.WriteString(pw, msg.Body); err != nil {
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	if err := pw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close body part: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close inline part: %w", err)
	}

	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		var ah mail.AttachmentHeader
		ah.SetContentType(contentType, nil)
		ah.SetFilename(a.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment %s: %w", a.Filename, err)
		}
		if _, err := aw.Write(a.Data); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", a.Filename, err)
		}
		if err := aw.Close(); err != nil {
			return nil, fmt.Errorf("failed to close attachment %s: %w", a.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}

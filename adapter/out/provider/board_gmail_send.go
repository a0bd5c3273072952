package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
)

// SendMessage builds an RFC 2822 message and sends it through Gmail.
func (a *GmailAdapter) SendMessage(ctx context.Context, token *oauth2.Token, msg *domain.OutgoingMessage) (*out.ProviderSendResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, out.NewProviderError("gmail", out.ProviderErrInvalidInput, err.Error(), err, false)
	}

	raw := buildRawMessage(msg)
	if len(raw) > domain.MaxOutgoingSize {
		return nil, out.NewProviderError("gmail", out.ProviderErrInvalidInput,
			domain.ErrMessageTooLarge.Error(), domain.ErrMessageTooLarge, false)
	}

	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}
	if msg.ThreadID != "" {
		gmailMsg.ThreadId = msg.ThreadID
	}

	var sent *gmail.Message
	err = a.executeWithCircuitBreaker(ctx, "send_message", func() error {
		var callErr error
		sent, callErr = svc.Users.Messages.Send("me", gmailMsg).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to send message")
	}

	return &out.ProviderSendResult{
		ExternalID: sent.Id,
		ThreadID:   sent.ThreadId,
		Labels:     sent.LabelIds,
	}, nil
}

// buildRawMessage assembles the RFC 2822 wire form. Text and HTML
// bodies together produce multipart/alternative.
func buildRawMessage(msg *domain.OutgoingMessage) string {
	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	if len(msg.Cc) > 0 {
		buf.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(msg.Cc, ", ")))
	}
	if len(msg.Bcc) > 0 {
		buf.WriteString(fmt.Sprintf("Bcc: %s\r\n", strings.Join(msg.Bcc, ", ")))
	}
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	if msg.InReplyTo != "" {
		buf.WriteString(fmt.Sprintf("In-Reply-To: %s\r\n", msg.InReplyTo))
	}
	if msg.References != "" {
		buf.WriteString(fmt.Sprintf("References: %s\r\n", msg.References))
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case msg.BodyText != "" && msg.BodyHTML != "":
		boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())
		buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(msg.BodyText)
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(msg.BodyHTML)
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	case msg.BodyHTML != "":
		buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(msg.BodyHTML)

	default:
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(msg.BodyText)
	}

	return buf.String()
}

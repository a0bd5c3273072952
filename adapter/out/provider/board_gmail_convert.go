package provider

import (
	"encoding/base64"
	"net/mail"
	"time"

	"mailboard_server/core/port/out"

	"google.golang.org/api/gmail/v1"
)

// convertMessage maps a Gmail API message into the provider DTO.
func (a *GmailAdapter) convertMessage(msg *gmail.Message) out.ProviderMessage {
	result := out.ProviderMessage{
		ExternalID: msg.Id,
		ThreadID:   msg.ThreadId,
		Labels:     msg.LabelIds,
		Snippet:    msg.Snippet,
	}

	if msg.InternalDate > 0 {
		result.InternalDate = time.Unix(0, msg.InternalDate*int64(time.Millisecond))
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				result.Subject = h.Value
			case "From":
				name, email := parseEmailAddress(h.Value)
				result.SenderName = name
				result.SenderEmail = email
			case "To":
				result.Recipients = parseEmailAddresses(h.Value)
			case "Cc":
				result.CcAddresses = parseEmailAddresses(h.Value)
			case "Message-ID":
				result.MessageIDHdr = h.Value
			case "Date":
				if result.InternalDate.IsZero() {
					if t, err := mail.ParseDate(h.Value); err == nil {
						result.InternalDate = t
					}
				}
			}
		}

		var body messageBody
		extractBody(msg.Payload, &body)
		result.BodyHTML = body.html
		result.BodyText = body.text

		result.Attachments = extractAttachments(msg.Payload)
	}

	return result
}

type messageBody struct {
	text string
	html string
}

// extractBody walks MIME parts collecting the first text/plain and
// text/html bodies.
func extractBody(part *gmail.MessagePart, body *messageBody) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if body.text == "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					body.text = string(data)
				}
			}
		case "text/html":
			if body.html == "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					body.html = string(data)
				}
			}
		}
	}

	for _, p := range part.Parts {
		extractBody(p, body)
	}
}

// extractAttachments walks MIME parts collecting attachment metadata.
// A part with a filename is an attachment; the attachment id is only
// present in full format.
func extractAttachments(part *gmail.MessagePart) []*out.ProviderAttachment {
	var attachments []*out.ProviderAttachment

	if part.Filename != "" {
		att := &out.ProviderAttachment{
			Filename: part.Filename,
			MimeType: part.MimeType,
		}
		if part.Body != nil {
			att.AttachmentID = part.Body.AttachmentId
			att.Size = part.Body.Size
		}
		attachments = append(attachments, att)
	}

	for _, p := range part.Parts {
		attachments = append(attachments, extractAttachments(p)...)
	}

	return attachments
}

// parseEmailAddress splits `"Name" <addr>` into its parts, falling
// back to the raw string as the address.
func parseEmailAddress(s string) (name, email string) {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", s
	}
	return addr.Name, addr.Address
}

func parseEmailAddresses(s string) []string {
	list, err := mail.ParseAddressList(s)
	if err != nil {
		if s != "" {
			return []string{s}
		}
		return nil
	}

	result := make([]string, len(list))
	for i, addr := range list {
		result[i] = addr.Address
	}
	return result
}

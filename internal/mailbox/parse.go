package mailbox

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/xxxsen/maildigest/internal/model"
)

// parseMessage decodes one RFC 5322 message into the model. Attachments over
// the size cap and undecodable parts are kept as error entries so the digest
// still mentions them.
func parseMessage(r io.Reader, maxAttachmentBytes int) (*model.InboundEmail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}

	email := &model.InboundEmail{}
	if id, err := mr.Header.MessageID(); err == nil {
		email.MessageID = id
	}
	if subject, err := mr.Header.Subject(); err == nil {
		email.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		email.ReceivedAt = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		email.Sender = from[0].Address
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}
		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := header.ContentType()
			if email.Body == "" && strings.HasPrefix(contentType, "text/plain") {
				data, err := io.ReadAll(part.Body)
				if err != nil {
					return nil, fmt.Errorf("read body: %w", err)
				}
				email.Body = strings.TrimSpace(string(data))
			}
		case *mail.AttachmentHeader:
			filename, err := header.Filename()
			if err != nil || filename == "" {
				filename = "(unnamed attachment)"
			}
			contentType, _, _ := header.ContentType()
			att := &model.Attachment{Filename: filename, MediaType: contentType}
			data, err := io.ReadAll(io.LimitReader(part.Body, int64(maxAttachmentBytes)+1))
			switch {
			case err != nil:
				att.Err = fmt.Sprintf("attachment could not be decoded: %v", err)
			case len(data) > maxAttachmentBytes:
				att.Err = fmt.Sprintf("attachment exceeds the %d byte limit", maxAttachmentBytes)
			default:
				att.Data = data
			}
			email.Attachments = append(email.Attachments, att)
		}
	}
	return email, nil
}

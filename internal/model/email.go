package model

import "time"

// Attachment is a raw email attachment before normalization to PDF. If Err is
// set the payload could not be retrieved: Data is nil and the attachment only
// shows up in the digest as unavailable, never silently missing.
type Attachment struct {
	Filename  string
	MediaType string
	Data      []byte
	Err       string
}

// InboundEmail is one fetched message with its text body and attachments.
type InboundEmail struct {
	MessageID   string
	Subject     string
	Sender      string
	ReceivedAt  time.Time
	Body        string
	Attachments []*Attachment
}

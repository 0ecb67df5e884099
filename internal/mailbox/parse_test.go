package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMessage = `Message-ID: <m1@example.com>
Subject: Quarterly numbers
From: Alice <alice@example.com>
Date: Sun, 30 Aug 2026 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=utf-8

Hello, see attached.
--BOUNDARY
Content-Type: application/pdf
Content-Disposition: attachment; filename="report.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQ=
--BOUNDARY--
`

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestParseMessage(t *testing.T) {
	email, err := parseMessage(strings.NewReader(crlf(sampleMessage)), 1<<20)
	require.NoError(t, err)
	require.Equal(t, "m1@example.com", email.MessageID)
	require.Equal(t, "Quarterly numbers", email.Subject)
	require.Equal(t, "alice@example.com", email.Sender)
	require.Equal(t, "Hello, see attached.", email.Body)
	require.Equal(t, 2026, email.ReceivedAt.Year())

	require.Len(t, email.Attachments, 1)
	att := email.Attachments[0]
	require.Equal(t, "report.pdf", att.Filename)
	require.Equal(t, "application/pdf", att.MediaType)
	require.Equal(t, []byte("%PDF-1.4"), att.Data)
	require.Empty(t, att.Err)
}

func TestParseMessageMarksOversizedAttachment(t *testing.T) {
	email, err := parseMessage(strings.NewReader(crlf(sampleMessage)), 4)
	require.NoError(t, err)
	require.Equal(t, "Hello, see attached.", email.Body)

	// the oversized attachment is kept as an error entry, not dropped
	require.Len(t, email.Attachments, 1)
	att := email.Attachments[0]
	require.Equal(t, "report.pdf", att.Filename)
	require.Nil(t, att.Data)
	require.Contains(t, att.Err, "exceeds the 4 byte limit")
}

func TestParseMessageUnnamedAttachment(t *testing.T) {
	msg := `Subject: odd sender
From: bob@example.com
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=utf-8

see attached
--BOUNDARY
Content-Type: application/octet-stream
Content-Disposition: attachment

payload
--BOUNDARY--
`
	email, err := parseMessage(strings.NewReader(crlf(msg)), 1<<20)
	require.NoError(t, err)
	require.Len(t, email.Attachments, 1)
	require.Equal(t, "(unnamed attachment)", email.Attachments[0].Filename)
	require.Equal(t, []byte("payload"), email.Attachments[0].Data)
}

func TestParseMessagePlainBodyOnly(t *testing.T) {
	msg := `Subject: no attachments
From: bob@example.com
Content-Type: text/plain; charset=utf-8

just a line of text
`
	email, err := parseMessage(strings.NewReader(crlf(msg)), 1<<20)
	require.NoError(t, err)
	require.Equal(t, "no attachments", email.Subject)
	require.Equal(t, "just a line of text", email.Body)
	require.Empty(t, email.Attachments)
}

func TestParseMessageGarbage(t *testing.T) {
	_, err := parseMessage(strings.NewReader("Content-Type: multipart/mixed\r\n\r\nnot mime"), 1<<20)
	require.Error(t, err)
}

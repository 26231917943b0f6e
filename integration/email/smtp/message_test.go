package smtp

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apascal07/mailroom/core/mail"
)

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	t.Run("routing headers", func(t *testing.T) {
		t.Parallel()

		payload := &mail.Payload{
			To:  []string{"a@example.com", "b@example.com"},
			Cc:  []string{"c@example.com"},
			Bcc: []string{"hidden@example.com"},
			Message: mail.Message{
				From:    "Mailroom <mailer@example.com>",
				ReplyTo: "support@example.com",
				Subject: "Welcome",
				Text:    "hello",
			},
		}

		msg := string(buildMessage(payload, "<abc@example.com>"))

		assert.Contains(t, msg, "From: Mailroom <mailer@example.com>\r\n")
		assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
		assert.Contains(t, msg, "Cc: c@example.com\r\n")
		assert.Contains(t, msg, "Reply-To: support@example.com\r\n")
		assert.Contains(t, msg, "Subject: Welcome\r\n")
		assert.Contains(t, msg, "Message-ID: <abc@example.com>\r\n")
		assert.Contains(t, msg, "MIME-Version: 1.0\r\n")
		assert.NotContains(t, msg, "hidden@example.com")
	})

	t.Run("bcc-only payload omits the To header", func(t *testing.T) {
		t.Parallel()

		payload := &mail.Payload{
			Bcc: []string{"hidden@example.com"},
			Message: mail.Message{
				From: "mailer@example.com",
				Text: "hello",
			},
		}

		msg := string(buildMessage(payload, "<abc@example.com>"))

		assert.NotContains(t, msg, "\r\nTo:")
		assert.NotContains(t, msg, "hidden@example.com")
	})

	t.Run("custom headers carried, reserved headers dropped", func(t *testing.T) {
		t.Parallel()

		payload := &mail.Payload{
			To: []string{"a@example.com"},
			Message: mail.Message{
				From: "mailer@example.com",
				Text: "hello",
				Headers: map[string]string{
					"X-Campaign": "onboarding",
					"From":       "spoofed@example.com",
					"bcc":        "sneaky@example.com",
				},
			},
		}

		msg := string(buildMessage(payload, "<abc@example.com>"))

		assert.Contains(t, msg, "X-Campaign: onboarding\r\n")
		assert.NotContains(t, msg, "spoofed@example.com")
		assert.NotContains(t, msg, "sneaky@example.com")
	})

	t.Run("text only body", func(t *testing.T) {
		t.Parallel()

		payload := &mail.Payload{
			To:      []string{"a@example.com"},
			Message: mail.Message{From: "m@example.com", Text: "plain body"},
		}

		msg := string(buildMessage(payload, "<abc@example.com>"))

		assert.Contains(t, msg, `Content-Type: text/plain; charset="UTF-8"`)
		assert.NotContains(t, msg, "multipart/alternative")
		assert.Contains(t, msg, base64.StdEncoding.EncodeToString([]byte("plain body")))
	})

	t.Run("html only body", func(t *testing.T) {
		t.Parallel()

		payload := &mail.Payload{
			To:      []string{"a@example.com"},
			Message: mail.Message{From: "m@example.com", HTML: "<h1>hi</h1>"},
		}

		msg := string(buildMessage(payload, "<abc@example.com>"))

		assert.Contains(t, msg, `Content-Type: text/html; charset="UTF-8"`)
		assert.NotContains(t, msg, "multipart")
	})

	t.Run("text and html become multipart alternative", func(t *testing.T) {
		t.Parallel()

		payload := &mail.Payload{
			To: []string{"a@example.com"},
			Message: mail.Message{
				From: "m@example.com",
				Text: "hello",
				HTML: "<p>hello</p>",
			},
		}

		msg := string(buildMessage(payload, "<abc@example.com>"))

		assert.Contains(t, msg, "multipart/alternative")
		assert.Contains(t, msg, `Content-Type: text/plain; charset="UTF-8"`)
		assert.Contains(t, msg, `Content-Type: text/html; charset="UTF-8"`)
	})

	t.Run("attachments wrap the body in multipart mixed", func(t *testing.T) {
		t.Parallel()

		payload := &mail.Payload{
			To: []string{"a@example.com"},
			Message: mail.Message{
				From: "m@example.com",
				Text: "see attachment",
				Attachments: []mail.Attachment{
					{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")},
					{Filename: "raw.bin", Content: []byte{0x00, 0x01}},
				},
			},
		}

		msg := string(buildMessage(payload, "<abc@example.com>"))

		assert.Contains(t, msg, "multipart/mixed")
		assert.Contains(t, msg, `Content-Type: application/pdf; name="report.pdf"`)
		assert.Contains(t, msg, `Content-Disposition: attachment; filename="report.pdf"`)
		assert.Contains(t, msg, `Content-Type: application/octet-stream; name="raw.bin"`)
		assert.Contains(t, msg, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")))
	})

	t.Run("long bodies wrap at 76 characters", func(t *testing.T) {
		t.Parallel()

		payload := &mail.Payload{
			To:      []string{"a@example.com"},
			Message: mail.Message{From: "m@example.com", Text: strings.Repeat("x", 500)},
		}

		msg := string(buildMessage(payload, "<abc@example.com>"))

		_, body, found := strings.Cut(msg, "\r\n\r\n")
		require.True(t, found)
		for _, line := range strings.Split(strings.TrimSpace(body), "\r\n") {
			assert.LessOrEqual(t, len(line), 76)
		}
	})
}

func TestEnvelopeFrom(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "mailer@example.com", envelopeFrom("mailer@example.com"))
	assert.Equal(t, "mailer@example.com", envelopeFrom("Mailroom <mailer@example.com>"))
	assert.Equal(t, "mailer@example.com", envelopeFrom("<mailer@example.com>"))
}

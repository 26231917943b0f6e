package smtp

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apascal07/mailroom/core/mail"
)

// Client implements the mail.Transport interface using standard SMTP protocol.
// Supports multiple TLS modes (STARTTLS, TLS, plain) and is thread-safe for
// concurrent use: each Send opens its own connection.
type Client struct {
	config Config
	auth   smtp.Auth
}

// New creates an SMTP-backed mail transport.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: Host is required", mail.ErrInvalidConfig)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: Port must be between 1 and 65535", mail.ErrInvalidConfig)
	}
	if (cfg.Username == "") != (cfg.Password == "") {
		return nil, fmt.Errorf("%w: Username and Password must be set together", mail.ErrInvalidConfig)
	}
	if cfg.TLSMode != "starttls" && cfg.TLSMode != "tls" && cfg.TLSMode != "plain" {
		return nil, fmt.Errorf("%w: TLSMode must be starttls, tls, or plain", mail.ErrInvalidConfig)
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &Client{
		config: cfg,
		auth:   auth,
	}, nil
}

// MustNew creates an SMTP client that panics on invalid config.
// Follows the pattern of failing fast during initialization rather than
// allowing a broken service to start.
func MustNew(cfg Config) *Client {
	client, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Send implements mail.Transport using SMTP protocol. Each recipient is
// offered to the server individually so the result carries per-recipient
// accepted and rejected lists; the send fails only when every recipient is
// rejected or the transaction itself breaks.
func (c *Client) Send(ctx context.Context, payload *mail.Payload) (*mail.SendResult, error) {
	// Check if context is already cancelled
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(mail.ErrFailedToSend, err)
	}

	if payload.Message.From == "" {
		return nil, fmt.Errorf("%w: missing sender address", mail.ErrFailedToSend)
	}
	recipients := payload.Recipients()
	if len(recipients) == 0 {
		return nil, mail.ErrNoRecipients
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), c.config.Host)
	message := buildMessage(payload, messageID)

	serverAddr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))

	result, err := c.send(serverAddr, envelopeFrom(payload.Message.From), recipients, message)
	if err != nil {
		return nil, errors.Join(mail.ErrFailedToSend, err)
	}
	result.MessageID = messageID

	return result, nil
}

// send dials the server in the configured TLS mode and runs the transaction.
func (c *Client) send(serverAddr, from string, recipients []string, message []byte) (*mail.SendResult, error) {
	var (
		client *smtp.Client
		err    error
	)

	switch c.config.TLSMode {
	case "tls":
		tlsConfig := &tls.Config{ServerName: c.config.Host}
		conn, dialErr := tls.Dial("tcp", serverAddr, tlsConfig)
		if dialErr != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server with TLS: %w", dialErr)
		}
		client, err = smtp.NewClient(conn, c.config.Host)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to create SMTP client: %w", err)
		}
	case "starttls":
		client, err = smtp.Dial(serverAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		tlsConfig := &tls.Config{ServerName: c.config.Host}
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	default: // plain
		client, err = smtp.Dial(serverAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
	}
	defer func() { _ = client.Close() }()

	return c.performTransaction(client, from, recipients, message)
}

// performTransaction performs the actual SMTP transaction, tracking the
// server's verdict for each envelope recipient.
func (c *Client) performTransaction(client *smtp.Client, from string, recipients []string, message []byte) (*mail.SendResult, error) {
	if c.auth != nil {
		if err := client.Auth(c.auth); err != nil {
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return nil, fmt.Errorf("failed to set sender: %w", err)
	}

	result := &mail.SendResult{}
	var lastRcptErr error
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			result.Rejected = append(result.Rejected, rcpt)
			lastRcptErr = err
			continue
		}
		result.Accepted = append(result.Accepted, rcpt)
	}

	if len(result.Accepted) == 0 {
		return nil, fmt.Errorf("all recipients rejected: %w", lastRcptErr)
	}

	writer, err := client.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to get data writer: %w", err)
	}

	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write message: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close data writer: %w", err)
	}

	result.Response = "250 message accepted"

	if err := client.Quit(); err != nil {
		// Quit errors are non-fatal as the message was already sent.
		// Some servers close the connection immediately after DATA.
		return result, nil
	}

	return result, nil
}

// envelopeFrom strips an RFC 5322 display name down to the bare address for
// the MAIL FROM command.
func envelopeFrom(from string) string {
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.LastIndex(from, ">"); end > start {
			return from[start+1 : end]
		}
	}
	return from
}

// buildMessage creates the MIME-formatted email message. Bcc recipients are
// intentionally absent from the headers; they travel only in the envelope.
func buildMessage(payload *mail.Payload, messageID string) []byte {
	msg := payload.Message

	var b strings.Builder
	writeHeader(&b, "From", msg.From)
	if len(payload.To) > 0 {
		writeHeader(&b, "To", strings.Join(payload.To, ", "))
	}
	if len(payload.Cc) > 0 {
		writeHeader(&b, "Cc", strings.Join(payload.Cc, ", "))
	}
	if msg.ReplyTo != "" {
		writeHeader(&b, "Reply-To", msg.ReplyTo)
	}
	writeHeader(&b, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&b, "Date", time.Now().Format(time.RFC1123Z))
	writeHeader(&b, "Message-ID", messageID)
	for key, value := range msg.Headers {
		if isReservedHeader(key) {
			continue
		}
		writeHeader(&b, key, value)
	}
	writeHeader(&b, "MIME-Version", "1.0")

	writeBody(&b, &msg)

	return []byte(b.String())
}

// reservedHeaders cannot be overridden through the free-form headers field.
var reservedHeaders = map[string]struct{}{
	"from":         {},
	"to":           {},
	"cc":           {},
	"bcc":          {},
	"reply-to":     {},
	"subject":      {},
	"date":         {},
	"message-id":   {},
	"mime-version": {},
	"content-type": {},
}

func isReservedHeader(key string) bool {
	_, ok := reservedHeaders[strings.ToLower(key)]
	return ok
}

func writeHeader(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// writeBody writes the Content-Type header and body parts. Messages with
// attachments become multipart/mixed; messages with both text and HTML become
// multipart/alternative; single-body messages stay flat.
func writeBody(b *strings.Builder, msg *mail.Message) {
	switch {
	case len(msg.Attachments) > 0:
		boundary := newBoundary()
		writeHeader(b, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", boundary))
		b.WriteString("\r\n")

		b.WriteString("--" + boundary + "\r\n")
		writeAlternative(b, msg)

		for _, att := range msg.Attachments {
			contentType := att.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			b.WriteString("--" + boundary + "\r\n")
			writeHeader(b, "Content-Type", fmt.Sprintf("%s; name=%q", contentType, att.Filename))
			writeHeader(b, "Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
			writeHeader(b, "Content-Transfer-Encoding", "base64")
			b.WriteString("\r\n")
			writeBase64(b, att.Content)
		}
		b.WriteString("--" + boundary + "--\r\n")

	default:
		writeAlternative(b, msg)
	}
}

// writeAlternative writes the text/HTML bodies, nesting them in a
// multipart/alternative part when both are present.
func writeAlternative(b *strings.Builder, msg *mail.Message) {
	switch {
	case msg.Text != "" && msg.HTML != "":
		boundary := newBoundary()
		writeHeader(b, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
		b.WriteString("\r\n")
		b.WriteString("--" + boundary + "\r\n")
		writeTextPart(b, "text/plain", msg.Text)
		b.WriteString("--" + boundary + "\r\n")
		writeTextPart(b, "text/html", msg.HTML)
		b.WriteString("--" + boundary + "--\r\n")
	case msg.HTML != "":
		writeTextPart(b, "text/html", msg.HTML)
	default:
		writeTextPart(b, "text/plain", msg.Text)
	}
}

func writeTextPart(b *strings.Builder, contentType, body string) {
	writeHeader(b, "Content-Type", contentType+`; charset="UTF-8"`)
	writeHeader(b, "Content-Transfer-Encoding", "base64")
	b.WriteString("\r\n")
	writeBase64(b, []byte(body))
}

// writeBase64 writes base64-encoded content wrapped at 76 characters per
// RFC 2045.
func writeBase64(b *strings.Builder, content []byte) {
	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	if len(encoded) > 0 {
		b.WriteString(encoded)
		b.WriteString("\r\n")
	}
}

func newBoundary() string {
	return "=_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

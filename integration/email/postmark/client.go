package postmark

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"

	"github.com/apascal07/mailroom/core/mail"
)

// Client implements the mail.Transport interface using Postmark's
// transactional API.
type Client struct {
	client *postmark.Client
	config Config
}

// New creates a Postmark-backed mail transport.
// The server token is required for runtime operation - this enforces
// explicit configuration rather than silent failures in production.
func New(cfg Config) (*Client, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: ServerToken is required", mail.ErrInvalidConfig)
	}

	return &Client{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config: cfg,
	}, nil
}

// MustNew creates a Postmark client that panics on invalid config.
// Follows the pattern of failing fast during initialization rather than
// allowing a broken service to start.
func MustNew(cfg Config) *Client {
	client, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Send implements mail.Transport using Postmark's transactional API.
// Postmark reports acceptance per submission rather than per recipient, so a
// successful response marks every envelope recipient as accepted. Link
// tracking stays HTML-only to avoid mangling plain text bodies.
func (c *Client) Send(ctx context.Context, payload *mail.Payload) (*mail.SendResult, error) {
	msg := payload.Message
	if msg.From == "" {
		return nil, fmt.Errorf("%w: missing sender address", mail.ErrFailedToSend)
	}
	recipients := payload.Recipients()
	if len(recipients) == 0 {
		return nil, mail.ErrNoRecipients
	}

	email := postmark.Email{
		From:       msg.From,
		ReplyTo:    msg.ReplyTo,
		To:         strings.Join(payload.To, ","),
		Cc:         strings.Join(payload.Cc, ","),
		Bcc:        strings.Join(payload.Bcc, ","),
		Subject:    msg.Subject,
		TextBody:   msg.Text,
		HTMLBody:   msg.HTML,
		TrackOpens: c.config.TrackOpens,
		TrackLinks: "HtmlOnly",
	}

	for key, value := range msg.Headers {
		email.Headers = append(email.Headers, postmark.Header{Name: key, Value: value})
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		email.Attachments = append(email.Attachments, postmark.Attachment{
			Name:        att.Filename,
			Content:     base64.StdEncoding.EncodeToString(att.Content),
			ContentType: contentType,
		})
	}

	resp, err := c.client.SendEmail(ctx, email)
	if err != nil {
		return nil, errors.Join(mail.ErrFailedToSend, err)
	}
	if resp.ErrorCode > 0 {
		return nil, errors.Join(
			mail.ErrFailedToSend,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}

	return &mail.SendResult{
		MessageID: resp.MessageID,
		Accepted:  recipients,
		Response:  fmt.Sprintf("submitted at %s", resp.SubmittedAt),
	}, nil
}

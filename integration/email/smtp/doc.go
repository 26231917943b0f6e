// Package smtp provides an SMTP-based implementation of the mail.Transport interface.
//
// This package delivers prepared payloads through any SMTP server with support
// for STARTTLS, direct TLS, and plain connections. Every envelope recipient is
// offered to the server individually, so the send result reports which
// addresses the server accepted and which it rejected; a send fails only when
// every recipient is rejected or the transaction itself breaks.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/apascal07/mailroom/core/mail"
//		"github.com/apascal07/mailroom/integration/email/smtp"
//	)
//
//	cfg := smtp.Config{
//		Host:     "smtp.example.com",
//		Port:     587,
//		Username: "mailer@example.com",
//		Password: "app-password",
//		TLSMode:  "starttls",
//	}
//
//	transport, err := smtp.New(cfg)
//	if err != nil {
//		// Handle configuration error
//	}
//
//	result, err := transport.Send(context.Background(), payload)
//	if err != nil {
//		// Handle sending error
//	}
//	_ = result.Accepted // addresses the server took
//
// # Configuration
//
// The Config struct defines all SMTP settings:
//
//   - Host: SMTP server hostname (required)
//   - Port: SMTP server port, typically 587 for STARTTLS or 465 for TLS
//   - Username, Password: SMTP credentials (optional, must be set together)
//   - TLSMode: Connection security mode - "starttls", "tls", or "plain"
//
// # TLS Modes
//
// Three TLS modes are supported:
//
//   - "starttls": Start with plain connection, upgrade to TLS (recommended, port 587)
//   - "tls": Direct TLS connection (port 465)
//   - "plain": No encryption (development only, port 25)
//
// # Message Format
//
// Messages are built as MIME documents: text and HTML bodies become a
// multipart/alternative part, attachments wrap the bodies in multipart/mixed,
// and free-form headers from the stored message are carried over except for
// the reserved routing headers (From, To, Cc, Bcc, Subject, and friends).
// Bcc recipients appear only in the envelope, never in the headers.
package smtp

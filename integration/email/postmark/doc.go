// Package postmark provides a Postmark-based implementation of the mail.Transport interface.
//
// This package delivers prepared payloads through Postmark's transactional
// API. Recipient lists, headers, and attachments are mapped onto a single
// Postmark submission; since the API reports acceptance per submission rather
// than per recipient, a successful response marks every envelope recipient as
// accepted.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/apascal07/mailroom/integration/email/postmark"
//	)
//
//	cfg := postmark.Config{
//		ServerToken: "server-token",
//	}
//
//	transport, err := postmark.New(cfg)
//	if err != nil {
//		// Handle configuration error
//	}
//
//	result, err := transport.Send(context.Background(), payload)
//	if err != nil {
//		// Handle sending error
//	}
//	_ = result.MessageID // Postmark message identifier
//
// # Configuration
//
//   - ServerToken: Postmark server API token (required)
//   - AccountToken: Postmark account API token (optional, account-level endpoints only)
//   - TrackOpens: enable open tracking (default true)
//
// Link tracking is fixed to HTML-only to avoid mangling plain text bodies.
package postmark

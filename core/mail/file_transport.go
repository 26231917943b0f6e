package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileTransport implements Transport for local development and test-mode
// configurations. It saves each message as HTML and JSON files to a
// directory instead of handing it to a real mail service, and reports every
// recipient as accepted.
type FileTransport struct {
	dir string
}

// NewFileTransport creates a transport that writes messages to disk.
// The directory will be created if it doesn't exist.
func NewFileTransport(dir string) *FileTransport {
	return &FileTransport{dir: dir}
}

// messageMetadata contains the message data saved to JSON (excluding HTML content).
type messageMetadata struct {
	Timestamp string   `json:"timestamp"`
	MessageID string   `json:"message_id"`
	To        []string `json:"to"`
	Cc        []string `json:"cc,omitempty"`
	Bcc       []string `json:"bcc,omitempty"`
	From      string   `json:"from,omitempty"`
	Subject   string   `json:"subject"`
	Text      string   `json:"text,omitempty"`
}

// Send writes the payload to the configured directory and accepts all recipients.
func (ft *FileTransport) Send(ctx context.Context, payload *Payload) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToSend, err)
	}

	if err := os.MkdirAll(ft.dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %w", ErrFailedToSend, err)
	}

	now := time.Now()
	messageID := uuid.NewString()

	// Timestamp-based filenames keep the directory chronologically ordered.
	identifier := payload.Message.Subject
	if identifier == "" {
		identifier = messageID
	}
	baseFilename := fmt.Sprintf("%s_%s", now.Format("2006_01_02_150405"), sanitizeFilename(identifier))

	if payload.Message.HTML != "" {
		htmlPath := filepath.Join(ft.dir, baseFilename+".html")
		if err := os.WriteFile(htmlPath, []byte(payload.Message.HTML), 0644); err != nil {
			return nil, fmt.Errorf("%w: failed to write HTML file: %w", ErrFailedToSend, err)
		}
	}

	metadata := messageMetadata{
		Timestamp: now.Format(time.RFC3339),
		MessageID: messageID,
		To:        payload.To,
		Cc:        payload.Cc,
		Bcc:       payload.Bcc,
		From:      payload.Message.From,
		Subject:   payload.Message.Subject,
		Text:      payload.Message.Text,
	}

	jsonData, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal metadata: %w", ErrFailedToSend, err)
	}

	jsonPath := filepath.Join(ft.dir, baseFilename+".json")
	if err := os.WriteFile(jsonPath, jsonData, 0644); err != nil {
		return nil, fmt.Errorf("%w: failed to write JSON file: %w", ErrFailedToSend, err)
	}

	return &SendResult{
		MessageID: messageID,
		Accepted:  payload.Recipients(),
		Response:  "saved to " + jsonPath,
	}, nil
}

// sanitizeRegex removes filesystem-unsafe characters from filenames.
var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// sanitizeFilename converts a string into a safe filename.
func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")

	const maxLength = 100
	if len(s) > maxLength {
		s = s[:maxLength]
	}

	if s == "" {
		s = "message"
	}

	return strings.ToLower(s)
}

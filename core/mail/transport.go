package mail

import "context"

// SendResult is the transport's acceptance report for one delivery attempt.
type SendResult struct {
	MessageID string   `json:"messageId"`
	Accepted  []string `json:"accepted"`
	Rejected  []string `json:"rejected"`
	Pending   []string `json:"pending"`
	Response  string   `json:"response"`
}

// Transport delivers a prepared payload to its recipients. Implementations
// must be safe for concurrent use: a single transport instance is shared by
// every in-flight delivery attempt in the process.
type Transport interface {
	Send(ctx context.Context, payload *Payload) (*SendResult, error)
}

package dispatch

import "github.com/apascal07/mailroom/core/mail"

// Event is one change notification: a before/after pair of document
// snapshots. A nil Before means the document was created, a nil After means
// it was deleted. The notification layer may deliver the same event more
// than once (at-least-once), which the delivery lease protocol bounds.
type Event struct {
	Before *mail.Document
	After  *mail.Document
}

// Created reports whether the event is a document creation.
func (e Event) Created() bool {
	return e.Before == nil && e.After != nil
}

// Deleted reports whether the event is a document deletion.
func (e Event) Deleted() bool {
	return e.After == nil
}

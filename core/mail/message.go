package mail

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/apascal07/mailroom/core/delivery"
)

// Document is one requested email as stored in the message collection. The
// delivery sub-record is owned by the delivery state machine and absent until
// the document is claimed.
type Document struct {
	ID       bson.ObjectID      `bson:"_id,omitempty" json:"id"`
	Message  Message            `bson:"message" json:"message"`
	Delivery *delivery.Delivery `bson:"delivery,omitempty" json:"delivery,omitempty"`
}

// Message holds the mail fields of a document. The to/cc/bcc fields are
// deliberately untyped: callers may store a single address string or a list
// of address strings, and the Resolver validates and normalizes them.
type Message struct {
	To  any `bson:"to,omitempty" json:"to,omitempty"`
	Cc  any `bson:"cc,omitempty" json:"cc,omitempty"`
	Bcc any `bson:"bcc,omitempty" json:"bcc,omitempty"`

	ToUids  []string `bson:"toUids,omitempty" json:"toUids,omitempty"`
	CcUids  []string `bson:"ccUids,omitempty" json:"ccUids,omitempty"`
	BccUids []string `bson:"bccUids,omitempty" json:"bccUids,omitempty"`

	From    string            `bson:"from,omitempty" json:"from,omitempty"`
	ReplyTo string            `bson:"replyTo,omitempty" json:"replyTo,omitempty"`
	Headers map[string]string `bson:"headers,omitempty" json:"headers,omitempty"`

	Subject string `bson:"subject,omitempty" json:"subject,omitempty"`
	Text    string `bson:"text,omitempty" json:"text,omitempty"`
	HTML    string `bson:"html,omitempty" json:"html,omitempty"`

	Attachments []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`

	Template *TemplateRef `bson:"template,omitempty" json:"template,omitempty"`
}

// TemplateRef names a stored template and carries the data it is rendered with.
type TemplateRef struct {
	Name string         `bson:"name" json:"name"`
	Data map[string]any `bson:"data,omitempty" json:"data,omitempty"`
}

// Attachment is passed through to the transport untouched.
type Attachment struct {
	Filename    string `bson:"filename" json:"filename"`
	ContentType string `bson:"contentType,omitempty" json:"contentType,omitempty"`
	Content     []byte `bson:"content" json:"content"`
}

// UsesUids reports whether any identifier-based recipient field is present,
// which switches recipient resolution into identifier mode.
func (m *Message) UsesUids() bool {
	return len(m.ToUids) > 0 || len(m.CcUids) > 0 || len(m.BccUids) > 0
}

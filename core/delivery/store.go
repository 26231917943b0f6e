package delivery

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TransitionFunc inspects the current delivery record of a document and
// returns its replacement. The current record is nil when the document has
// not been claimed yet. Returning an error aborts the transition without
// writing anything.
type TransitionFunc func(current *Delivery) (*Delivery, error)

// Store applies delivery transitions as atomic read-modify-write operations
// against the backing document store.
//
// Implementations must guarantee that the read of the current record, the
// application of fn, and the write of its result are isolated from other
// transitions on the same document, and must retry transitions that conflict
// with concurrent writers. Transition returns ErrDocumentNotFound when the
// document no longer exists.
type Store interface {
	Transition(ctx context.Context, id bson.ObjectID, fn TransitionFunc) (*Delivery, error)
}

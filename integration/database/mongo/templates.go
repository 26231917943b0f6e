package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/apascal07/mailroom/core/mail"
)

// TemplateCollection implements mail.TemplateSource over a templates
// collection. Templates are keyed by name: the document id is the template
// name and the subject/html/text fields hold the template sources.
type TemplateCollection struct {
	coll *mongodriver.Collection
}

var _ mail.TemplateSource = (*TemplateCollection)(nil)

// NewTemplateCollection creates a source over the given templates collection.
func NewTemplateCollection(coll *mongodriver.Collection) *TemplateCollection {
	return &TemplateCollection{coll: coll}
}

// Template implements the mail.TemplateSource interface.
func (tc *TemplateCollection) Template(ctx context.Context, name string) (*mail.TemplateDefinition, error) {
	var def mail.TemplateDefinition
	err := tc.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&def)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", mail.ErrTemplateNotFound, name)
		}
		return nil, fmt.Errorf("failed to fetch template %q: %w", name, err)
	}
	return &def, nil
}

package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/apascal07/mailroom/core/delivery"
)

// DeliveryStore implements delivery.Store over a message collection. Each
// transition runs inside a session transaction: the read of the current
// delivery record, the transition callback, and the write of its result are
// isolated from concurrent transitions on the same document, and the driver
// retries transient transaction conflicts.
type DeliveryStore struct {
	client *mongodriver.Client
	coll   *mongodriver.Collection
}

// NewDeliveryStore creates a store over the given message collection.
func NewDeliveryStore(client *mongodriver.Client, coll *mongodriver.Collection) *DeliveryStore {
	return &DeliveryStore{client: client, coll: coll}
}

// Transition implements the delivery.Store interface.
func (s *DeliveryStore) Transition(ctx context.Context, id bson.ObjectID, fn delivery.TransitionFunc) (*delivery.Delivery, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		var doc struct {
			Delivery *delivery.Delivery `bson:"delivery"`
		}
		err := s.coll.FindOne(ctx, bson.M{"_id": id},
			options.FindOne().SetProjection(bson.M{"delivery": 1}),
		).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongodriver.ErrNoDocuments) {
				return nil, delivery.ErrDocumentNotFound
			}
			return nil, fmt.Errorf("failed to read delivery record: %w", err)
		}

		next, err := fn(doc.Delivery)
		if err != nil {
			return nil, err
		}

		if _, err := s.coll.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{"$set": bson.M{"delivery": next}},
		); err != nil {
			return nil, fmt.Errorf("failed to write delivery record: %w", err)
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*delivery.Delivery), nil
}

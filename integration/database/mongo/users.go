package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/apascal07/mailroom/core/mail"
)

// UserDirectory implements mail.UserLookup over a users collection. All
// identifiers are resolved in one batched point read projecting only the
// email attribute.
type UserDirectory struct {
	coll *mongodriver.Collection
}

var _ mail.UserLookup = (*UserDirectory)(nil)

// NewUserDirectory creates a directory over the given users collection.
func NewUserDirectory(coll *mongodriver.Collection) *UserDirectory {
	return &UserDirectory{coll: coll}
}

// Emails implements the mail.UserLookup interface. Identifiers without a
// matching document or without an email attribute are absent from the result.
func (d *UserDirectory) Emails(ctx context.Context, uids []string) (map[string]string, error) {
	if len(uids) == 0 {
		return map[string]string{}, nil
	}

	cursor, err := d.coll.Find(ctx,
		bson.M{"_id": bson.M{"$in": uids}},
		options.Find().SetProjection(bson.M{"email": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	var users []struct {
		ID    string `bson:"_id"`
		Email string `bson:"email"`
	}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	emails := make(map[string]string, len(users))
	for _, user := range users {
		if user.Email != "" {
			emails[user.ID] = user.Email
		}
	}
	return emails, nil
}

package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Error variables define connection failures that can be wrapped with
// detailed context for comprehensive error reporting.
var (
	ErrFailedToConnectToMongo = errors.New("failed to connect to mongodb")
	ErrHealthcheckFailed      = errors.New("mongodb healthcheck failed")
)

// New creates a MongoDB client with retry logic and verifies the connection
// with a ping before returning. All retry attempts exhausted returns
// ErrFailedToConnectToMongo wrapping the last error.
func New(ctx context.Context, cfg Config) (*mongodriver.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.ConnectionURL).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetRetryWrites(cfg.RetryWrites).
		SetRetryReads(cfg.RetryReads)

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := mongodriver.Connect(opts)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
			err = client.Ping(pingCtx, readpref.Primary())
			cancel()
			if err == nil {
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrFailedToConnectToMongo, ctx.Err())
			case <-time.After(cfg.RetryInterval):
			}
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrFailedToConnectToMongo, lastErr)
}

// NewWithDatabase creates a client and returns a handle to the named database.
func NewWithDatabase(ctx context.Context, cfg Config, name string) (*mongodriver.Database, error) {
	client, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client.Database(name), nil
}

// Healthcheck returns a health check function suitable for probe endpoints.
func Healthcheck(client *mongodriver.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

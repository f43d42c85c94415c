package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"

	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

// Connect opens an instrumented client and verifies it with a ping against
// the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	log.Info().Msg("Initializing MongoDB client")

	// URI parameters override the timeouts set here.
	clientOptions := options.Client().
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second).
		SetMonitor(otelmongo.NewMonitor()).
		ApplyURI(uri)

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB primary: %w", err)
	}

	log.Info().Msg("MongoDB client initialized successfully.")
	return client, nil
}

// wrap maps driver errors onto the engine's error set. ErrNoDocuments
// becomes notFound; duplicate keys become ErrDuplicateKey; everything else is
// a store failure.
func wrap(op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return notFound
	case mongo.IsDuplicateKeyError(err):
		return serrors.ErrDuplicateKey
	default:
		return serrors.Store(op, err)
	}
}

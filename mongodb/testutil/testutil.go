// Package testutil provisions throwaway MongoDB databases for tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// URI returns the server tests should use, or "" when MongoDB tests are
// disabled. TEST_MONGO_URI_CI takes precedence when CI is set.
func URI() string {
	if os.Getenv("CI") != "" && os.Getenv("TEST_MONGO_URI_CI") != "" {
		return os.Getenv("TEST_MONGO_URI_CI")
	}
	return os.Getenv("TEST_MONGO_URI")
}

// SetupTestMongoDB connects to URI() and returns a uniquely named database
// plus a cleanup function that drops it and disconnects. The test is skipped
// when no URI is configured.
func SetupTestMongoDB(t *testing.T, dbNamePrefix string) (*mongo.Client, *mongo.Database, func()) {
	t.Helper()

	mongoURI := URI()
	if mongoURI == "" {
		t.Skip("TEST_MONGO_URI not set; skipping MongoDB tests")
	}

	dbName := fmt.Sprintf("%s_%d", dbNamePrefix, time.Now().UnixNano())

	clientOpts := options.Client().ApplyURI(mongoURI)
	clientOpts.SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	clientOpts.SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		t.Fatalf("Failed to create MongoDB client: %v (URI: %s)", err, mongoURI)
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err = client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Fatalf("Failed to connect to MongoDB (ping failed): %v (URI: %s)", err, mongoURI)
	}

	db := client.Database(dbName)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("Warning: Failed to drop database %s: %v", dbName, err)
		}
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("Warning: Failed to disconnect MongoDB client: %v", err)
		}
	}

	return client, db, cleanup
}

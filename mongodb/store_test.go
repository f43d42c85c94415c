package mongodb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/storetest"
	"github.com/pilab-dev/shadow-oauth/mongodb/testutil"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Repositories {
		_, db, cleanup := testutil.SetupTestMongoDB(t, "oauth_store_test")
		t.Cleanup(cleanup)

		require.NoError(t, EnsureIndexes(context.Background(), db))
		return NewStore(nil, db)
	})
}

func TestOpen_Indexes(t *testing.T) {
	uri := testutil.URI()
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set; skipping MongoDB tests")
	}
	ctx := context.Background()

	s, err := Open(ctx, uri, "oauth_open_test")
	require.NoError(t, err)
	defer func() {
		_ = s.tokens.coll.Database().Drop(ctx)
		require.NoError(t, s.Close(ctx))
	}()

	specs, err := s.tokens.coll.Indexes().ListSpecifications(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	assert.Contains(t, names, "client_id_1")
	assert.Contains(t, names, "created_at_1")
}

func TestWrap(t *testing.T) {
	assert.NoError(t, wrap("op", nil, serrors.ErrClientNotFound))
	assert.ErrorIs(t, wrap("op", mongo.ErrNoDocuments, serrors.ErrClientNotFound), serrors.ErrClientNotFound)

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, wrap("insert client", dup, nil), serrors.ErrDuplicateKey)

	err := wrap("get client", errors.New("connection reset"), serrors.ErrClientNotFound)
	assert.ErrorIs(t, err, serrors.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, serrors.ErrClientNotFound)
}

func TestConnect_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for server selection")
	}
	_, err := Connect(context.Background(), "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200")
	assert.Error(t, err)
}

package mongodb

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// Store bundles the MongoDB repositories.
type Store struct {
	client *mongo.Client

	clients      *ClientRepository
	authRequests *AuthRequestRepository
	grants       *AccessGrantRepository
	tokens       *AccessTokenRepository
	issuers      *IssuerRepository
}

var _ domain.Repositories = (*Store)(nil)

// NewStore builds the repositories on db. When client is non-nil, Close
// disconnects it.
func NewStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:       client,
		clients:      NewClientRepository(db),
		authRequests: NewAuthRequestRepository(db),
		grants:       NewAccessGrantRepository(db),
		tokens:       NewAccessTokenRepository(db),
		issuers:      NewIssuerRepository(db),
	}
}

// Open connects to uri and returns a Store on database dbName with its
// indexes in place.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := Connect(ctx, uri)
	if err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	if err := EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	log.Info().Str("database", dbName).Msg("Using MongoDB database")
	return NewStore(client, db), nil
}

func (s *Store) Clients() domain.ClientRepository           { return s.clients }
func (s *Store) AuthRequests() domain.AuthRequestRepository { return s.authRequests }
func (s *Store) AccessGrants() domain.AccessGrantRepository { return s.grants }
func (s *Store) AccessTokens() domain.AccessTokenRepository { return s.tokens }
func (s *Store) Issuers() domain.IssuerRepository           { return s.issuers }

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	log.Info().Msg("Closing MongoDB connection.")
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the secondary indexes the repositories query on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	byClient := mongo.IndexModel{Keys: bson.D{{Key: "client_id", Value: 1}}}

	indexes := map[string][]mongo.IndexModel{
		ClientsCollection: {
			{Keys: bson.D{{Key: "display_name", Value: 1}}},
			{Keys: bson.D{{Key: "link", Value: 1}}},
		},
		AuthRequestsCollection: {byClient},
		AccessGrantsCollection: {byClient},
		AccessTokensCollection: {
			byClient,
			{Keys: bson.D{{Key: "identity", Value: 1}, {Key: "client_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return wrap("create indexes on "+coll, err, nil)
		}
	}
	return nil
}

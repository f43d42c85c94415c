package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// ClientRepository implements domain.ClientRepository on MongoDB.
type ClientRepository struct {
	coll *mongo.Collection
}

var _ domain.ClientRepository = (*ClientRepository)(nil)

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{
		coll: db.Collection(ClientsCollection),
	}
}

func (r *ClientRepository) CreateClient(ctx context.Context, c *domain.Client) error {
	doc := *c
	if doc.Scope == nil {
		doc.Scope = scope.Set{}
	}
	_, err := r.coll.InsertOne(ctx, &doc)
	return wrap("insert client", err, nil)
}

func (r *ClientRepository) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	var client domain.Client
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&client)
	if err != nil {
		return nil, wrap("get client", err, serrors.ErrClientNotFound)
	}
	return &client, nil
}

func (r *ClientRepository) FindClient(ctx context.Context, filter domain.ClientFilter) (*domain.Client, error) {
	query := bson.M{}
	if filter.DisplayName != "" {
		query["display_name"] = filter.DisplayName
	}
	if filter.Link != "" {
		query["link"] = filter.Link
	}
	if len(query) == 0 {
		return nil, serrors.ErrClientNotFound
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "display_name", Value: 1}, {Key: "_id", Value: 1}})

	var client domain.Client
	if err := r.coll.FindOne(ctx, query, opts).Decode(&client); err != nil {
		return nil, wrap("find client", err, serrors.ErrClientNotFound)
	}
	return &client, nil
}

func (r *ClientRepository) ListClients(ctx context.Context) ([]*domain.Client, error) {
	opts := options.Find().SetSort(bson.D{{Key: "display_name", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrap("list clients", err, nil)
	}
	defer cursor.Close(ctx)

	var clients []*domain.Client
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, wrap("list clients", err, nil)
	}
	return clients, nil
}

// UpdateClient replaces every field except the usage counters.
func (r *ClientRepository) UpdateClient(ctx context.Context, c *domain.Client) error {
	sc := c.Scope
	if sc == nil {
		sc = scope.Set{}
	}

	update := bson.M{"$set": bson.M{
		"secret":       c.Secret,
		"display_name": c.DisplayName,
		"link":         c.Link,
		"image_url":    c.ImageURL,
		"redirect_uri": c.RedirectURI,
		"scope":        sc,
		"notes":        c.Notes,
		"created_at":   c.CreatedAt,
		"revoked_at":   c.RevokedAt,
	}}

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": c.ID}, update)
	if err != nil {
		return wrap("update client", err, nil)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrClientNotFound
	}
	return nil
}

func (r *ClientRepository) IncrementClientCounters(ctx context.Context, id string, granted, revoked int64) error {
	update := bson.M{"$inc": bson.M{
		"tokens_granted": granted,
		"tokens_revoked": revoked,
	}}

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return wrap("increment client counters", err, nil)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrClientNotFound
	}
	return nil
}

func (r *ClientRepository) DeleteClient(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return wrap("delete client", err, nil)
	}
	if result.DeletedCount == 0 {
		return serrors.ErrClientNotFound
	}
	return nil
}

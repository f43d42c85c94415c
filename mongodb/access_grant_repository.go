package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// AccessGrantRepository implements domain.AccessGrantRepository on MongoDB.
type AccessGrantRepository struct {
	coll *mongo.Collection
}

var _ domain.AccessGrantRepository = (*AccessGrantRepository)(nil)

func NewAccessGrantRepository(db *mongo.Database) *AccessGrantRepository {
	return &AccessGrantRepository{
		coll: db.Collection(AccessGrantsCollection),
	}
}

func (r *AccessGrantRepository) CreateAccessGrant(ctx context.Context, g *domain.AccessGrant) error {
	doc := *g
	if doc.Scope == nil {
		doc.Scope = scope.Set{}
	}
	_, err := r.coll.InsertOne(ctx, &doc)
	return wrap("insert access grant", err, nil)
}

func (r *AccessGrantRepository) GetAccessGrant(ctx context.Context, code string) (*domain.AccessGrant, error) {
	var grant domain.AccessGrant
	if err := r.coll.FindOne(ctx, bson.M{"_id": code}).Decode(&grant); err != nil {
		return nil, wrap("get access grant", err, serrors.ErrGrantNotFound)
	}
	return &grant, nil
}

// ClaimAccessGrant sets granted_at only while the grant is untouched. The
// filter and the write are a single document operation, so concurrent
// claimers see exactly one match.
func (r *AccessGrantRepository) ClaimAccessGrant(ctx context.Context, code string, at time.Time) (bool, error) {
	filter := bson.M{
		"_id":          code,
		"granted_at":   nil,
		"access_token": nil,
		"revoked_at":   nil,
	}

	result, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"granted_at": at}})
	if err != nil {
		return false, wrap("claim access grant", err, nil)
	}
	if result.MatchedCount == 1 {
		return true, nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": code})
	if err != nil {
		return false, wrap("claim access grant", err, nil)
	}
	if n == 0 {
		return false, serrors.ErrGrantNotFound
	}
	return false, nil
}

func (r *AccessGrantRepository) UpdateAccessGrant(ctx context.Context, code string, upd domain.AccessGrantUpdate) error {
	set := bson.M{}
	if upd.AccessToken != nil {
		set["access_token"] = *upd.AccessToken
	}
	if upd.RevokedAt != nil {
		set["revoked_at"] = *upd.RevokedAt
	}
	if len(set) == 0 {
		_, err := r.GetAccessGrant(ctx, code)
		return err
	}

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": code}, bson.M{"$set": set})
	if err != nil {
		return wrap("update access grant", err, nil)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrGrantNotFound
	}
	return nil
}

func (r *AccessGrantRepository) RevokeAccessGrants(ctx context.Context, clientID string, at time.Time) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"client_id": clientID},
		bson.M{"$set": bson.M{"revoked_at": at}},
	)
	return wrap("revoke access grants", err, nil)
}

func (r *AccessGrantRepository) DeleteAccessGrants(ctx context.Context, clientID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"client_id": clientID})
	return wrap("delete access grants", err, nil)
}

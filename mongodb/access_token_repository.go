package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// AccessTokenRepository implements domain.AccessTokenRepository on MongoDB.
type AccessTokenRepository struct {
	coll *mongo.Collection
}

var _ domain.AccessTokenRepository = (*AccessTokenRepository)(nil)

func NewAccessTokenRepository(db *mongo.Database) *AccessTokenRepository {
	return &AccessTokenRepository{
		coll: db.Collection(AccessTokensCollection),
	}
}

var oldestFirst = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

func (r *AccessTokenRepository) CreateAccessToken(ctx context.Context, t *domain.AccessToken) error {
	doc := *t
	if doc.Scope == nil {
		doc.Scope = scope.Set{}
	}
	_, err := r.coll.InsertOne(ctx, &doc)
	return wrap("insert access token", err, nil)
}

func (r *AccessTokenRepository) GetAccessToken(ctx context.Context, token string) (*domain.AccessToken, error) {
	var t domain.AccessToken
	if err := r.coll.FindOne(ctx, bson.M{"_id": token}).Decode(&t); err != nil {
		return nil, wrap("get access token", err, serrors.ErrTokenNotFound)
	}
	return &t, nil
}

func (r *AccessTokenRepository) FindActiveAccessToken(ctx context.Context, q domain.ActiveTokenQuery) (*domain.AccessToken, error) {
	sc := q.Scope
	if sc == nil {
		sc = scope.Set{}
	}

	filter := bson.M{
		"identity":   q.Identity,
		"client_id":  q.ClientID,
		"scope":      sc,
		"revoked_at": nil,
		"$or": bson.A{
			bson.M{"expires_at": nil},
			bson.M{"expires_at": bson.M{"$gt": q.Now}},
		},
	}

	var t domain.AccessToken
	err := r.coll.FindOne(ctx, filter, options.FindOne().SetSort(oldestFirst)).Decode(&t)
	if err != nil {
		return nil, wrap("find active access token", err, serrors.ErrTokenNotFound)
	}
	return &t, nil
}

func tokenQuery(f domain.TokenFilter) bson.M {
	query := bson.M{}
	if f.ClientID != "" {
		query["client_id"] = f.ClientID
	}
	if f.Identity != "" {
		query["identity"] = f.Identity
	}
	if !f.CreatedAfter.IsZero() {
		query["created_at"] = bson.M{"$gt": f.CreatedAfter}
	}

	switch {
	case !f.RevokedAfter.IsZero():
		if f.Revoked != nil && !*f.Revoked {
			// Not revoked and revoked after a point in time cannot both hold.
			query["_id"] = bson.M{"$in": bson.A{}}
		} else {
			query["revoked_at"] = bson.M{"$gt": f.RevokedAfter}
		}
	case f.Revoked != nil && *f.Revoked:
		query["revoked_at"] = bson.M{"$ne": nil}
	case f.Revoked != nil:
		query["revoked_at"] = nil
	}
	return query
}

func (r *AccessTokenRepository) ListAccessTokens(ctx context.Context, filter domain.TokenFilter, opts domain.ListOptions) ([]*domain.AccessToken, error) {
	findOpts := options.Find().SetSort(oldestFirst)
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := r.coll.Find(ctx, tokenQuery(filter), findOpts)
	if err != nil {
		return nil, wrap("list access tokens", err, nil)
	}
	defer cursor.Close(ctx)

	tokens := []*domain.AccessToken{}
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, wrap("list access tokens", err, nil)
	}
	return tokens, nil
}

func (r *AccessTokenRepository) CountAccessTokens(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, tokenQuery(filter))
	if err != nil {
		return 0, wrap("count access tokens", err, nil)
	}
	return n, nil
}

func (r *AccessTokenRepository) UpdateAccessToken(ctx context.Context, token string, upd domain.AccessTokenUpdate) error {
	set := bson.M{}
	if upd.LastAccess != nil {
		set["last_access"] = *upd.LastAccess
	}
	if upd.PrevAccess != nil {
		set["prev_access"] = *upd.PrevAccess
	}
	if upd.RevokedAt != nil {
		set["revoked_at"] = *upd.RevokedAt
	}
	if len(set) == 0 {
		_, err := r.GetAccessToken(ctx, token)
		return err
	}

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": token}, bson.M{"$set": set})
	if err != nil {
		return wrap("update access token", err, nil)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrTokenNotFound
	}
	return nil
}

func (r *AccessTokenRepository) RevokeAccessTokens(ctx context.Context, clientID string, at time.Time) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"client_id": clientID},
		bson.M{"$set": bson.M{"revoked_at": at}},
	)
	return wrap("revoke access tokens", err, nil)
}

func (r *AccessTokenRepository) DeleteAccessTokens(ctx context.Context, clientID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"client_id": clientID})
	return wrap("delete access tokens", err, nil)
}

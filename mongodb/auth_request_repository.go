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

// AuthRequestRepository implements domain.AuthRequestRepository on MongoDB.
type AuthRequestRepository struct {
	coll *mongo.Collection
}

var _ domain.AuthRequestRepository = (*AuthRequestRepository)(nil)

func NewAuthRequestRepository(db *mongo.Database) *AuthRequestRepository {
	return &AuthRequestRepository{
		coll: db.Collection(AuthRequestsCollection),
	}
}

func (r *AuthRequestRepository) CreateAuthRequest(ctx context.Context, req *domain.AuthRequest) error {
	doc := *req
	if doc.Scope == nil {
		doc.Scope = scope.Set{}
	}
	_, err := r.coll.InsertOne(ctx, &doc)
	return wrap("insert auth request", err, nil)
}

func (r *AuthRequestRepository) GetAuthRequest(ctx context.Context, id string) (*domain.AuthRequest, error) {
	var req domain.AuthRequest
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&req); err != nil {
		return nil, wrap("get auth request", err, serrors.ErrAuthRequestNotFound)
	}
	return &req, nil
}

func (r *AuthRequestRepository) DecideAuthRequest(ctx context.Context, id string, at time.Time) (bool, error) {
	filter := bson.M{
		"_id":           id,
		"authorized_at": nil,
		"revoked_at":    nil,
	}

	result, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"authorized_at": at}})
	if err != nil {
		return false, wrap("decide auth request", err, nil)
	}
	if result.MatchedCount == 1 {
		return true, nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, wrap("decide auth request", err, nil)
	}
	if n == 0 {
		return false, serrors.ErrAuthRequestNotFound
	}
	return false, nil
}

func (r *AuthRequestRepository) UpdateAuthRequest(ctx context.Context, id string, upd domain.AuthRequestUpdate) error {
	set := bson.M{}
	if upd.GrantCode != nil {
		set["grant_code"] = *upd.GrantCode
	}
	if upd.AccessToken != nil {
		set["access_token"] = *upd.AccessToken
	}
	if len(set) == 0 {
		_, err := r.GetAuthRequest(ctx, id)
		return err
	}

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return wrap("update auth request", err, nil)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrAuthRequestNotFound
	}
	return nil
}

func (r *AuthRequestRepository) RevokeAuthRequests(ctx context.Context, clientID string, at time.Time) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"client_id": clientID},
		bson.M{"$set": bson.M{"revoked_at": at}},
	)
	return wrap("revoke auth requests", err, nil)
}

func (r *AuthRequestRepository) DeleteAuthRequests(ctx context.Context, clientID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"client_id": clientID})
	return wrap("delete auth requests", err, nil)
}

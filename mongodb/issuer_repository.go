package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

// IssuerRepository implements domain.IssuerRepository on MongoDB.
type IssuerRepository struct {
	coll *mongo.Collection
}

var _ domain.IssuerRepository = (*IssuerRepository)(nil)

func NewIssuerRepository(db *mongo.Database) *IssuerRepository {
	return &IssuerRepository{
		coll: db.Collection(IssuersCollection),
	}
}

func (r *IssuerRepository) CreateIssuer(ctx context.Context, i *domain.Issuer) error {
	_, err := r.coll.InsertOne(ctx, i)
	return wrap("insert issuer", err, nil)
}

func (r *IssuerRepository) GetIssuer(ctx context.Context, identifier string) (*domain.Issuer, error) {
	var issuer domain.Issuer
	if err := r.coll.FindOne(ctx, bson.M{"_id": identifier}).Decode(&issuer); err != nil {
		return nil, wrap("get issuer", err, serrors.ErrIssuerNotFound)
	}
	return &issuer, nil
}

func (r *IssuerRepository) UpdateIssuer(ctx context.Context, identifier string, upd domain.IssuerUpdate) (*domain.Issuer, error) {
	set := bson.M{"updated_at": upd.UpdatedAt}
	if upd.HMACSecret != nil {
		set["hmac_secret"] = *upd.HMACSecret
	}
	if upd.PublicKey != nil {
		set["public_key"] = *upd.PublicKey
	}
	if upd.Notes != nil {
		set["notes"] = *upd.Notes
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var issuer domain.Issuer
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": identifier}, bson.M{"$set": set}, opts).Decode(&issuer)
	if err != nil {
		return nil, wrap("update issuer", err, serrors.ErrIssuerNotFound)
	}
	return &issuer, nil
}

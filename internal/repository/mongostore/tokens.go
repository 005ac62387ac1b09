package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/devhub-auth/internal/model"
	"github.com/iliyamo/devhub-auth/internal/repository"
)

// TokenStore implements repository.TokenStore. Documents are keyed by the
// token hash, so value uniqueness comes from _id.
type TokenStore struct {
	col *mongo.Collection
}

func NewTokenStore(db *mongo.Database) *TokenStore {
	return &TokenStore{col: db.Collection(collectionTokens)}
}

var _ repository.TokenStore = (*TokenStore)(nil)

func (s *TokenStore) Create(ctx context.Context, t model.Token) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	t.RevokedAt = nil
	if _, err := s.col.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrTokenExists
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, hash string) (model.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var t model.Token
	err := s.col.FindOne(ctx, bson.M{"_id": hash, "revoked_at": nil}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Token{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Token{}, fmt.Errorf("find token: %w", err)
	}
	return t, nil
}

// Consume relies on single-document delete atomicity.
func (s *TokenStore) Consume(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.col.DeleteOne(ctx, bson.M{"_id": hash, "revoked_at": nil})
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return res.DeletedCount == 1, nil
}

func (s *TokenStore) Delete(ctx context.Context, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": hash}); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// RevokeAllForUser reads the live hashes and then revokes exactly those.
// A token created between the two steps stays live; multi-document
// transactions would need a replica set.
func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := s.col.Find(ctx,
		bson.M{"user_id": userID, "revoked_at": nil},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find user tokens: %w", err)
	}
	var docs []struct {
		Hash string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode user tokens: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	hashes := make([]string, len(docs))
	for i, d := range docs {
		hashes[i] = d.Hash
	}

	_, err = s.col.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": hashes}, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": at.UTC()}})
	if err != nil {
		return nil, fmt.Errorf("revoke user tokens: %w", err)
	}
	return hashes, nil
}

func (s *TokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.col.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"expires_at": bson.M{"$lt": before.UTC()}},
		bson.M{"revoked_at": bson.M{"$lt": before.UTC()}},
	}})
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return res.DeletedCount, nil
}

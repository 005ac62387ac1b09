package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/iliyamo/devhub-auth/internal/model"
	"github.com/iliyamo/devhub-auth/internal/repository"
)

// UserStore implements repository.UserStore on the users collection.
type UserStore struct {
	col *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{col: db.Collection(collectionUsers)}
}

var _ repository.UserStore = (*UserStore)(nil)

func liveFilter(f bson.M) bson.M {
	f["is_active"] = true
	f["deleted_at"] = nil
	return f
}

func (s *UserStore) Create(ctx context.Context, u model.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	u.Email = normalizeEmail(u.Email)
	u.IsActive = true
	u.DeletedAt = nil
	if _, err := s.col.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "username") {
				return repository.ErrUsernameTaken
			}
			return repository.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (model.User, error) {
	return s.findOne(ctx, liveFilter(bson.M{"_id": id}))
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return s.findOne(ctx, liveFilter(bson.M{"email": normalizeEmail(email)}))
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u model.User
	if err := s.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.User{}, repository.ErrNotFound
		}
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *UserStore) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, bson.M{"email": normalizeEmail(email)})
}

func (s *UserStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, bson.M{"username": username})
}

func (s *UserStore) exists(ctx context.Context, filter bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err := s.col.FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return true, nil
}

// ApplyPatch runs a pipeline update so every field is compared against the
// stored profile_versions.<field> before it is replaced. All expressions in
// one $set stage see the document as it was before the update. Values are
// wrapped in $literal so a string starting with "$" is not read as a path.
func (s *UserStore) ApplyPatch(ctx context.Context, id string, patch model.ProfilePatch, at time.Time) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	at = at.UTC()
	set := bson.M{}
	for _, k := range patch.Keys() {
		version := bson.M{"$ifNull": bson.A{"$profile_versions." + k, time.Unix(0, 0).UTC()}}
		set["profile."+k] = bson.M{"$cond": bson.A{
			bson.M{"$lte": bson.A{version, at}},
			bson.M{"$literal": patch[k]},
			"$profile." + k,
		}}
		set["profile_versions."+k] = bson.M{"$max": bson.A{version, at}}
	}
	update := mongo.Pipeline{{{Key: "$set", Value: set}}}
	if _, err := s.col.UpdateOne(ctx, liveFilter(bson.M{"_id": id}), update); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	return nil
}

func (s *UserStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id, "deleted_at": nil},
		bson.M{"$set": bson.M{"is_active": false, "deleted_at": at.UTC()}})
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	return nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := s.col.UpdateOne(ctx, liveFilter(bson.M{"_id": id}),
		bson.M{"$set": bson.M{"password_hash": hash, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *UserStore) Ping(ctx context.Context) error {
	return s.col.Database().Client().Ping(ctx, readpref.Primary())
}

package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wuwenbin0122/chatquota/internal/apperr"
	"github.com/wuwenbin0122/chatquota/internal/models"
)

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt *time.Time         `bson:"updated_at"`
}

func (d userDoc) toModel() *models.User {
	user := &models.User{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		CreatedAt: d.CreatedAt.UTC(),
	}
	if d.UpdatedAt != nil {
		updated := d.UpdatedAt.UTC()
		user.UpdatedAt = &updated
	}
	return user
}

// UserStore reads and creates users in the "users" collection.
type UserStore struct {
	coll *mongo.Collection
}

func NewUserStore(m *Mongo) *UserStore {
	return &UserStore{coll: m.Users}
}

func (s *UserStore) FindByName(ctx context.Context, name string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"name": name})
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.Validation("malformed user id", err)
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// Insert creates a user named name and returns its id. A concurrent insert of
// the same name yields ErrDuplicate through the unique name index.
func (s *UserStore) Insert(ctx context.Context, name string, now time.Time) (string, error) {
	doc := userDoc{
		ID:        primitive.NewObjectID(),
		Name:      name,
		CreatedAt: bsonTime(now),
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicate
		}
		return "", apperr.StoreUnavailable("insert user", err)
	}

	return doc.ID.Hex(), nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, apperr.StoreUnavailable("find user", err)
	}
	return doc.toModel(), nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wuwenbin0122/chatquota/internal/apperr"
	"github.com/wuwenbin0122/chatquota/internal/models"
)

// MinHistoryLimit is the smallest page Recent will return.
const MinHistoryLimit = 10

// ClampHistoryLimit raises limit to MinHistoryLimit.
func ClampHistoryLimit(limit int) int {
	if limit < MinHistoryLimit {
		return MinHistoryLimit
	}
	return limit
}

type messageDoc struct {
	ID        primitive.ObjectID  `bson:"_id"`
	UserID    primitive.ObjectID  `bson:"user_id"`
	Type      string              `bson:"type"`
	Text      string              `bson:"text"`
	CreatedAt time.Time           `bson:"created_at"`
	CreatedBy primitive.ObjectID  `bson:"created_by"`
	UpdatedAt *time.Time          `bson:"updated_at"`
	UpdatedBy *primitive.ObjectID `bson:"updated_by"`
}

func (d messageDoc) toModel() (models.Message, error) {
	role, err := models.ParseRole(d.Type)
	if err != nil {
		return models.Message{}, apperr.Validation(fmt.Sprintf("message %s has an invalid role", d.ID.Hex()), err)
	}

	msg := models.Message{
		ID:        d.ID.Hex(),
		UserID:    d.UserID.Hex(),
		Role:      role,
		Text:      d.Text,
		CreatedAt: d.CreatedAt.UTC(),
		CreatedBy: d.CreatedBy.Hex(),
	}
	if d.UpdatedAt != nil {
		updated := d.UpdatedAt.UTC()
		msg.UpdatedAt = &updated
	}
	if d.UpdatedBy != nil {
		updatedBy := d.UpdatedBy.Hex()
		msg.UpdatedBy = &updatedBy
	}

	return msg, nil
}

// MessageStore is the append-only conversation log in the "messages" collection.
type MessageStore struct {
	coll *mongo.Collection
}

func NewMessageStore(m *Mongo) *MessageStore {
	return &MessageStore{coll: m.Messages}
}

// Append inserts messages in order with a single InsertMany and returns how
// many were written. Anything short of all of them is an error.
func (s *MessageStore) Append(ctx context.Context, messages []models.NewMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	docs := make([]interface{}, 0, len(messages))
	for _, message := range messages {
		userID, err := parseUserID(message.UserID)
		if err != nil {
			return 0, err
		}

		createdAt := message.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		docs = append(docs, messageDoc{
			ID:        primitive.NewObjectID(),
			UserID:    userID,
			Type:      message.Role.String(),
			Text:      message.Text,
			CreatedAt: bsonTime(createdAt),
			CreatedBy: userID,
		})
	}

	res, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		return 0, apperr.StoreUnavailable("append messages", err)
	}
	if len(res.InsertedIDs) != len(docs) {
		return len(res.InsertedIDs), apperr.StoreUnavailable(
			fmt.Sprintf("append messages: inserted %d of %d", len(res.InsertedIDs), len(docs)), nil)
	}

	return len(res.InsertedIDs), nil
}

// CountMatching counts the user's messages of role created at or after since.
func (s *MessageStore) CountMatching(ctx context.Context, userID string, role models.Role, since time.Time) (int64, error) {
	oid, err := parseUserID(userID)
	if err != nil {
		return 0, err
	}

	filter := bson.M{
		"user_id":    oid,
		"type":       role.String(),
		"created_at": bson.M{"$gte": bsonTime(since)},
	}

	count, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, apperr.StoreUnavailable("count messages", err)
	}

	return count, nil
}

// Recent returns up to ClampHistoryLimit(limit) of the user's messages,
// newest first. Messages sharing a timestamp come back in reverse insertion order.
func (s *MessageStore) Recent(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	oid, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(ClampHistoryLimit(limit)))

	cursor, err := s.coll.Find(ctx, bson.M{"user_id": oid}, opts)
	if err != nil {
		return nil, apperr.StoreUnavailable("find messages", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.StoreUnavailable("decode messages", err)
	}

	result := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}

	return result, nil
}

func parseUserID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation(fmt.Sprintf("malformed user id %q", id), err)
	}
	return oid, nil
}

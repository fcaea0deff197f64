package store

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/metrics"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoMessages struct {
	col *mongo.Collection
}

func (r *MongoMessages) InsertMessage(ctx context.Context, m *models.Message) error {
	defer metrics.ObserveStore("insert_message", time.Now())
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	// $push and $elemMatch need arrays, not nulls.
	if m.ReadBy == nil {
		m.ReadBy = []models.ReadReceipt{}
	}
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
	_, err := r.col.InsertOne(ctx, m)
	return err
}

func (r *MongoMessages) FindMessage(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var m models.Message
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("Message", id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MongoMessages) FindMessages(ctx context.Context, ids []primitive.ObjectID) ([]models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func messageFilter(q MessageQuery) bson.M {
	filter := bson.M{"chatId": q.ChatID}
	if q.ViewerID != "" {
		filter["deletedFor"] = bson.M{"$ne": q.ViewerID}
	}
	created := bson.M{}
	if q.CreatedBefore != nil {
		created["$lt"] = q.CreatedBefore.UTC()
	}
	if q.CreatedAfter != nil {
		created["$gt"] = q.CreatedAfter.UTC()
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}
	return filter
}

func (r *MongoMessages) ListMessages(ctx context.Context, q MessageQuery) ([]models.Message, error) {
	defer metrics.ObserveStore("list_messages", time.Now())
	order := -1
	if q.Ascending {
		order = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: order}, {Key: "_id", Value: order}}).
		SetSkip(q.Skip)
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cur, err := r.col.Find(ctx, messageFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	msgs := make([]models.Message, 0)
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MongoMessages) CountMessages(ctx context.Context, q MessageQuery) (int64, error) {
	return r.col.CountDocuments(ctx, messageFilter(q))
}

func (r *MongoMessages) UpdateContent(ctx context.Context, id primitive.ObjectID, content string, editedAt time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "isDeleted": false},
		bson.M{"$set": bson.M{"content": content, "editedAt": editedAt, "updatedAt": editedAt}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Message", id.Hex())
	}
	return nil
}

func (r *MongoMessages) HideForUser(ctx context.Context, id primitive.ObjectID, userID string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$addToSet": bson.M{"deletedFor": userID}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Message", id.Hex())
	}
	return nil
}

func (r *MongoMessages) Tombstone(ctx context.Context, id primitive.ObjectID, deletedBy string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{
				"isDeleted": true,
				"content":   "",
				"deletedAt": at,
				"deletedBy": deletedBy,
				"updatedAt": at,
			},
			"$unset": bson.M{"attachments": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Message", id.Hex())
	}
	return nil
}

// PutReaction swaps the user's reaction in one conditional pipeline update, so two
// concurrent reactions from the same user cannot both land.
func (r *MongoMessages) PutReaction(ctx context.Context, id primitive.ObjectID, reaction models.Reaction) error {
	filter := bson.M{
		"_id":       id,
		"isDeleted": false,
		"reactions": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"userId":   reaction.UserID,
			"emojiKey": reaction.EmojiKey,
		}}},
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reactions": bson.M{"$concatArrays": bson.A{
				bson.M{"$filter": bson.M{
					"input": bson.M{"$ifNull": bson.A{"$reactions", bson.A{}}},
					"as":    "r",
					"cond":  bson.M{"$ne": bson.A{"$$r.userId", bson.M{"$literal": reaction.UserID}}},
				}},
				bson.A{bson.M{"$literal": reaction}},
			}},
		}}},
	}

	res, err := r.col.UpdateOne(ctx, filter, pipeline)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	m, err := r.FindMessage(ctx, id)
	if err != nil {
		return err
	}
	if m.IsDeleted {
		return apperr.NotFound("Message", id.Hex())
	}
	return apperr.Conflict("You already reacted with this emoji")
}

func (r *MongoMessages) RemoveReactions(ctx context.Context, id primitive.ObjectID, userID string) (int64, error) {
	var before models.Message
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$pull": bson.M{"reactions": bson.M{"userId": userID}}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, apperr.NotFound("Message", id.Hex())
	}
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, rx := range before.Reactions {
		if rx.UserID == userID {
			removed++
		}
	}
	return removed, nil
}

func (r *MongoMessages) MarkRead(ctx context.Context, ids []primitive.ObjectID, userID string, at time.Time) (int64, error) {
	defer metrics.ObserveStore("mark_read", time.Now())
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.col.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "readBy.userId": bson.M{"$ne": userID}},
		bson.M{"$push": bson.M{"readBy": models.ReadReceipt{UserID: userID, ReadAt: at}}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

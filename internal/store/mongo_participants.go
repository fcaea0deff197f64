package store

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoParticipants struct {
	col *mongo.Collection
}

func participantKeyFilter(chatID primitive.ObjectID, userID string) bson.M {
	return bson.M{"chatId": chatID, "userId": userID}
}

func (r *MongoParticipants) Ensure(ctx context.Context, chatID primitive.ObjectID, userID string) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx,
		participantKeyFilter(chatID, userID),
		bson.M{
			"$set": bson.M{"isArchived": false, "updatedAt": now},
			"$setOnInsert": bson.M{
				"unreadCount": int64(0),
				"isPinned":    false,
				"isMuted":     false,
				"isBlocked":   false,
				"createdAt":   now,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *MongoParticipants) Archive(ctx context.Context, chatID primitive.ObjectID, userID string) error {
	res, err := r.col.UpdateOne(ctx,
		participantKeyFilter(chatID, userID),
		bson.M{"$set": bson.M{"isArchived": true, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Participant", userID)
	}
	return nil
}

func (r *MongoParticipants) DeleteByChat(ctx context.Context, chatID primitive.ObjectID) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"chatId": chatID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MongoParticipants) FindParticipant(ctx context.Context, chatID primitive.ObjectID, userID string) (*models.ChatParticipant, error) {
	var p models.ChatParticipant
	err := r.col.FindOne(ctx, participantKeyFilter(chatID, userID)).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("Participant", userID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *MongoParticipants) list(ctx context.Context, filter bson.M) ([]models.ChatParticipant, error) {
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ChatParticipant
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoParticipants) ListByUser(ctx context.Context, userID string, archived bool) ([]models.ChatParticipant, error) {
	return r.list(ctx, bson.M{"userId": userID, "isArchived": archived})
}

func (r *MongoParticipants) ListByChat(ctx context.Context, chatID primitive.ObjectID) ([]models.ChatParticipant, error) {
	return r.list(ctx, bson.M{"chatId": chatID})
}

func (r *MongoParticipants) UpdateViewState(ctx context.Context, chatID primitive.ObjectID, userID string, upd models.ViewStateUpdate, now time.Time) (*models.ChatParticipant, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	unset := bson.M{}
	if upd.IsPinned != nil {
		set["isPinned"] = *upd.IsPinned
		if *upd.IsPinned {
			set["pinnedAt"] = now
		} else {
			unset["pinnedAt"] = ""
		}
	}
	if upd.IsMuted != nil {
		set["isMuted"] = *upd.IsMuted
		if !*upd.IsMuted {
			unset["mutedUntil"] = ""
		}
	}
	if upd.MutedUntil != nil {
		set["mutedUntil"] = *upd.MutedUntil
		delete(unset, "mutedUntil")
	}
	if upd.IsArchived != nil {
		set["isArchived"] = *upd.IsArchived
	}
	if upd.IsBlocked != nil {
		set["isBlocked"] = *upd.IsBlocked
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var p models.ChatParticipant
	err := r.col.FindOneAndUpdate(ctx,
		participantKeyFilter(chatID, userID),
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("Participant", userID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *MongoParticipants) IncrementUnread(ctx context.Context, chatID primitive.ObjectID, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.col.UpdateMany(ctx,
		bson.M{"chatId": chatID, "userId": bson.M{"$in": userIDs}},
		bson.M{"$inc": bson.M{"unreadCount": 1}},
	)
	return err
}

func (r *MongoParticipants) MarkChatRead(ctx context.Context, chatID primitive.ObjectID, userID string, lastRead *primitive.ObjectID) error {
	set := bson.M{"unreadCount": int64(0), "updatedAt": time.Now().UTC()}
	if lastRead != nil {
		set["lastReadMessageId"] = *lastRead
	}
	res, err := r.col.UpdateOne(ctx, participantKeyFilter(chatID, userID), bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Participant", userID)
	}
	return nil
}

func (r *MongoParticipants) RecordRead(ctx context.Context, chatID primitive.ObjectID, userID string, lastRead primitive.ObjectID, count int64) error {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"unreadCount": bson.M{"$max": bson.A{
				0,
				bson.M{"$subtract": bson.A{bson.M{"$ifNull": bson.A{"$unreadCount", 0}}, count}},
			}},
			"lastReadMessageId": lastRead,
			"updatedAt":         time.Now().UTC(),
		}}},
	}
	_, err := r.col.UpdateOne(ctx, participantKeyFilter(chatID, userID), pipeline)
	return err
}

func (r *MongoParticipants) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": userID, "isArchived": false}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$unreadCount"}}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

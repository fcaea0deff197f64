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

type MongoChats struct {
	col *mongo.Collection
}

func (r *MongoChats) InsertChat(ctx context.Context, chat *models.Chat) error {
	defer metrics.ObserveStore("insert_chat", time.Now())
	if chat.ID.IsZero() {
		chat.ID = primitive.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, chat)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("Chat already exists")
	}
	return err
}

func (r *MongoChats) FindChat(ctx context.Context, id primitive.ObjectID) (*models.Chat, error) {
	defer metrics.ObserveStore("find_chat", time.Now())
	var chat models.Chat
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("Chat", id.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *MongoChats) FindPrivateChat(ctx context.Context, userA, userB string) (*models.Chat, error) {
	filter := bson.M{
		"type":    models.ChatTypePrivate,
		"pairKey": models.PrivatePairKey(userA, userB),
	}
	var chat models.Chat
	err := r.col.FindOne(ctx, filter).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func chatFilter(q ChatQuery) bson.M {
	return bson.M{
		"_id": bson.M{"$in": q.IDs},
		"participants": bson.M{"$elemMatch": bson.M{
			"userId":   q.UserID,
			"isActive": true,
		}},
	}
}

func (r *MongoChats) ListChats(ctx context.Context, q ChatQuery) ([]models.Chat, error) {
	defer metrics.ObserveStore("list_chats", time.Now())
	if len(q.IDs) == 0 {
		return []models.Chat{}, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "lastActivity", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(q.Skip)
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cur, err := r.col.Find(ctx, chatFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	chats := make([]models.Chat, 0)
	if err := cur.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *MongoChats) CountChats(ctx context.Context, q ChatQuery) (int64, error) {
	if len(q.IDs) == 0 {
		return 0, nil
	}
	return r.col.CountDocuments(ctx, chatFilter(q))
}

func (r *MongoChats) ReplaceParticipants(ctx context.Context, id primitive.ObjectID, expectedVersion int64, participants []models.Participant) error {
	defer metrics.ObserveStore("replace_participants", time.Now())
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "version": expectedVersion},
		bson.M{
			"$set": bson.M{"participants": participants, "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := r.col.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("Chat", id.Hex())
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *MongoChats) updateByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	set["updatedAt"] = time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Chat", id.Hex())
	}
	return nil
}

func (r *MongoChats) UpdateGroupInfo(ctx context.Context, id primitive.ObjectID, info GroupInfo) error {
	set := bson.M{}
	if info.Name != nil {
		set["groupName"] = *info.Name
	}
	if info.Description != nil {
		set["groupDescription"] = *info.Description
	}
	if info.Avatar != nil {
		set["groupAvatar"] = *info.Avatar
	}
	return r.updateByID(ctx, id, set)
}

func (r *MongoChats) UpdateGroupSettings(ctx context.Context, id primitive.ObjectID, settings models.GroupSettings) error {
	return r.updateByID(ctx, id, bson.M{"groupSettings": settings})
}

func (r *MongoChats) TouchLastMessage(ctx context.Context, id, messageID primitive.ObjectID, at time.Time) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "lastActivity": bson.M{"$lte": at}},
		bson.M{"$set": bson.M{"lastMessage": messageID, "lastActivity": at}},
	)
	return err
}

func (r *MongoChats) DeleteChat(ctx context.Context, id primitive.ObjectID, expectedVersion int64) error {
	defer metrics.ObserveStore("delete_chat", time.Now())
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "version": expectedVersion})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		n, err := r.col.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("Chat", id.Hex())
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *MongoChats) EachChat(ctx context.Context, fn func(*models.Chat) error) error {
	cur, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var chat models.Chat
		if err := cur.Decode(&chat); err != nil {
			return err
		}
		if err := fn(&chat); err != nil {
			return err
		}
	}
	return cur.Err()
}

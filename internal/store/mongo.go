package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	chatsCollection        = "chats"
	participantsCollection = "chat_participants"
	messagesCollection     = "messages"
)

// NewMongoStore wires the Mongo repositories. When transactions is true, grouped
// writes run inside a multi-document transaction (requires a replica set).
func NewMongoStore(client *mongo.Client, db *mongo.Database, transactions bool) *Store {
	return &Store{
		Chats:        &MongoChats{col: db.Collection(chatsCollection)},
		Participants: &MongoParticipants{col: db.Collection(participantsCollection)},
		Messages:     &MongoMessages{col: db.Collection(messagesCollection)},
		Tx:           &MongoTx{client: client, enabled: transactions},
	}
}

// EnsureIndexes configures indexes for all three collections.
// Called on startup after Mongo has connected.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		chatsCollection: {
			{
				Keys:    bson.D{{Key: "participants.userId", Value: 1}, {Key: "lastActivity", Value: -1}},
				Options: options.Index().SetName("idx_participant_activity"),
			},
			{
				Keys: bson.D{{Key: "pairKey", Value: 1}},
				Options: options.Index().SetName("uniq_private_pair").SetUnique(true).
					SetPartialFilterExpression(bson.M{"pairKey": bson.M{"$exists": true}}),
			},
		},
		participantsCollection: {
			{
				Keys:    bson.D{{Key: "chatId", Value: 1}, {Key: "userId", Value: 1}},
				Options: options.Index().SetName("uniq_chat_user").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "isArchived", Value: 1}},
				Options: options.Index().SetName("idx_user_archived"),
			},
		},
		messagesCollection: {
			{
				Keys:    bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("idx_chat_created"),
			},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

// MongoTx runs fn in a session transaction, or directly when transactions are disabled.
type MongoTx struct {
	client  *mongo.Client
	enabled bool
}

func (t *MongoTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !t.enabled || t.client == nil {
		return fn(ctx)
	}
	session, err := t.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// Package membership confirms a caller is an active participant of a chat and reports their role.
package membership

import (
	"context"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Checker answers "is userID an active participant of chatID, and with which role".
// A missing chat is a NotFoundError; a non-participant is a ForbiddenError.
type Checker interface {
	Check(ctx context.Context, chatType models.ChatType, chatID primitive.ObjectID, userID string) (models.Role, error)
}

// Local checks against the chat store in-process.
type Local struct {
	chats store.ChatRepository
}

func NewLocal(chats store.ChatRepository) *Local {
	return &Local{chats: chats}
}

func (l *Local) Check(ctx context.Context, chatType models.ChatType, chatID primitive.ObjectID, userID string) (models.Role, error) {
	_, role, err := l.Lookup(ctx, chatType, chatID, userID)
	return role, err
}

// Lookup also returns the chat, for the served membership endpoint.
func (l *Local) Lookup(ctx context.Context, chatType models.ChatType, chatID primitive.ObjectID, userID string) (*models.Chat, models.Role, error) {
	chat, err := l.chats.FindChat(ctx, chatID)
	if err != nil {
		return nil, "", err
	}
	if chatType != "" && chat.Type != chatType {
		return nil, "", apperr.NotFound("Chat", chatID.Hex())
	}
	p, ok := chat.ActiveParticipant(userID)
	if !ok {
		return nil, "", apperr.Forbidden("You are not a participant of this chat")
	}
	return chat, p.Role, nil
}

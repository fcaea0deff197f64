// Package store persists chats, their participant projection and messages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrVersionConflict is returned when a membership write lost a compare-and-swap race.
var ErrVersionConflict = errors.New("chat was modified concurrently")

type GroupInfo struct {
	Name        *string
	Description *string
	Avatar      *string
}

// ChatQuery selects the chats a user is actively participating in, restricted to IDs.
type ChatQuery struct {
	UserID string
	IDs    []primitive.ObjectID
	Skip   int64
	Limit  int64
}

type ChatRepository interface {
	InsertChat(ctx context.Context, chat *models.Chat) error
	FindChat(ctx context.Context, id primitive.ObjectID) (*models.Chat, error)
	// FindPrivateChat returns nil, nil when the unordered pair has no private chat.
	FindPrivateChat(ctx context.Context, userA, userB string) (*models.Chat, error)
	// ListChats orders by lastActivity, newest first.
	ListChats(ctx context.Context, q ChatQuery) ([]models.Chat, error)
	CountChats(ctx context.Context, q ChatQuery) (int64, error)
	// ReplaceParticipants writes the membership list only if the stored version still matches.
	ReplaceParticipants(ctx context.Context, id primitive.ObjectID, expectedVersion int64, participants []models.Participant) error
	UpdateGroupInfo(ctx context.Context, id primitive.ObjectID, info GroupInfo) error
	UpdateGroupSettings(ctx context.Context, id primitive.ObjectID, settings models.GroupSettings) error
	// TouchLastMessage never moves lastActivity backwards.
	TouchLastMessage(ctx context.Context, id, messageID primitive.ObjectID, at time.Time) error
	// DeleteChat removes the chat if it is still at expectedVersion.
	DeleteChat(ctx context.Context, id primitive.ObjectID, expectedVersion int64) error
	EachChat(ctx context.Context, fn func(*models.Chat) error) error
}

type ParticipantRepository interface {
	// Ensure creates the row for (chatID, userID) or un-archives an existing one.
	Ensure(ctx context.Context, chatID primitive.ObjectID, userID string) error
	Archive(ctx context.Context, chatID primitive.ObjectID, userID string) error
	DeleteByChat(ctx context.Context, chatID primitive.ObjectID) (int64, error)
	FindParticipant(ctx context.Context, chatID primitive.ObjectID, userID string) (*models.ChatParticipant, error)
	ListByUser(ctx context.Context, userID string, archived bool) ([]models.ChatParticipant, error)
	ListByChat(ctx context.Context, chatID primitive.ObjectID) ([]models.ChatParticipant, error)
	UpdateViewState(ctx context.Context, chatID primitive.ObjectID, userID string, upd models.ViewStateUpdate, now time.Time) (*models.ChatParticipant, error)
	IncrementUnread(ctx context.Context, chatID primitive.ObjectID, userIDs []string) error
	// MarkChatRead zeroes the unread counter.
	MarkChatRead(ctx context.Context, chatID primitive.ObjectID, userID string, lastRead *primitive.ObjectID) error
	// RecordRead lowers the unread counter by count, never below zero.
	RecordRead(ctx context.Context, chatID primitive.ObjectID, userID string, lastRead primitive.ObjectID, count int64) error
	UnreadTotal(ctx context.Context, userID string) (int64, error)
}

// MessageQuery selects a chat's feed as seen by ViewerID.
type MessageQuery struct {
	ChatID        primitive.ObjectID
	ViewerID      string
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
	Skip          int64
	Limit         int64
	// Ascending reads oldest first; feeds are otherwise newest first.
	Ascending bool
}

type MessageRepository interface {
	InsertMessage(ctx context.Context, m *models.Message) error
	FindMessage(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	FindMessages(ctx context.Context, ids []primitive.ObjectID) ([]models.Message, error)
	ListMessages(ctx context.Context, q MessageQuery) ([]models.Message, error)
	CountMessages(ctx context.Context, q MessageQuery) (int64, error)
	// UpdateContent only applies to messages that are not tombstoned.
	UpdateContent(ctx context.Context, id primitive.ObjectID, content string, editedAt time.Time) error
	HideForUser(ctx context.Context, id primitive.ObjectID, userID string) error
	Tombstone(ctx context.Context, id primitive.ObjectID, deletedBy string, at time.Time) error
	// PutReaction replaces the user's reaction and fails with a conflict on the same emoji.
	PutReaction(ctx context.Context, id primitive.ObjectID, reaction models.Reaction) error
	RemoveReactions(ctx context.Context, id primitive.ObjectID, userID string) (int64, error)
	// MarkRead appends a receipt to each message that has none from userID.
	MarkRead(ctx context.Context, ids []primitive.ObjectID, userID string, at time.Time) (int64, error)
}

// TxRunner groups writes that must land together.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles the repositories behind one backend.
type Store struct {
	Chats        ChatRepository
	Participants ParticipantRepository
	Messages     MessageRepository
	Tx           TxRunner
}

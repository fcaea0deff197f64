package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatParticipant is the per-user view state of a chat. It is a projection of
// Chat.Participants and never decides membership on its own.
type ChatParticipant struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ChatID            primitive.ObjectID  `bson:"chatId" json:"chatId"`
	UserID            string              `bson:"userId" json:"userId"`
	UnreadCount       int64               `bson:"unreadCount" json:"unreadCount"`
	IsPinned          bool                `bson:"isPinned" json:"isPinned"`
	IsMuted           bool                `bson:"isMuted" json:"isMuted"`
	IsArchived        bool                `bson:"isArchived" json:"isArchived"`
	IsBlocked         bool                `bson:"isBlocked" json:"isBlocked"`
	PinnedAt          *time.Time          `bson:"pinnedAt,omitempty" json:"pinnedAt,omitempty"`
	MutedUntil        *time.Time          `bson:"mutedUntil,omitempty" json:"mutedUntil,omitempty"`
	LastReadMessageID *primitive.ObjectID `bson:"lastReadMessageId,omitempty" json:"lastReadMessageId,omitempty"`
	CreatedAt         time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// ViewStateUpdate carries the user-owned flags; nil fields are left untouched.
type ViewStateUpdate struct {
	IsPinned   *bool      `json:"isPinned,omitempty"`
	IsMuted    *bool      `json:"isMuted,omitempty"`
	MutedUntil *time.Time `json:"mutedUntil,omitempty"`
	IsArchived *bool      `json:"isArchived,omitempty"`
	IsBlocked  *bool      `json:"isBlocked,omitempty"`
}

func (u ViewStateUpdate) IsEmpty() bool {
	return u.IsPinned == nil && u.IsMuted == nil && u.MutedUntil == nil && u.IsArchived == nil && u.IsBlocked == nil
}

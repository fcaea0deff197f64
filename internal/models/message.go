package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	MessageTypeEmoji    MessageType = "emoji"
)

func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeDocument, MessageTypeEmoji:
		return true
	}
	return false
}

// CarriesContent is true for text and emoji; every other type carries attachments.
func (t MessageType) CarriesContent() bool {
	return t == MessageTypeText || t == MessageTypeEmoji
}

type Attachment struct {
	URL      string `bson:"url" json:"url" validate:"required,url"`
	FileName string `bson:"fileName,omitempty" json:"fileName,omitempty"`
	FileSize int64  `bson:"fileSize,omitempty" json:"fileSize,omitempty" validate:"gte=0"`
	MimeType string `bson:"mimeType,omitempty" json:"mimeType,omitempty"`
}

// ReplyPreview is denormalized at send time so a reply renders without a second lookup.
type ReplyPreview struct {
	MessageID   primitive.ObjectID `bson:"messageId" json:"messageId"`
	Content     string             `bson:"content,omitempty" json:"content,omitempty"`
	SenderID    string             `bson:"senderId" json:"senderId"`
	MessageType MessageType        `bson:"messageType" json:"messageType"`
}

type ForwardInfo struct {
	OriginalMessageID primitive.ObjectID `bson:"originalMessageId" json:"originalMessageId"`
	OriginalSender    string             `bson:"originalSender" json:"originalSender"`
	ForwardedAt       time.Time          `bson:"forwardedAt" json:"forwardedAt"`
}

type ReadReceipt struct {
	UserID string    `bson:"userId" json:"userId"`
	ReadAt time.Time `bson:"readAt" json:"readAt"`
}

type Reaction struct {
	UserID    string    `bson:"userId" json:"userId"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	EmojiKey  string    `bson:"emojiKey" json:"-"`
	ReactedAt time.Time `bson:"reactedAt" json:"reactedAt"`
}

// EmojiKey normalizes an emoji for the case-insensitive duplicate check.
func EmojiKey(emoji string) string {
	return strings.ToLower(strings.TrimSpace(emoji))
}

// Message rows are never hard-removed. DeletedFor hides a row from individual readers;
// IsDeleted tombstones it for everyone.
type Message struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChatID        primitive.ObjectID `bson:"chatId" json:"chatId"`
	SenderID      string             `bson:"senderId" json:"senderId"`
	MessageType   MessageType        `bson:"messageType" json:"messageType"`
	Content       string             `bson:"content,omitempty" json:"content,omitempty"`
	Attachments   []Attachment       `bson:"attachments,omitempty" json:"attachments,omitempty"`
	ReplyTo       *ReplyPreview      `bson:"replyTo,omitempty" json:"replyTo,omitempty"`
	ForwardedFrom *ForwardInfo       `bson:"forwardedFrom,omitempty" json:"forwardedFrom,omitempty"`
	EditedAt      *time.Time         `bson:"editedAt,omitempty" json:"editedAt,omitempty"`
	IsDeleted     bool               `bson:"isDeleted" json:"isDeleted"`
	DeletedAt     *time.Time         `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	DeletedBy     string             `bson:"deletedBy,omitempty" json:"deletedBy,omitempty"`
	DeletedFor    []string           `bson:"deletedFor,omitempty" json:"-"`
	ReadBy        []ReadReceipt      `bson:"readBy" json:"readBy"`
	Reactions     []Reaction         `bson:"reactions" json:"reactions"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// HiddenFor reports whether userID deleted this message for themselves.
func (m *Message) HiddenFor(userID string) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}

// ReadByUser reports whether userID already has a receipt.
func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Preview builds the denormalized reply preview, truncating long text.
func (m *Message) Preview() *ReplyPreview {
	content := m.Content
	if r := []rune(content); len(r) > 100 {
		content = string(r[:100])
	}
	return &ReplyPreview{
		MessageID:   m.ID,
		Content:     content,
		SenderID:    m.SenderID,
		MessageType: m.MessageType,
	}
}

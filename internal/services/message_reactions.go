package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	maxEmojiLength = 16
	maxReadBatch   = 200
)

// MarkReadResult counts receipts written by this call only.
type MarkReadResult struct {
	Marked int64 `json:"marked"`
}

// React sets the caller's reaction. A different emoji replaces the previous one; the
// same emoji again is a conflict.
func (s *MessageService) React(ctx context.Context, userID string, messageID primitive.ObjectID, emoji string) (*MessageView, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, apperr.Validation("emoji", "Emoji is required")
	}
	if utf8.RuneCountInString(emoji) > maxEmojiLength {
		return nil, apperr.Validation("emoji", "Emoji is too long")
	}

	msg, _, _, err := s.visible(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, apperr.Validation("messageId", "Cannot react to a deleted message")
	}

	now := s.deps.Now()
	err = s.deps.Store.Messages.PutReaction(ctx, messageID, models.Reaction{
		UserID:    userID,
		Emoji:     emoji,
		EmojiKey:  models.EmojiKey(emoji),
		ReactedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return s.reactionChanged(ctx, userID, messageID)
}

// Unreact removes every reaction the caller left. Having none is not an error.
func (s *MessageService) Unreact(ctx context.Context, userID string, messageID primitive.ObjectID) (*MessageView, error) {
	msg, _, _, err := s.visible(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	n, err := s.deps.Store.Messages.RemoveReactions(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return s.messageView(ctx, msg), nil
	}
	return s.reactionChanged(ctx, userID, messageID)
}

func (s *MessageService) reactionChanged(ctx context.Context, userID string, messageID primitive.ObjectID) (*MessageView, error) {
	msg, err := s.deps.Store.Messages.FindMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	view := s.messageView(ctx, msg)
	publish(ctx, s.deps.Realtime, realtime.Event{
		Type:      realtime.EventReactionUpdated,
		ChatID:    msg.ChatID.Hex(),
		UserID:    userID,
		Data:      map[string]any{"messageId": msg.ID.Hex(), "reactions": msg.Reactions},
		Timestamp: s.deps.Now(),
	})
	return view, nil
}

// MarkAsRead writes a receipt on each message the caller has not read yet. Messages in
// chats the caller is not an active participant of are skipped, as are their own.
func (s *MessageService) MarkAsRead(ctx context.Context, userID string, ids []primitive.ObjectID) (*MarkReadResult, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("messageIds", "at least one message id is required")
	}
	if len(ids) > maxReadBatch {
		return nil, apperr.Validation("messageIds", "too many messages in one request")
	}

	msgs, err := s.deps.Store.Messages.FindMessages(ctx, ids)
	if err != nil {
		return nil, err
	}

	byChat := make(map[primitive.ObjectID][]*models.Message)
	var order []primitive.ObjectID
	for i := range msgs {
		m := &msgs[i]
		if m.SenderID == userID || m.IsDeleted || m.HiddenFor(userID) || m.ReadByUser(userID) {
			continue
		}
		if _, ok := byChat[m.ChatID]; !ok {
			order = append(order, m.ChatID)
		}
		byChat[m.ChatID] = append(byChat[m.ChatID], m)
	}

	log := logger.FromContext(ctx)
	res := &MarkReadResult{}
	now := s.deps.Now()
	for _, chatID := range order {
		if _, _, err := s.member(ctx, chatID, userID); err != nil {
			log.WithError(err).WithField("chatId", chatID.Hex()).Debug("Skipping read receipts")
			continue
		}

		group := byChat[chatID]
		chatIDs := make([]primitive.ObjectID, 0, len(group))
		newest := group[0]
		for _, m := range group {
			chatIDs = append(chatIDs, m.ID)
			if m.CreatedAt.After(newest.CreatedAt) {
				newest = m
			}
		}

		n, err := s.deps.Store.Messages.MarkRead(ctx, chatIDs, userID, now)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		if err := s.deps.Store.Participants.RecordRead(ctx, chatID, userID, newest.ID, n); err != nil {
			return nil, err
		}
		res.Marked += n

		hexIDs := make([]string, len(chatIDs))
		for i, id := range chatIDs {
			hexIDs[i] = id.Hex()
		}
		publish(ctx, s.deps.Realtime, realtime.Event{
			Type:      realtime.EventMessagesRead,
			ChatID:    chatID.Hex(),
			UserID:    userID,
			Data:      map[string]any{"messageIds": hexIDs},
			Timestamp: now,
		})
	}
	return res, nil
}

// Package services implements chat membership and the message lifecycle on top of the
// store, the identity service and the membership checker.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/identity"
	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/AnshRaj112/serenify-conversations/internal/membership"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Deps are the collaborators shared by the services.
type Deps struct {
	Store    *store.Store
	Events   store.EventLog
	Identity identity.Resolver
	Members  membership.Checker
	Realtime realtime.Publisher
	// EditWindow bounds how long after sending a message may be edited; 0 disables the limit.
	EditWindow time.Duration
	Now        func() time.Time
}

func (d *Deps) withDefaults() {
	if d.Events == nil {
		d.Events = store.NewMemoryEventLog()
	}
	if d.Realtime == nil {
		d.Realtime = realtime.Discard{}
	}
	if d.Members == nil {
		d.Members = membership.NewLocal(d.Store.Chats)
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
}

// ParticipantView is a membership entry with the participant's profile.
type ParticipantView struct {
	models.Participant
	User *identity.Profile `json:"user,omitempty"`
}

// ChatView is a chat as returned to one viewer.
type ChatView struct {
	*models.Chat
	Participants []ParticipantView       `json:"participants"`
	LastMessage  *MessageView            `json:"lastMessage,omitempty"`
	ViewState    *models.ChatParticipant `json:"viewState,omitempty"`
	UnreadCount  int64                   `json:"unreadCount"`
}

// ReactionView is a reaction with the reacting user's profile.
type ReactionView struct {
	models.Reaction
	User *identity.Profile `json:"user,omitempty"`
}

// MessageView is a message with its sender's profile.
type MessageView struct {
	*models.Message
	Sender    *identity.Profile `json:"sender,omitempty"`
	Reactions []ReactionView    `json:"reactions"`
}

type profiles map[string]identity.Profile

func (p profiles) lookup(id string) *identity.Profile {
	if prof, ok := p[id]; ok {
		return &prof
	}
	return nil
}

// resolve never fails the request: enrichment is best-effort.
func resolve(ctx context.Context, resolver identity.Resolver, ids []string) profiles {
	out, err := resolver.Resolve(ctx, ids)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Profile enrichment skipped")
		return profiles{}
	}
	return out
}

func messageUserIDs(msgs ...*models.Message) []string {
	var ids []string
	for _, m := range msgs {
		if m == nil {
			continue
		}
		ids = append(ids, m.SenderID)
		for _, r := range m.Reactions {
			ids = append(ids, r.UserID)
		}
	}
	return ids
}

func newMessageView(m *models.Message, profs profiles) *MessageView {
	v := &MessageView{Message: m, Sender: profs.lookup(m.SenderID), Reactions: make([]ReactionView, 0, len(m.Reactions))}
	for _, r := range m.Reactions {
		v.Reactions = append(v.Reactions, ReactionView{Reaction: r, User: profs.lookup(r.UserID)})
	}
	return v
}

func newChatView(chat *models.Chat, profs profiles) *ChatView {
	v := &ChatView{Chat: chat, Participants: make([]ParticipantView, 0, len(chat.Participants))}
	for _, p := range chat.Participants {
		v.Participants = append(v.Participants, ParticipantView{Participant: p, User: profs.lookup(p.UserID)})
	}
	return v
}

// ParseObjectID validates a hex id and names the offending field.
func ParseObjectID(field, raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation(field, "invalid id")
	}
	return id, nil
}

func publish(ctx context.Context, pub realtime.Publisher, ev realtime.Event) {
	if err := pub.Publish(ctx, ev); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("event", ev.Type).Warn("Realtime publish failed")
	}
}

func recordEvents(ctx context.Context, log store.EventLog, events []store.MembershipEvent) {
	for _, ev := range events {
		if err := log.Record(ctx, ev); err != nil {
			logger.FromContext(ctx).WithError(err).
				WithField("chatId", ev.ChatID.Hex()).
				WithField("kind", ev.Kind).
				Error("Failed to record membership event")
		}
	}
}

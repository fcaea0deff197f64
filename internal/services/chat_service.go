package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/identity"
	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/pagination"
	"github.com/AnshRaj112/serenify-conversations/internal/permissions"
	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	maxGroupNameLength        = 100
	maxGroupDescriptionLength = 500
)

type ChatService struct {
	deps Deps
}

func NewChatService(deps Deps) *ChatService {
	deps.withDefaults()
	return &ChatService{deps: deps}
}

// CreateGroupInput is the payload of a group creation.
type CreateGroupInput struct {
	Name        string
	Description string
	Avatar      string
	MemberIDs   []string
}

// ChatPage is one offset page of a user's chat list.
type ChatPage struct {
	Chats      []ChatView      `json:"chats"`
	Pagination pagination.Meta `json:"pagination"`
}

// UnreadSummary totals unread messages across a user's chats.
type UnreadSummary struct {
	TotalUnread int64             `json:"totalUnread"`
	Chats       []ChatUnreadCount `json:"chats"`
}

type ChatUnreadCount struct {
	ChatID      primitive.ObjectID `json:"chatId"`
	UnreadCount int64              `json:"unreadCount"`
}

// SettingsUpdate carries the group settings to change; empty fields are left untouched.
type SettingsUpdate struct {
	WhoCanAddMembers    models.Audience
	WhoCanEditGroupInfo models.Audience
	WhoCanSendMessages  models.Audience
}

// CreatePrivateChat returns the chat for the unordered pair, creating it if needed.
// created is false when the chat already existed.
func (s *ChatService) CreatePrivateChat(ctx context.Context, senderID, participantID string) (*ChatView, bool, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, false, apperr.Validation("participantId", "is required")
	}
	if participantID == senderID {
		return nil, false, apperr.Validation("participantId", "You cannot create a chat with yourself")
	}

	verified, err := s.deps.Identity.Verify(ctx, []string{participantID})
	if err != nil {
		return nil, false, err
	}
	if _, ok := verified[participantID]; !ok {
		return nil, false, apperr.NotFound("User", participantID)
	}

	existing, err := s.deps.Store.Chats.FindPrivateChat(ctx, senderID, participantID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		chat, err := s.reactivatePrivate(ctx, existing.ID)
		if err != nil {
			return nil, false, err
		}
		view, err := s.view(ctx, chat, senderID)
		return view, false, err
	}

	now := s.deps.Now()
	chat := &models.Chat{
		Type:    models.ChatTypePrivate,
		PairKey: models.PrivatePairKey(senderID, participantID),
		Participants: []models.Participant{
			{UserID: senderID, Role: models.RoleMember, IsActive: true, JoinedAt: now},
			{UserID: participantID, Role: models.RoleMember, IsActive: true, JoinedAt: now},
		},
		CreatedBy:    senderID,
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.insertChat(ctx, chat)
	var conflict *apperr.ConflictError
	if errors.As(err, &conflict) {
		// Lost a creation race for the same pair.
		existing, err := s.deps.Store.Chats.FindPrivateChat(ctx, senderID, participantID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, conflict
		}
		view, err := s.view(ctx, existing, senderID)
		return view, false, err
	}
	if err != nil {
		return nil, false, err
	}

	logger.FromContext(ctx).WithField("chatId", chat.ID.Hex()).Info("Private chat created")
	view, err := s.view(ctx, chat, senderID)
	return view, true, err
}

// reactivatePrivate flips soft-left entries of a private chat back to active.
func (s *ChatService) reactivatePrivate(ctx context.Context, chatID primitive.ObjectID) (*models.Chat, error) {
	return s.mutateMembership(ctx, chatID, func(chat *models.Chat) ([]membershipChange, error) {
		var changes []membershipChange
		for i := range chat.Participants {
			p := &chat.Participants[i]
			if p.IsActive {
				continue
			}
			p.IsActive = true
			p.LeftAt = nil
			p.JoinedAt = s.deps.Now()
			changes = append(changes, membershipChange{userID: p.UserID, kind: changeAdded})
		}
		return changes, nil
	})
}

// CreateGroupChat creates a group owned by creatorID with every verified member.
func (s *ChatService) CreateGroupChat(ctx context.Context, creatorID string, in CreateGroupInput) (*ChatView, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name", "Group name is required")
	}
	if utf8.RuneCountInString(name) > maxGroupNameLength {
		return nil, apperr.Validation("name", "Group name is too long")
	}
	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) > maxGroupDescriptionLength {
		return nil, apperr.Validation("description", "Group description is too long")
	}

	ids := identity.Unique(append([]string{creatorID}, in.MemberIDs...))
	verified, err := s.deps.Identity.Verify(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.deps.Now()
	var participants []models.Participant
	for _, id := range ids {
		if _, ok := verified[id]; !ok {
			continue
		}
		role := models.RoleMember
		if id == creatorID {
			role = models.RoleOwner
		}
		participants = append(participants, models.Participant{UserID: id, Role: role, IsActive: true, JoinedAt: now})
	}
	if _, ok := verified[creatorID]; !ok || len(participants) < 2 {
		return nil, apperr.Validation("memberIds", "A group needs at least 2 valid members")
	}

	settings := models.DefaultGroupSettings()
	chat := &models.Chat{
		Type:             models.ChatTypeGroup,
		Participants:     participants,
		GroupName:        name,
		GroupDescription: description,
		GroupAvatar:      strings.TrimSpace(in.Avatar),
		GroupSettings:    &settings,
		CreatedBy:        creatorID,
		LastActivity:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.insertChat(ctx, chat); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithField("chatId", chat.ID.Hex()).WithField("members", len(participants)).Info("Group chat created")
	return s.view(ctx, chat, creatorID)
}

// insertChat writes the chat and one participant row per active member together.
func (s *ChatService) insertChat(ctx context.Context, chat *models.Chat) error {
	err := s.deps.Store.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.deps.Store.Chats.InsertChat(ctx, chat); err != nil {
			return err
		}
		for _, id := range chat.ActiveUserIDs() {
			if err := s.deps.Store.Participants.Ensure(ctx, chat.ID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	events := make([]store.MembershipEvent, 0, len(chat.Participants))
	for _, id := range chat.ActiveUserIDs() {
		events = append(events, store.NewMembershipEvent(chat.ID, id, store.EventParticipantAdded))
	}
	recordEvents(ctx, s.deps.Events, events)
	return nil
}

// activeChat loads chatID and the caller's active entry.
func (s *ChatService) activeChat(ctx context.Context, chatID primitive.ObjectID, userID string) (*models.Chat, *models.Participant, error) {
	chat, err := s.deps.Store.Chats.FindChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	p, ok := chat.ActiveParticipant(userID)
	if !ok {
		return nil, nil, apperr.Forbidden("You are not a participant of this chat")
	}
	return chat, p, nil
}

func (s *ChatService) activeGroup(ctx context.Context, chatID primitive.ObjectID, userID string) (*models.Chat, *models.Participant, error) {
	chat, p, err := s.activeChat(ctx, chatID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !chat.IsGroup() {
		return nil, nil, apperr.Validation("chatId", "This action is only available for group chats")
	}
	return chat, p, nil
}

func (s *ChatService) view(ctx context.Context, chat *models.Chat, viewerID string) (*ChatView, error) {
	var last *models.Message
	if chat.LastMessage != nil {
		m, err := s.deps.Store.Messages.FindMessage(ctx, *chat.LastMessage)
		if err != nil && !apperr.IsNotFound(err) {
			return nil, err
		}
		if m != nil && !m.HiddenFor(viewerID) {
			last = m
		}
	}

	ids := append(chat.ActiveUserIDs(), messageUserIDs(last)...)
	profs := resolve(ctx, s.deps.Identity, ids)

	v := newChatView(chat, profs)
	if last != nil {
		v.LastMessage = newMessageView(last, profs)
	}
	row, err := s.deps.Store.Participants.FindParticipant(ctx, chat.ID, viewerID)
	if err != nil && !apperr.IsNotFound(err) {
		return nil, err
	}
	if row != nil {
		v.ViewState = row
		v.UnreadCount = row.UnreadCount
	}
	return v, nil
}

// GetChat returns a chat the caller actively participates in.
func (s *ChatService) GetChat(ctx context.Context, userID string, chatID primitive.ObjectID) (*ChatView, error) {
	chat, _, err := s.activeChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, chat, userID)
}

// ListChats pages the caller's chats: pinned first, then by last activity.
func (s *ChatService) ListChats(ctx context.Context, userID string, page pagination.Offset, archived bool) (*ChatPage, error) {
	rows, err := s.deps.Store.Participants.ListByUser(ctx, userID, archived)
	if err != nil {
		return nil, err
	}
	byChat := make(map[primitive.ObjectID]models.ChatParticipant, len(rows))
	var pinnedIDs, otherIDs []primitive.ObjectID
	for _, r := range rows {
		byChat[r.ChatID] = r
		if r.IsPinned {
			pinnedIDs = append(pinnedIDs, r.ChatID)
		} else {
			otherIDs = append(otherIDs, r.ChatID)
		}
	}

	pinnedQ := store.ChatQuery{UserID: userID, IDs: pinnedIDs}
	otherQ := store.ChatQuery{UserID: userID, IDs: otherIDs}
	pinnedTotal, err := s.deps.Store.Chats.CountChats(ctx, pinnedQ)
	if err != nil {
		return nil, err
	}
	otherTotal, err := s.deps.Store.Chats.CountChats(ctx, otherQ)
	if err != nil {
		return nil, err
	}

	skip, limit := page.Skip(), int64(page.Limit)
	var chats []models.Chat
	if skip < pinnedTotal {
		pinnedQ.Skip, pinnedQ.Limit = skip, limit
		pinned, err := s.deps.Store.Chats.ListChats(ctx, pinnedQ)
		if err != nil {
			return nil, err
		}
		chats = append(chats, pinned...)
		otherQ.Skip, otherQ.Limit = 0, limit-int64(len(pinned))
	} else {
		otherQ.Skip, otherQ.Limit = skip-pinnedTotal, limit
	}
	if otherQ.Limit > 0 && len(otherIDs) > 0 {
		others, err := s.deps.Store.Chats.ListChats(ctx, otherQ)
		if err != nil {
			return nil, err
		}
		chats = append(chats, others...)
	}

	views, err := s.views(ctx, chats, userID, byChat)
	if err != nil {
		return nil, err
	}
	return &ChatPage{Chats: views, Pagination: pagination.NewMeta(page, pinnedTotal+otherTotal)}, nil
}

// views enriches a page of chats with one identity round.
func (s *ChatService) views(ctx context.Context, chats []models.Chat, viewerID string, rows map[primitive.ObjectID]models.ChatParticipant) ([]ChatView, error) {
	var lastIDs []primitive.ObjectID
	for _, c := range chats {
		if c.LastMessage != nil {
			lastIDs = append(lastIDs, *c.LastMessage)
		}
	}
	lastByID := make(map[primitive.ObjectID]*models.Message, len(lastIDs))
	if len(lastIDs) > 0 {
		msgs, err := s.deps.Store.Messages.FindMessages(ctx, lastIDs)
		if err != nil {
			return nil, err
		}
		for i := range msgs {
			if !msgs[i].HiddenFor(viewerID) {
				lastByID[msgs[i].ID] = &msgs[i]
			}
		}
	}

	var ids []string
	for _, c := range chats {
		ids = append(ids, c.ActiveUserIDs()...)
	}
	for _, m := range lastByID {
		ids = append(ids, messageUserIDs(m)...)
	}
	profs := resolve(ctx, s.deps.Identity, ids)

	out := make([]ChatView, 0, len(chats))
	for i := range chats {
		c := &chats[i]
		v := newChatView(c, profs)
		if c.LastMessage != nil {
			if m, ok := lastByID[*c.LastMessage]; ok {
				v.LastMessage = newMessageView(m, profs)
			}
		}
		if row, ok := rows[c.ID]; ok {
			r := row
			v.ViewState = &r
			v.UnreadCount = r.UnreadCount
		}
		out = append(out, *v)
	}
	return out, nil
}

// UpdateGroupInfo changes name, description or avatar.
func (s *ChatService) UpdateGroupInfo(ctx context.Context, userID string, chatID primitive.ObjectID, info store.GroupInfo) (*ChatView, error) {
	chat, p, err := s.activeGroup(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !permissions.Allowed(permissions.Request{
		Action:        permissions.ActionEditGroupInfo,
		RequesterID:   userID,
		RequesterRole: p.Role,
		Settings:      chat.Settings(),
	}) {
		return nil, apperr.Forbidden(permissions.DenialMessage(permissions.ActionEditGroupInfo))
	}

	if info.Name == nil && info.Description == nil && info.Avatar == nil {
		return nil, apperr.Validation("", "Nothing to update")
	}
	if info.Name != nil {
		name := strings.TrimSpace(*info.Name)
		if name == "" {
			return nil, apperr.Validation("name", "Group name is required")
		}
		if utf8.RuneCountInString(name) > maxGroupNameLength {
			return nil, apperr.Validation("name", "Group name is too long")
		}
		info.Name = &name
	}
	if info.Description != nil {
		description := strings.TrimSpace(*info.Description)
		if utf8.RuneCountInString(description) > maxGroupDescriptionLength {
			return nil, apperr.Validation("description", "Group description is too long")
		}
		info.Description = &description
	}

	if err := s.deps.Store.Chats.UpdateGroupInfo(ctx, chatID, info); err != nil {
		return nil, err
	}
	publish(ctx, s.deps.Realtime, realtime.Event{Type: realtime.EventMembership, ChatID: chatID.Hex(), UserID: userID, Timestamp: s.deps.Now()})
	return s.GetChat(ctx, userID, chat.ID)
}

// UpdateGroupSettings changes who may add members, edit info or send messages.
func (s *ChatService) UpdateGroupSettings(ctx context.Context, userID string, chatID primitive.ObjectID, upd SettingsUpdate) (*ChatView, error) {
	chat, p, err := s.activeGroup(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !permissions.Allowed(permissions.Request{
		Action:        permissions.ActionUpdateGroupSettings,
		RequesterID:   userID,
		RequesterRole: p.Role,
		Settings:      chat.Settings(),
	}) {
		return nil, apperr.Forbidden(permissions.DenialMessage(permissions.ActionUpdateGroupSettings))
	}

	settings := chat.Settings()
	changed := false
	apply := func(field string, dst *models.Audience, v models.Audience) error {
		if v == "" {
			return nil
		}
		if v != models.AudienceEveryone && v != models.AudienceAdmins {
			return apperr.Validation(field, "must be one of: everyone, admins")
		}
		*dst = v
		changed = true
		return nil
	}
	if err := apply("whoCanAddMembers", &settings.WhoCanAddMembers, upd.WhoCanAddMembers); err != nil {
		return nil, err
	}
	if err := apply("whoCanEditGroupInfo", &settings.WhoCanEditGroupInfo, upd.WhoCanEditGroupInfo); err != nil {
		return nil, err
	}
	if err := apply("whoCanSendMessages", &settings.WhoCanSendMessages, upd.WhoCanSendMessages); err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperr.Validation("", "Nothing to update")
	}

	if err := s.deps.Store.Chats.UpdateGroupSettings(ctx, chatID, settings); err != nil {
		return nil, err
	}
	return s.GetChat(ctx, userID, chat.ID)
}

// UpdateViewState changes the caller's own pin/mute/archive/block flags.
func (s *ChatService) UpdateViewState(ctx context.Context, userID string, chatID primitive.ObjectID, upd models.ViewStateUpdate) (*models.ChatParticipant, error) {
	if upd.IsEmpty() {
		return nil, apperr.Validation("", "Nothing to update")
	}
	chat, _, err := s.activeChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if upd.IsBlocked != nil && chat.IsGroup() {
		return nil, apperr.Validation("isBlocked", "Only private chats can be blocked")
	}
	if upd.MutedUntil != nil && !upd.MutedUntil.After(s.deps.Now()) {
		return nil, apperr.Validation("mutedUntil", "must be in the future")
	}
	if upd.MutedUntil != nil && upd.IsMuted == nil {
		muted := true
		upd.IsMuted = &muted
	}
	return s.deps.Store.Participants.UpdateViewState(ctx, chatID, userID, upd, s.deps.Now())
}

// MarkChatRead clears the caller's unread counter for one chat.
func (s *ChatService) MarkChatRead(ctx context.Context, userID string, chatID primitive.ObjectID) (*models.ChatParticipant, error) {
	chat, _, err := s.activeChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Store.Participants.MarkChatRead(ctx, chatID, userID, chat.LastMessage); err != nil {
		return nil, err
	}
	return s.deps.Store.Participants.FindParticipant(ctx, chatID, userID)
}

// UnreadSummary reports total and per-chat unread counts for non-archived chats.
func (s *ChatService) UnreadSummary(ctx context.Context, userID string) (*UnreadSummary, error) {
	total, err := s.deps.Store.Participants.UnreadTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.deps.Store.Participants.ListByUser(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	out := &UnreadSummary{TotalUnread: total, Chats: []ChatUnreadCount{}}
	for _, r := range rows {
		if r.UnreadCount > 0 {
			out.Chats = append(out.Chats, ChatUnreadCount{ChatID: r.ChatID, UnreadCount: r.UnreadCount})
		}
	}
	return out, nil
}

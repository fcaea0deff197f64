package services

import (
	"context"
	"errors"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/identity"
	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/permissions"
	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	maxMembershipAttempts = 3
	maxMembersPerAdd      = 50
)

var errLastMember = errors.New("last active member is leaving")

type changeKind int

const (
	changeAdded changeKind = iota
	changeRemoved
	changeRole
)

type membershipChange struct {
	userID string
	kind   changeKind
}

// AddParticipantsResult reports the outcome per requested user.
type AddParticipantsResult struct {
	Added          []string  `json:"added"`
	AlreadyMembers []string  `json:"alreadyMembers"`
	NotFound       []string  `json:"notFound"`
	Chat           *ChatView `json:"chat"`
}

// LeaveResult reports what happened to the chat after a leave.
type LeaveResult struct {
	ChatDeleted bool   `json:"chatDeleted"`
	NewOwnerID  string `json:"newOwnerId,omitempty"`
}

// mutateMembership applies fn to a fresh copy of the chat and writes the participant
// list back with a version check, retrying on conflict. Participant rows follow in the
// same transaction.
func (s *ChatService) mutateMembership(ctx context.Context, chatID primitive.ObjectID, fn func(chat *models.Chat) ([]membershipChange, error)) (*models.Chat, error) {
	log := logger.FromContext(ctx).WithField("chatId", chatID.Hex())

	for attempt := 1; attempt <= maxMembershipAttempts; attempt++ {
		chat, err := s.deps.Store.Chats.FindChat(ctx, chatID)
		if err != nil {
			return nil, err
		}
		expected := chat.Version

		changes, err := fn(chat)
		if err != nil {
			return nil, err
		}
		if len(changes) == 0 {
			return chat, nil
		}

		err = s.deps.Store.Tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.deps.Store.Chats.ReplaceParticipants(ctx, chat.ID, expected, chat.Participants); err != nil {
				return err
			}
			for _, c := range changes {
				switch c.kind {
				case changeAdded:
					if err := s.deps.Store.Participants.Ensure(ctx, chat.ID, c.userID); err != nil {
						return err
					}
				case changeRemoved:
					if err := s.deps.Store.Participants.Archive(ctx, chat.ID, c.userID); err != nil && !apperr.IsNotFound(err) {
						return err
					}
				}
			}
			return nil
		})
		if errors.Is(err, store.ErrVersionConflict) {
			log.WithField("attempt", attempt).Debug("Membership write lost a race, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		chat.Version = expected + 1

		var events []store.MembershipEvent
		for _, c := range changes {
			switch c.kind {
			case changeAdded:
				events = append(events, store.NewMembershipEvent(chat.ID, c.userID, store.EventParticipantAdded))
			case changeRemoved:
				events = append(events, store.NewMembershipEvent(chat.ID, c.userID, store.EventParticipantRemoved))
			}
		}
		recordEvents(ctx, s.deps.Events, events)
		publish(ctx, s.deps.Realtime, realtime.Event{Type: realtime.EventMembership, ChatID: chat.ID.Hex(), Timestamp: s.deps.Now()})
		return chat, nil
	}
	return nil, apperr.Conflict("Chat was modified concurrently, please retry")
}

// AddParticipants adds verified users to a group. Users already active are skipped.
func (s *ChatService) AddParticipants(ctx context.Context, requesterID string, chatID primitive.ObjectID, userIDs []string) (*AddParticipantsResult, error) {
	ids := identity.Unique(userIDs)
	if len(ids) == 0 {
		return nil, apperr.Validation("userIds", "at least one user is required")
	}
	if len(ids) > maxMembersPerAdd {
		return nil, apperr.Validation("userIds", "too many users in one request")
	}
	if _, _, err := s.activeGroup(ctx, chatID, requesterID); err != nil {
		return nil, err
	}

	verified, err := s.deps.Identity.Verify(ctx, ids)
	if err != nil {
		return nil, err
	}

	var result AddParticipantsResult
	chat, err := s.mutateMembership(ctx, chatID, func(chat *models.Chat) ([]membershipChange, error) {
		result = AddParticipantsResult{Added: []string{}, AlreadyMembers: []string{}, NotFound: []string{}}

		requester, ok := chat.ActiveParticipant(requesterID)
		if !ok {
			return nil, apperr.Forbidden("You are not a participant of this chat")
		}
		if !permissions.Allowed(permissions.Request{
			Action:        permissions.ActionAddMembers,
			RequesterID:   requesterID,
			RequesterRole: requester.Role,
			Settings:      chat.Settings(),
		}) {
			return nil, apperr.Forbidden(permissions.DenialMessage(permissions.ActionAddMembers))
		}

		now := s.deps.Now()
		var changes []membershipChange
		for _, id := range ids {
			if _, ok := verified[id]; !ok {
				result.NotFound = append(result.NotFound, id)
				continue
			}
			if _, ok := chat.ActiveParticipant(id); ok {
				result.AlreadyMembers = append(result.AlreadyMembers, id)
				continue
			}
			chat.Participants = append(chat.Participants, models.Participant{
				UserID:   id,
				Role:     models.RoleMember,
				IsActive: true,
				JoinedAt: now,
			})
			result.Added = append(result.Added, id)
			changes = append(changes, membershipChange{userID: id, kind: changeAdded})
		}
		return changes, nil
	})
	if err != nil {
		return nil, err
	}

	view, err := s.view(ctx, chat, requesterID)
	if err != nil {
		return nil, err
	}
	result.Chat = view
	return &result, nil
}

// RemoveParticipant deactivates targetID's entry. Removing oneself is a leave.
func (s *ChatService) RemoveParticipant(ctx context.Context, requesterID string, chatID primitive.ObjectID, targetID string) (*ChatView, error) {
	if targetID == requesterID {
		if _, err := s.LeaveChat(ctx, requesterID, chatID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if _, _, err := s.activeGroup(ctx, chatID, requesterID); err != nil {
		return nil, err
	}

	chat, err := s.mutateMembership(ctx, chatID, func(chat *models.Chat) ([]membershipChange, error) {
		requester, ok := chat.ActiveParticipant(requesterID)
		if !ok {
			return nil, apperr.Forbidden("You are not a participant of this chat")
		}
		target, ok := chat.ActiveParticipant(targetID)
		if !ok {
			return nil, apperr.NotFound("Participant", targetID)
		}
		if !permissions.Allowed(permissions.Request{
			Action:        permissions.ActionRemoveMember,
			RequesterID:   requesterID,
			RequesterRole: requester.Role,
			Settings:      chat.Settings(),
			TargetUserID:  targetID,
			TargetRole:    target.Role,
		}) {
			return nil, apperr.Forbidden(permissions.DenialMessage(permissions.ActionRemoveMember))
		}

		now := s.deps.Now()
		target.IsActive = false
		target.LeftAt = &now
		return []membershipChange{{userID: targetID, kind: changeRemoved}}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, chat, requesterID)
}

// LeaveChat removes the caller. An owner leaving a group hands ownership to the oldest
// active admin, else the oldest active member; the last member leaving deletes the group.
func (s *ChatService) LeaveChat(ctx context.Context, userID string, chatID primitive.ObjectID) (*LeaveResult, error) {
	for attempt := 1; attempt <= maxMembershipAttempts; attempt++ {
		res, err := s.leave(ctx, userID, chatID)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		return res, err
	}
	return nil, apperr.Conflict("Chat was modified concurrently, please retry")
}

// leave returns store.ErrVersionConflict when the group it was about to delete as
// empty changed in the meantime.
func (s *ChatService) leave(ctx context.Context, userID string, chatID primitive.ObjectID) (*LeaveResult, error) {
	result := &LeaveResult{}
	var last *models.Chat
	_, err := s.mutateMembership(ctx, chatID, func(chat *models.Chat) ([]membershipChange, error) {
		result.NewOwnerID = ""
		p, ok := chat.ActiveParticipant(userID)
		if !ok {
			return nil, apperr.Forbidden("You are not a participant of this chat")
		}
		if chat.IsGroup() && len(chat.ActiveUserIDs()) == 1 {
			last = chat
			return nil, errLastMember
		}

		now := s.deps.Now()
		changes := []membershipChange{{userID: userID, kind: changeRemoved}}
		if chat.IsGroup() && p.Role == models.RoleOwner && chat.ActiveOwners() == 1 {
			successor, ok := chat.OldestActive(models.RoleAdmin, userID)
			if !ok {
				successor, _ = chat.OldestActive(models.RoleMember, userID)
			}
			successor.Role = models.RoleOwner
			result.NewOwnerID = successor.UserID
			changes = append(changes, membershipChange{userID: successor.UserID, kind: changeRole})
		}
		p.IsActive = false
		p.LeftAt = &now
		return changes, nil
	})
	if errors.Is(err, errLastMember) {
		if err := s.deleteGroup(ctx, last); err != nil {
			return nil, err
		}
		return &LeaveResult{ChatDeleted: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if result.NewOwnerID != "" {
		logger.FromContext(ctx).WithField("chatId", chatID.Hex()).WithField("newOwnerId", result.NewOwnerID).Info("Group ownership transferred")
	}
	return result, nil
}

// ChangeParticipantRole promotes a member to admin or demotes an admin to member.
func (s *ChatService) ChangeParticipantRole(ctx context.Context, requesterID string, chatID primitive.ObjectID, targetID string, role models.Role) (*ChatView, error) {
	if role != models.RoleMember && role != models.RoleAdmin {
		return nil, apperr.Validation("role", "must be one of: member, admin")
	}
	if _, _, err := s.activeGroup(ctx, chatID, requesterID); err != nil {
		return nil, err
	}

	chat, err := s.mutateMembership(ctx, chatID, func(chat *models.Chat) ([]membershipChange, error) {
		requester, ok := chat.ActiveParticipant(requesterID)
		if !ok {
			return nil, apperr.Forbidden("You are not a participant of this chat")
		}
		target, ok := chat.ActiveParticipant(targetID)
		if !ok {
			return nil, apperr.NotFound("Participant", targetID)
		}
		if !permissions.Allowed(permissions.Request{
			Action:        permissions.ActionChangeRole,
			RequesterID:   requesterID,
			RequesterRole: requester.Role,
			Settings:      chat.Settings(),
			TargetUserID:  targetID,
			TargetRole:    target.Role,
		}) {
			return nil, apperr.Forbidden(permissions.DenialMessage(permissions.ActionChangeRole))
		}
		if target.Role == role {
			return nil, nil
		}
		target.Role = role
		return []membershipChange{{userID: targetID, kind: changeRole}}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, chat, requesterID)
}

// DeleteChat deletes a group (owner only). For a private chat only the caller's side
// is closed: their entry is deactivated and their row archived.
func (s *ChatService) DeleteChat(ctx context.Context, userID string, chatID primitive.ObjectID) (*LeaveResult, error) {
	for attempt := 1; attempt <= maxMembershipAttempts; attempt++ {
		chat, p, err := s.activeChat(ctx, chatID, userID)
		if err != nil {
			return nil, err
		}
		if !chat.IsGroup() {
			return s.LeaveChat(ctx, userID, chatID)
		}
		if !permissions.Allowed(permissions.Request{
			Action:        permissions.ActionDeleteGroup,
			RequesterID:   userID,
			RequesterRole: p.Role,
			Settings:      chat.Settings(),
		}) {
			return nil, apperr.Forbidden(permissions.DenialMessage(permissions.ActionDeleteGroup))
		}
		err = s.deleteGroup(ctx, chat)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &LeaveResult{ChatDeleted: true}, nil
	}
	return nil, apperr.Conflict("Chat was modified concurrently, please retry")
}

// deleteGroup removes the chat and every participant row, provided the chat is still
// at the version the caller read. Messages are kept.
func (s *ChatService) deleteGroup(ctx context.Context, chat *models.Chat) error {
	var removed int64
	err := s.deps.Store.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.deps.Store.Chats.DeleteChat(ctx, chat.ID, chat.Version); err != nil {
			return err
		}
		n, err := s.deps.Store.Participants.DeleteByChat(ctx, chat.ID)
		removed = n
		return err
	})
	if err != nil {
		return err
	}

	recordEvents(ctx, s.deps.Events, []store.MembershipEvent{
		store.NewMembershipEvent(chat.ID, "", store.EventChatDeleted),
	})
	publish(ctx, s.deps.Realtime, realtime.Event{Type: realtime.EventMembership, ChatID: chat.ID.Hex(), Timestamp: s.deps.Now()})
	logger.FromContext(ctx).WithField("chatId", chat.ID.Hex()).WithField("participantRows", removed).Info("Group chat deleted")
	return nil
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedChat(t *testing.T, s *MemoryStore, users ...string) *models.Chat {
	t.Helper()
	now := time.Now().UTC()
	chat := &models.Chat{Type: models.ChatTypeGroup, CreatedBy: users[0], LastActivity: now, CreatedAt: now}
	for i, u := range users {
		role := models.RoleMember
		if i == 0 {
			role = models.RoleOwner
		}
		chat.Participants = append(chat.Participants, models.Participant{UserID: u, Role: role, IsActive: true, JoinedAt: now})
	}
	require.NoError(t, s.InsertChat(context.Background(), chat))
	for _, u := range users {
		require.NoError(t, s.Ensure(context.Background(), chat.ID, u))
	}
	return chat
}

func TestReplaceParticipantsVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	chat := seedChat(t, s, "alice", "bob")

	next := chat.CloneParticipants()
	next = append(next, models.Participant{UserID: "carol", Role: models.RoleMember, IsActive: true})
	require.NoError(t, s.ReplaceParticipants(ctx, chat.ID, chat.Version, next))

	err := s.ReplaceParticipants(ctx, chat.ID, chat.Version, chat.Participants)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := s.FindChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.Version+1, got.Version)
	assert.Len(t, got.Participants, 3)

	err = s.ReplaceParticipants(ctx, primitive.NewObjectID(), 0, nil)
	assert.True(t, apperr.IsNotFound(err))
}

func TestFindChatReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	chat := seedChat(t, s, "alice", "bob")

	got, err := s.FindChat(ctx, chat.ID)
	require.NoError(t, err)
	got.Participants[0].IsActive = false

	again, err := s.FindChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, again.Participants[0].IsActive)
}

func TestTouchLastMessageNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	chat := seedChat(t, s, "alice", "bob")

	later := chat.LastActivity.Add(time.Minute)
	m1, m2 := primitive.NewObjectID(), primitive.NewObjectID()
	require.NoError(t, s.TouchLastMessage(ctx, chat.ID, m1, later))
	require.NoError(t, s.TouchLastMessage(ctx, chat.ID, m2, later.Add(-30*time.Second)))

	got, err := s.FindChat(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, m1, *got.LastMessage)
	assert.True(t, got.LastActivity.Equal(later))

	m3 := primitive.NewObjectID()
	require.NoError(t, s.TouchLastMessage(ctx, chat.ID, m3, later))
	got, err = s.FindChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, m3, *got.LastMessage)
}

func TestDeleteChatVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	chat := seedChat(t, s, "alice", "bob")
	require.NoError(t, s.ReplaceParticipants(ctx, chat.ID, chat.Version, chat.CloneParticipants()))

	assert.ErrorIs(t, s.DeleteChat(ctx, chat.ID, chat.Version), ErrVersionConflict)
	require.NoError(t, s.DeleteChat(ctx, chat.ID, chat.Version+1))
	assert.True(t, apperr.IsNotFound(s.DeleteChat(ctx, chat.ID, chat.Version+1)))
}

func TestPutReactionReplacesAndRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	msg := &models.Message{ChatID: primitive.NewObjectID(), SenderID: "alice", MessageType: models.MessageTypeText, Content: "hi"}
	require.NoError(t, s.InsertMessage(ctx, msg))

	react := func(emoji string) error {
		return s.PutReaction(ctx, msg.ID, models.Reaction{UserID: "bob", Emoji: emoji, EmojiKey: models.EmojiKey(emoji)})
	}
	require.NoError(t, react("👍"))
	require.NoError(t, react("❤️"))

	got, err := s.FindMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, "❤️", got.Reactions[0].Emoji)

	err = react("❤️")
	var conflict *apperr.ConflictError
	assert.ErrorAs(t, err, &conflict)

	n, err := s.RemoveReactions(ctx, msg.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMarkReadCountsOnlyNewReceipts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	chatID := primitive.NewObjectID()
	var ids []primitive.ObjectID
	for i := 0; i < 3; i++ {
		m := &models.Message{ChatID: chatID, SenderID: "alice", MessageType: models.MessageTypeText, Content: "x"}
		require.NoError(t, s.InsertMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	n, err := s.MarkRead(ctx, ids[:2], "bob", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.MarkRead(ctx, ids, "bob", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListMessagesHonoursViewerAndBounds(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	chatID := primitive.NewObjectID()
	base := time.Now().UTC().Add(-time.Hour)

	var msgs []*models.Message
	for i := 0; i < 5; i++ {
		m := &models.Message{
			ChatID:      chatID,
			SenderID:    "alice",
			MessageType: models.MessageTypeText,
			Content:     "m",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.InsertMessage(ctx, m))
		msgs = append(msgs, m)
	}
	require.NoError(t, s.HideForUser(ctx, msgs[4].ID, "bob"))

	all, err := s.ListMessages(ctx, MessageQuery{ChatID: chatID, ViewerID: "bob"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, msgs[3].ID, all[0].ID)

	before := msgs[3].CreatedAt
	older, err := s.ListMessages(ctx, MessageQuery{ChatID: chatID, CreatedBefore: &before, Limit: 2})
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, msgs[2].ID, older[0].ID)
	assert.Equal(t, msgs[1].ID, older[1].ID)

	after := msgs[1].CreatedAt
	newer, err := s.ListMessages(ctx, MessageQuery{ChatID: chatID, CreatedAfter: &after, Limit: 2, Ascending: true})
	require.NoError(t, err)
	require.Len(t, newer, 2)
	assert.Equal(t, msgs[2].ID, newer[0].ID)

	count, err := s.CountMessages(ctx, MessageQuery{ChatID: chatID, ViewerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestRecordReadFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	chat := seedChat(t, s, "alice", "bob")

	require.NoError(t, s.IncrementUnread(ctx, chat.ID, []string{"bob"}))
	require.NoError(t, s.RecordRead(ctx, chat.ID, "bob", primitive.NewObjectID(), 5))

	p, err := s.FindParticipant(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.UnreadCount)
	assert.NotNil(t, p.LastReadMessageID)
}

func TestUpdateViewStatePinning(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	chat := seedChat(t, s, "alice", "bob")

	pinned := true
	now := time.Now().UTC()
	p, err := s.UpdateViewState(ctx, chat.ID, "alice", models.ViewStateUpdate{IsPinned: &pinned}, now)
	require.NoError(t, err)
	assert.True(t, p.IsPinned)
	require.NotNil(t, p.PinnedAt)

	pinned = false
	p, err = s.UpdateViewState(ctx, chat.ID, "alice", models.ViewStateUpdate{IsPinned: &pinned}, now)
	require.NoError(t, err)
	assert.False(t, p.IsPinned)
	assert.Nil(t, p.PinnedAt)
}

func TestMemoryEventLog(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryEventLog()
	a := NewMembershipEvent(primitive.NewObjectID(), "alice", EventParticipantAdded)
	b := NewMembershipEvent(primitive.NewObjectID(), "bob", EventParticipantRemoved)
	require.NoError(t, log.Record(ctx, a))
	require.NoError(t, log.Record(ctx, b))

	pending, err := log.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	require.NoError(t, log.MarkApplied(ctx, []uuid.UUID{a.ID}))
	pending, err = log.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
}

func TestMemoryEventLogDropsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryEventLog()
	log.capacity = 3
	var recorded []MembershipEvent
	for i := 0; i < 5; i++ {
		ev := NewMembershipEvent(primitive.NewObjectID(), "alice", EventParticipantAdded)
		recorded = append(recorded, ev)
		require.NoError(t, log.Record(ctx, ev))
	}

	pending, err := log.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, recorded[2].ID, pending[0].ID)
	assert.Equal(t, recorded[4].ID, pending[2].ID)
	assert.Equal(t, 2, log.Dropped())

	require.NoError(t, log.MarkApplied(ctx, []uuid.UUID{pending[0].ID, pending[1].ID, pending[2].ID}))
	pending, err = log.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

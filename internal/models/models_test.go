package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestChatMembershipHelpers(t *testing.T) {
	left := time.Now()
	chat := Chat{
		Type: ChatTypeGroup,
		Participants: []Participant{
			{UserID: "a", Role: RoleOwner, IsActive: true},
			{UserID: "b", Role: RoleMember, IsActive: false, LeftAt: &left},
			{UserID: "c", Role: RoleAdmin, IsActive: true},
			{UserID: "b", Role: RoleMember, IsActive: true},
		},
	}

	p, ok := chat.ActiveParticipant("b")
	require.True(t, ok)
	assert.Nil(t, p.LeftAt)
	assert.Equal(t, []string{"a", "c", "b"}, chat.ActiveUserIDs())
	assert.Equal(t, 1, chat.ActiveOwners())
}

func TestSettingsFillsDefaults(t *testing.T) {
	chat := Chat{Type: ChatTypeGroup, GroupSettings: &GroupSettings{WhoCanSendMessages: AudienceAdmins}}
	s := chat.Settings()
	assert.Equal(t, AudienceAdmins, s.WhoCanAddMembers)
	assert.Equal(t, AudienceAdmins, s.WhoCanEditGroupInfo)
	assert.Equal(t, AudienceAdmins, s.WhoCanSendMessages)

	assert.Equal(t, DefaultGroupSettings(), (&Chat{}).Settings())
}

func TestMessageTypeRules(t *testing.T) {
	assert.True(t, MessageTypeText.CarriesContent())
	assert.True(t, MessageTypeEmoji.CarriesContent())
	assert.False(t, MessageTypeImage.CarriesContent())
	assert.False(t, MessageType("sticker").IsValid())
}

func TestPreviewTruncates(t *testing.T) {
	m := Message{ID: primitive.NewObjectID(), SenderID: "a", MessageType: MessageTypeText, Content: strings.Repeat("é", 150)}
	p := m.Preview()
	assert.Equal(t, 100, len([]rune(p.Content)))
	assert.Equal(t, m.ID, p.MessageID)
}

func TestEmojiKey(t *testing.T) {
	assert.Equal(t, EmojiKey(" :Smile: "), EmojiKey(":smile:"))
}

func TestPrivatePairKeyIsUnordered(t *testing.T) {
	assert.Equal(t, PrivatePairKey("alice", "bob"), PrivatePairKey("bob", "alice"))
	assert.NotEqual(t, PrivatePairKey("alice", "bob"), PrivatePairKey("alice", "carol"))
}

func TestOldestActive(t *testing.T) {
	base := time.Now()
	chat := Chat{Participants: []Participant{
		{UserID: "owner", Role: RoleOwner, IsActive: true, JoinedAt: base},
		{UserID: "m2", Role: RoleMember, IsActive: true, JoinedAt: base.Add(2 * time.Minute)},
		{UserID: "m1", Role: RoleMember, IsActive: true, JoinedAt: base.Add(time.Minute)},
		{UserID: "m0", Role: RoleMember, IsActive: false, JoinedAt: base.Add(-time.Minute)},
	}}

	p, ok := chat.OldestActive(RoleMember, "")
	require.True(t, ok)
	assert.Equal(t, "m1", p.UserID)

	p, ok = chat.OldestActive(RoleMember, "m1")
	require.True(t, ok)
	assert.Equal(t, "m2", p.UserID)

	_, ok = chat.OldestActive(RoleAdmin, "")
	assert.False(t, ok)
}

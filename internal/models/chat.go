package models

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatType distinguishes two-person chats from groups.
type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
)

// Role is a participant's standing inside a chat.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleMember || r == RoleAdmin || r == RoleOwner
}

// Audience is the value space of every group setting.
type Audience string

const (
	AudienceEveryone Audience = "everyone"
	AudienceAdmins   Audience = "admins"
)

type GroupSettings struct {
	WhoCanAddMembers    Audience `bson:"whoCanAddMembers" json:"whoCanAddMembers" validate:"omitempty,oneof=everyone admins"`
	WhoCanEditGroupInfo Audience `bson:"whoCanEditGroupInfo" json:"whoCanEditGroupInfo" validate:"omitempty,oneof=everyone admins"`
	WhoCanSendMessages  Audience `bson:"whoCanSendMessages" json:"whoCanSendMessages" validate:"omitempty,oneof=everyone admins"`
}

// DefaultGroupSettings are applied to every new group.
func DefaultGroupSettings() GroupSettings {
	return GroupSettings{
		WhoCanAddMembers:    AudienceAdmins,
		WhoCanEditGroupInfo: AudienceAdmins,
		WhoCanSendMessages:  AudienceEveryone,
	}
}

// Participant is an entry of the embedded membership list. Entries are never removed;
// leaving flips IsActive and stamps LeftAt.
type Participant struct {
	UserID   string     `bson:"userId" json:"userId"`
	Role     Role       `bson:"role" json:"role"`
	IsActive bool       `bson:"isActive" json:"isActive"`
	JoinedAt time.Time  `bson:"joinedAt" json:"joinedAt"`
	LeftAt   *time.Time `bson:"leftAt,omitempty" json:"leftAt,omitempty"`
}

// Chat is the single source of truth for who belongs to a conversation.
type Chat struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Type             ChatType            `bson:"type" json:"type"`
	Participants     []Participant       `bson:"participants" json:"participants"`
	GroupName        string              `bson:"groupName,omitempty" json:"groupName,omitempty"`
	GroupDescription string              `bson:"groupDescription,omitempty" json:"groupDescription,omitempty"`
	GroupAvatar      string              `bson:"groupAvatar,omitempty" json:"groupAvatar,omitempty"`
	GroupSettings    *GroupSettings      `bson:"groupSettings,omitempty" json:"groupSettings,omitempty"`
	CreatedBy        string              `bson:"createdBy" json:"createdBy"`
	PairKey          string              `bson:"pairKey,omitempty" json:"-"`
	LastMessage      *primitive.ObjectID `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastActivity     time.Time           `bson:"lastActivity" json:"lastActivity"`
	Version          int64               `bson:"version" json:"-"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// PrivatePairKey identifies the unordered pair of a private chat.
func PrivatePairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

func (c *Chat) IsGroup() bool {
	return c.Type == ChatTypeGroup
}

// ActiveParticipant returns the active entry for userID, if any.
func (c *Chat) ActiveParticipant(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID && c.Participants[i].IsActive {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// ActiveUserIDs lists the active participants in membership order.
func (c *Chat) ActiveUserIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.IsActive {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// OldestActive returns the earliest-joined active participant with role, excluding except.
func (c *Chat) OldestActive(role Role, except string) (*Participant, bool) {
	var found *Participant
	for i := range c.Participants {
		p := &c.Participants[i]
		if !p.IsActive || p.Role != role || p.UserID == except {
			continue
		}
		if found == nil || p.JoinedAt.Before(found.JoinedAt) {
			found = p
		}
	}
	return found, found != nil
}

// ActiveOwners counts active owners; a group must never drop to zero.
func (c *Chat) ActiveOwners() int {
	n := 0
	for _, p := range c.Participants {
		if p.IsActive && p.Role == RoleOwner {
			n++
		}
	}
	return n
}

// Settings returns the group settings, falling back to defaults for legacy documents.
func (c *Chat) Settings() GroupSettings {
	if c.GroupSettings == nil {
		return DefaultGroupSettings()
	}
	s := *c.GroupSettings
	d := DefaultGroupSettings()
	if s.WhoCanAddMembers == "" {
		s.WhoCanAddMembers = d.WhoCanAddMembers
	}
	if s.WhoCanEditGroupInfo == "" {
		s.WhoCanEditGroupInfo = d.WhoCanEditGroupInfo
	}
	if s.WhoCanSendMessages == "" {
		s.WhoCanSendMessages = d.WhoCanSendMessages
	}
	return s
}

// CloneParticipants returns a copy safe to mutate before a compare-and-swap write.
func (c *Chat) CloneParticipants() []Participant {
	out := make([]Participant, len(c.Participants))
	copy(out, c.Participants)
	return out
}

package permissions

import (
	"testing"

	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/stretchr/testify/assert"
)

var (
	adminsOnly = models.DefaultGroupSettings()
	openGroup  = models.GroupSettings{
		WhoCanAddMembers:    models.AudienceEveryone,
		WhoCanEditGroupInfo: models.AudienceEveryone,
		WhoCanSendMessages:  models.AudienceEveryone,
	}
)

func TestEditGroupInfoAndAddMembers(t *testing.T) {
	for _, action := range []Action{ActionEditGroupInfo, ActionAddMembers} {
		assert.True(t, Allowed(Request{Action: action, RequesterRole: models.RoleOwner, Settings: adminsOnly}))
		assert.True(t, Allowed(Request{Action: action, RequesterRole: models.RoleAdmin, Settings: adminsOnly}))
		assert.False(t, Allowed(Request{Action: action, RequesterRole: models.RoleMember, Settings: adminsOnly}))
		assert.True(t, Allowed(Request{Action: action, RequesterRole: models.RoleMember, Settings: openGroup}))
	}
}

func TestSendMessage(t *testing.T) {
	locked := adminsOnly
	locked.WhoCanSendMessages = models.AudienceAdmins

	assert.True(t, Allowed(Request{Action: ActionSendMessage, RequesterRole: models.RoleMember, Settings: adminsOnly}))
	assert.False(t, Allowed(Request{Action: ActionSendMessage, RequesterRole: models.RoleMember, Settings: locked}))
	assert.True(t, Allowed(Request{Action: ActionSendMessage, RequesterRole: models.RoleAdmin, Settings: locked}))
}

func TestRemoveMember(t *testing.T) {
	cases := []struct {
		name      string
		requester models.Role
		self      bool
		target    models.Role
		want      bool
	}{
		{"member self-leave", models.RoleMember, true, models.RoleMember, true},
		{"owner self-leave", models.RoleOwner, true, models.RoleOwner, true},
		{"owner removes admin", models.RoleOwner, false, models.RoleAdmin, true},
		{"owner removes member", models.RoleOwner, false, models.RoleMember, true},
		{"admin removes member", models.RoleAdmin, false, models.RoleMember, true},
		{"admin removes admin", models.RoleAdmin, false, models.RoleAdmin, false},
		{"admin removes owner", models.RoleAdmin, false, models.RoleOwner, false},
		{"member removes member", models.RoleMember, false, models.RoleMember, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "target"
			if tc.self {
				target = "me"
			}
			got := Allowed(Request{
				Action:        ActionRemoveMember,
				RequesterID:   "me",
				RequesterRole: tc.requester,
				TargetUserID:  target,
				TargetRole:    tc.target,
			})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDeleteGroupOwnerOnly(t *testing.T) {
	assert.True(t, Allowed(Request{Action: ActionDeleteGroup, RequesterRole: models.RoleOwner}))
	assert.False(t, Allowed(Request{Action: ActionDeleteGroup, RequesterRole: models.RoleAdmin}))
	assert.False(t, Allowed(Request{Action: ActionDeleteGroup, RequesterRole: models.RoleMember}))
}

func TestDeleteForEveryone(t *testing.T) {
	assert.True(t, Allowed(Request{Action: ActionDeleteForEveryone, RequesterID: "u", MessageSenderID: "u", RequesterRole: models.RoleMember}))
	assert.True(t, Allowed(Request{Action: ActionDeleteForEveryone, RequesterID: "u", MessageSenderID: "x", RequesterRole: models.RoleAdmin}))
	assert.True(t, Allowed(Request{Action: ActionDeleteForEveryone, RequesterID: "u", MessageSenderID: "x", RequesterRole: models.RoleOwner}))
	assert.False(t, Allowed(Request{Action: ActionDeleteForEveryone, RequesterID: "u", MessageSenderID: "x", RequesterRole: models.RoleMember}))
	// a failed role lookup arrives as an empty role and must deny
	assert.False(t, Allowed(Request{Action: ActionDeleteForEveryone, RequesterID: "u", MessageSenderID: "x"}))
}

func TestChangeRole(t *testing.T) {
	assert.True(t, Allowed(Request{Action: ActionChangeRole, RequesterID: "o", RequesterRole: models.RoleOwner, TargetUserID: "m", TargetRole: models.RoleMember}))
	assert.False(t, Allowed(Request{Action: ActionChangeRole, RequesterID: "o", RequesterRole: models.RoleOwner, TargetUserID: "o", TargetRole: models.RoleOwner}))
	assert.False(t, Allowed(Request{Action: ActionChangeRole, RequesterID: "a", RequesterRole: models.RoleAdmin, TargetUserID: "m", TargetRole: models.RoleMember}))
}

func TestUnknownActionAndRoleDenied(t *testing.T) {
	assert.False(t, Allowed(Request{Action: "rename_everyone", RequesterRole: models.RoleOwner}))
	assert.False(t, Allowed(Request{Action: ActionEditGroupInfo, RequesterRole: "superuser", Settings: openGroup}))
	assert.NotEqual(t, "Forbidden", DenialMessage(ActionDeleteGroup))
}

// Package permissions decides group-mutating actions from a requester's role and the
// group's settings. Nothing here performs I/O.
package permissions

import "github.com/AnshRaj112/serenify-conversations/internal/models"

type Action string

const (
	ActionEditGroupInfo       Action = "edit_group_info"
	ActionAddMembers          Action = "add_members"
	ActionRemoveMember        Action = "remove_member"
	ActionDeleteGroup         Action = "delete_group"
	ActionSendMessage         Action = "send_message"
	ActionChangeRole          Action = "change_role"
	ActionDeleteForEveryone   Action = "delete_for_everyone"
	ActionUpdateGroupSettings Action = "update_group_settings"
)

// Request describes one capability check. Target fields are only read by actions that
// act on another participant or on a message.
type Request struct {
	Action        Action
	RequesterID   string
	RequesterRole models.Role
	Settings      models.GroupSettings

	TargetUserID string
	TargetRole   models.Role

	MessageSenderID string
}

type rule func(Request) bool

func isAdminOrOwner(role models.Role) bool {
	return role == models.RoleOwner || role == models.RoleAdmin
}

func openTo(audience models.Audience, role models.Role) bool {
	return isAdminOrOwner(role) || audience == models.AudienceEveryone
}

var table = map[Action]rule{
	ActionEditGroupInfo: func(r Request) bool {
		return openTo(r.Settings.WhoCanEditGroupInfo, r.RequesterRole)
	},
	ActionAddMembers: func(r Request) bool {
		return openTo(r.Settings.WhoCanAddMembers, r.RequesterRole)
	},
	ActionSendMessage: func(r Request) bool {
		return openTo(r.Settings.WhoCanSendMessages, r.RequesterRole)
	},
	ActionRemoveMember: func(r Request) bool {
		if r.TargetUserID == r.RequesterID {
			return true
		}
		// The owner is never removable through this path.
		if r.TargetRole == models.RoleOwner {
			return false
		}
		if r.RequesterRole == models.RoleOwner {
			return true
		}
		return r.RequesterRole == models.RoleAdmin && r.TargetRole == models.RoleMember
	},
	ActionDeleteGroup: func(r Request) bool {
		return r.RequesterRole == models.RoleOwner
	},
	ActionChangeRole: func(r Request) bool {
		return r.RequesterRole == models.RoleOwner && r.TargetUserID != r.RequesterID && r.TargetRole != models.RoleOwner
	},
	ActionUpdateGroupSettings: func(r Request) bool {
		return isAdminOrOwner(r.RequesterRole)
	},
	ActionDeleteForEveryone: func(r Request) bool {
		return r.MessageSenderID == r.RequesterID || isAdminOrOwner(r.RequesterRole)
	},
}

// Allowed evaluates the table. Unknown actions and unknown roles are denied.
func Allowed(r Request) bool {
	check, ok := table[r.Action]
	if !ok {
		return false
	}
	if r.RequesterRole != "" && !r.RequesterRole.IsValid() {
		return false
	}
	return check(r)
}

// DenialMessage is the client-facing reason for a denied action.
func DenialMessage(a Action) string {
	switch a {
	case ActionEditGroupInfo:
		return "Only admins can edit group info"
	case ActionAddMembers:
		return "Only admins can add members"
	case ActionRemoveMember:
		return "You do not have permission to remove this member"
	case ActionDeleteGroup:
		return "Only the group owner can delete the group"
	case ActionSendMessage:
		return "Only admins can send messages in this group"
	case ActionChangeRole:
		return "Only the group owner can change member roles"
	case ActionUpdateGroupSettings:
		return "Only admins can change group settings"
	case ActionDeleteForEveryone:
		return "You can only delete your own messages for everyone unless you are an admin"
	default:
		return "Forbidden"
	}
}

package authz

import "messaging-service/internal/models"

// Role is the closed set of platform roles relevant to messaging.
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Normalize maps raw role strings, including the legacy aliases still issued
// by older identity tokens, onto the closed enumeration. Unknown values fall
// back to employee.
func Normalize(role string) Role {
	switch role {
	case "manager", "team_manager":
		return RoleManager
	case "admin", "org_admin":
		return RoleAdmin
	case "super_admin":
		return RoleSuperAdmin
	default:
		return RoleEmployee
	}
}

// Elevated reports whether the role carries manager-level privileges.
func (r Role) Elevated() bool {
	return r == RoleManager || r == RoleAdmin || r == RoleSuperAdmin
}

// Decision is the outcome of a policy check. Reason is set on denial and is
// safe to return to the caller.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// CanCreateGroup gates group-conversation creation. Employees may only open
// direct (two-party) conversations.
func CanCreateGroup(role Role) Decision {
	if role.Elevated() {
		return allow()
	}
	return deny("only managers and admins may create group conversations")
}

// CanManageParticipants gates adding and removing conversation participants.
func CanManageParticipants(role Role) Decision {
	if role.Elevated() {
		return allow()
	}
	return deny("only managers and admins may manage participants")
}

// CanEditMessage allows edits by the original sender only.
func CanEditMessage(callerID int, msg models.Message) Decision {
	if msg.SenderID == callerID {
		return allow()
	}
	return deny("only the sender may edit a message")
}

// CanDeleteMessage allows the sender to delete their own message anywhere.
// Managers and admins may additionally delete messages in group chats, but
// never in direct conversations.
func CanDeleteMessage(callerID int, role Role, msg models.Message, conv models.Conversation) Decision {
	if msg.SenderID == callerID {
		return allow()
	}
	if role.Elevated() {
		if conv.IsGroupChat {
			return allow()
		}
		return deny("managers may not delete messages in direct conversations")
	}
	return deny("only the sender may delete a message")
}

package authz

import (
	"fmt"
	"strings"
)

// Resource is a resource type in the permission model. The enumeration is
// closed: permissions referencing anything else are rejected on write and
// evaluate to "not granted" on read.
type Resource string

const (
	ResourceUsers       Resource = "users"
	ResourceVenues      Resource = "venues"
	ResourceChannels    Resource = "channels"
	ResourcePosts       Resource = "posts"
	ResourceMessages    Resource = "messages"
	ResourceRosters     Resource = "rosters"
	ResourceTimeOff     Resource = "timeoff"
	ResourceReports     Resource = "reports"
	ResourcePermissions Resource = "permissions"
	ResourceAudit       Resource = "audit"
)

// Action is an operation on a resource
type Action string

const (
	ActionView     Action = "view"
	ActionViewTeam Action = "view_team"
	ActionViewAll  Action = "view_all"
	ActionCreate   Action = "create"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
	ActionManage   Action = "manage"
	ActionApprove  Action = "approve"
)

// Permission is a specific grant: a resource paired with an action
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns the canonical "resource:action" key
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// AllPermissions is the single canonical enumeration of grantable
// permissions. Every permission stored or checked anywhere in the system
// appears here exactly once.
func AllPermissions() []Permission {
	return []Permission{
		{ResourceUsers, ActionView},
		{ResourceUsers, ActionViewTeam},
		{ResourceUsers, ActionViewAll},
		{ResourceUsers, ActionCreate},
		{ResourceUsers, ActionEdit},
		{ResourceUsers, ActionManage},
		{ResourceVenues, ActionView},
		{ResourceVenues, ActionCreate},
		{ResourceVenues, ActionManage},
		{ResourceChannels, ActionView},
		{ResourceChannels, ActionCreate},
		{ResourceChannels, ActionManage},
		{ResourcePosts, ActionView},
		{ResourcePosts, ActionCreate},
		{ResourcePosts, ActionEdit},
		{ResourcePosts, ActionDelete},
		{ResourcePosts, ActionManage},
		{ResourceMessages, ActionView},
		{ResourceMessages, ActionCreate},
		{ResourceRosters, ActionView},
		{ResourceRosters, ActionViewAll},
		{ResourceRosters, ActionCreate},
		{ResourceRosters, ActionManage},
		{ResourceTimeOff, ActionView},
		{ResourceTimeOff, ActionCreate},
		{ResourceTimeOff, ActionApprove},
		{ResourceReports, ActionView},
		{ResourceReports, ActionViewAll},
		{ResourcePermissions, ActionView},
		{ResourcePermissions, ActionManage},
		{ResourceAudit, ActionView},
	}
}

// ParsePermission parses a "resource:action" key, rejecting anything outside
// the canonical enumeration
func ParsePermission(key string) (Permission, error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return Permission{}, fmt.Errorf("invalid permission key %q", key)
	}

	perm := Permission{Resource: Resource(parts[0]), Action: Action(parts[1])}
	for _, known := range AllPermissions() {
		if known == perm {
			return perm, nil
		}
	}
	return Permission{}, fmt.Errorf("unknown permission %q", key)
}

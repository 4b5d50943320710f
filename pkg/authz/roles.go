package authz

import (
	"sort"

	"github.com/shiftdeck/shiftdeck/pkg/identity"
)

// Grants is an immutable role-to-permission table built once at startup.
// Lookups never mutate it, so it is safe for concurrent use.
type Grants struct {
	byRole map[identity.Role]map[Permission]struct{}
}

// NewGrants builds a grants table from a role-to-permission mapping
func NewGrants(table map[identity.Role][]Permission) *Grants {
	byRole := make(map[identity.Role]map[Permission]struct{}, len(table))
	for role, perms := range table {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		byRole[role] = set
	}
	return &Grants{byRole: byRole}
}

// DefaultGrants is the built-in role-to-permission table.
//
// ADMIN holds every permission, but callers should not rely on table
// membership for admin decisions; the admin bypass is applied structurally
// by the services.
func DefaultGrants() *Grants {
	return NewGrants(map[identity.Role][]Permission{
		identity.RoleAdmin: AllPermissions(),
		identity.RoleManager: {
			{ResourceUsers, ActionView},
			{ResourceUsers, ActionViewTeam},
			{ResourceVenues, ActionView},
			{ResourceChannels, ActionView},
			{ResourceChannels, ActionCreate},
			{ResourcePosts, ActionView},
			{ResourcePosts, ActionCreate},
			{ResourceMessages, ActionView},
			{ResourceMessages, ActionCreate},
			{ResourceRosters, ActionView},
			{ResourceRosters, ActionCreate},
			{ResourceRosters, ActionManage},
			{ResourceTimeOff, ActionView},
			{ResourceTimeOff, ActionCreate},
			{ResourceTimeOff, ActionApprove},
			{ResourceReports, ActionView},
		},
		identity.RoleStaff: {
			{ResourceVenues, ActionView},
			{ResourceChannels, ActionView},
			{ResourcePosts, ActionView},
			{ResourcePosts, ActionCreate},
			{ResourceMessages, ActionView},
			{ResourceMessages, ActionCreate},
			{ResourceRosters, ActionView},
			{ResourceTimeOff, ActionView},
			{ResourceTimeOff, ActionCreate},
		},
	})
}

// HasRolePermission reports whether the role grants the permission. Unknown
// roles, resources and actions all evaluate to false; there is no error path.
func (g *Grants) HasRolePermission(role identity.Role, resource Resource, action Action) bool {
	set, ok := g.byRole[role]
	if !ok {
		return false
	}
	_, ok = set[Permission{Resource: resource, Action: action}]
	return ok
}

// Has reports whether the role grants the permission
func (g *Grants) Has(role identity.Role, perm Permission) bool {
	return g.HasRolePermission(role, perm.Resource, perm.Action)
}

// RoleKeys returns the role's permissions as sorted "resource:action" keys
func (g *Grants) RoleKeys(role identity.Role) []string {
	set, ok := g.byRole[role]
	if !ok {
		return []string{}
	}
	keys := make([]string, 0, len(set))
	for p := range set {
		keys = append(keys, p.String())
	}
	sort.Strings(keys)
	return keys
}

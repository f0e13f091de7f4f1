package domain

import "time"

// Permission slugs referenced by policy checks. Slugs are the contract between code and data.
const (
	PermSettingsView          = "settings.view"
	PermSettingsManage        = "settings.manage"
	PermUsersView             = "users.view"
	PermUsersManage           = "users.manage"
	PermProfilesViewPending   = "profiles.view_pending"
	PermProfilesApprove       = "profiles.approve"
	PermProfilesViewSensitive = "profiles.view_sensitive"
	PermDashboardView         = "dashboard.view"
)

// System role names.
const (
	RoleSuperAdmin = "Super Admin"
	RoleModerator  = "Moderator"
	RoleUser       = "User"
)

// Role defines a named set of permissions.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	Description *string      `json:"description"`
	IsSystem    bool         `json:"isSystem"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// HasPermission reports whether the role grants slug.
func (r Role) HasPermission(slug string) bool {
	for _, p := range r.Permissions {
		if p.Slug == slug {
			return true
		}
	}
	return false
}

// PermissionSlugs lists the slugs granted by the role.
func (r Role) PermissionSlugs() []string {
	slugs := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		slugs = append(slugs, p.Slug)
	}
	return slugs
}

// Permission defines a named capability.
type Permission struct {
	ID          string  `json:"id"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
}

// PermissionSpec describes a catalog entry before it is persisted.
type PermissionSpec struct {
	Slug        string
	Description string
}

// RoleSpec describes a catalog role before it is persisted.
type RoleSpec struct {
	Name        string
	Description string
	IsSystem    bool
	// AllPermissions grants every known permission, including ones added later.
	AllPermissions bool
	Permissions    []string
}

// PermissionCatalog is the full set of permissions the service enforces.
var PermissionCatalog = []PermissionSpec{
	{Slug: PermSettingsView, Description: "View system settings"},
	{Slug: PermSettingsManage, Description: "Update system settings"},
	{Slug: PermUsersView, Description: "View user list"},
	{Slug: PermUsersManage, Description: "Manage users and their access roles"},
	{Slug: PermProfilesViewPending, Description: "View profiles waiting for review"},
	{Slug: PermProfilesApprove, Description: "Approve or reject profiles"},
	{Slug: PermProfilesViewSensitive, Description: "View private health and genetic data"},
	{Slug: PermDashboardView, Description: "View admin analytics"},
}

// RoleCatalog is reconciled on every start.
var RoleCatalog = []RoleSpec{
	{Name: RoleSuperAdmin, Description: "Full system access", IsSystem: true, AllPermissions: true},
	{
		Name:        RoleModerator,
		Description: "Can review profiles and view users",
		Permissions: []string{
			PermProfilesViewPending,
			PermProfilesApprove,
			PermProfilesViewSensitive,
			PermUsersView,
			PermDashboardView,
		},
	},
	{Name: RoleUser, Description: "Standard app user", IsSystem: true},
}

package port

import "context"

// Repositories groups the repositories that participate in one transaction.
type Repositories struct {
	Users       UserRepository
	Challenges  OTPRepository
	Profiles    ProfileRepository
	Roles       RoleRepository
	Permissions PermissionRepository
	Settings    SettingsRepository
}

// Transactor runs fn inside a single database transaction. Every repository in repos is bound to
// that transaction; the transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

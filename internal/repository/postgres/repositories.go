package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/213020aumc/matcha/internal/core/port"
)

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users       *UserRepository
	Challenges  *OTPRepository
	Profiles    *ProfileRepository
	Roles       *RoleRepository
	Permissions *PermissionRepository
	Settings    *SettingsRepository
}

// NewRepositories wires all repositories backed by the provided executor.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Users:       NewUserRepository(exec),
		Challenges:  NewOTPRepository(exec),
		Profiles:    NewProfileRepository(exec),
		Roles:       NewRoleRepository(exec),
		Permissions: NewPermissionRepository(exec),
		Settings:    NewSettingsRepository(exec),
	}
}

// WithTx returns the same set bound to tx.
func (r *Repositories) WithTx(tx pgx.Tx) *Repositories {
	return &Repositories{
		Users:       r.Users.WithTx(tx),
		Challenges:  r.Challenges.WithTx(tx),
		Profiles:    r.Profiles.WithTx(tx),
		Roles:       r.Roles.WithTx(tx),
		Permissions: r.Permissions.WithTx(tx),
		Settings:    r.Settings.WithTx(tx),
	}
}

// Ports exposes the set through the port interfaces.
func (r *Repositories) Ports() port.Repositories {
	return port.Repositories{
		Users:       r.Users,
		Challenges:  r.Challenges,
		Profiles:    r.Profiles,
		Roles:       r.Roles,
		Permissions: r.Permissions,
		Settings:    r.Settings,
	}
}

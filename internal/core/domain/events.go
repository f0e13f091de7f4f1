package domain

import "time"

// UserRegisteredEvent is emitted the first time an unseen email requests a code.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	RegisteredAt time.Time
}

// ProfileSubmittedEvent is emitted when a user completes the final onboarding stage.
type ProfileSubmittedEvent struct {
	EventID     string
	UserID      string
	ServiceType *ServiceType
	Role        *MemberRole
	SubmittedAt time.Time
}

// ProfileStatusChangedEvent is emitted after an administrator review decision commits.
type ProfileStatusChangedEvent struct {
	EventID    string
	UserID     string
	From       ProfileStatus
	To         ProfileStatus
	Reason     *string
	ReviewedBy string
	ReviewedAt time.Time
}

// RoleAssignedEvent is emitted when a user's access role changes.
type RoleAssignedEvent struct {
	EventID    string
	UserID     string
	RoleID     string
	RoleName   string
	AssignedBy string
	AssignedAt time.Time
}

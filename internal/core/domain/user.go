package domain

import (
	"strings"
	"time"
)

// ProfileStatus is the administrator review lifecycle of a profile.
type ProfileStatus string

const (
	ProfileStatusDraft         ProfileStatus = "DRAFT"
	ProfileStatusPendingReview ProfileStatus = "PENDING_REVIEW"
	ProfileStatusActive        ProfileStatus = "ACTIVE"
	ProfileStatusRejected      ProfileStatus = "REJECTED"
)

// MemberRole is the part a user plays on the platform. Not to be confused with an access Role.
type MemberRole string

const (
	MemberRoleDonor          MemberRole = "DONOR"
	MemberRoleSurrogate      MemberRole = "SURROGATE"
	MemberRoleRecipient      MemberRole = "RECIPIENT"
	MemberRoleAspiringParent MemberRole = "ASPIRING_PARENT"
)

type ServiceType string

const (
	ServiceTypeDonor     ServiceType = "DONOR_SERVICES"
	ServiceTypeSurrogacy ServiceType = "SURROGACY_SERVICES"
)

type Gender string

const (
	GenderWoman Gender = "WOMAN"
	GenderMan   Gender = "MAN"
	GenderOther Gender = "OTHER"
)

// GameteType is what a user is interested in donating or receiving.
type GameteType string

const (
	GameteSperm  GameteType = "SPERM"
	GameteEgg    GameteType = "EGG"
	GameteEmbryo GameteType = "EMBRYO"
)

func (r MemberRole) Valid() bool {
	switch r {
	case MemberRoleDonor, MemberRoleSurrogate, MemberRoleRecipient, MemberRoleAspiringParent:
		return true
	}
	return false
}

func (t ServiceType) Valid() bool {
	return t == ServiceTypeDonor || t == ServiceTypeSurrogacy
}

func (g Gender) Valid() bool {
	switch g {
	case GenderWoman, GenderMan, GenderOther:
		return true
	}
	return false
}

func (g GameteType) Valid() bool {
	switch g {
	case GameteSperm, GameteEgg, GameteEmbryo:
		return true
	}
	return false
}

// Onboarding wizard bounds.
const (
	OnboardingStepInitial = 0
	OnboardingStepFinal   = 6
)

// User is the identity anchor every profile sub-record hangs off.
type User struct {
	ID              string        `json:"id"`
	Email           string        `json:"email"`
	Gender          *Gender       `json:"gender"`
	Role            *MemberRole   `json:"role"`
	ServiceType     *ServiceType  `json:"serviceType"`
	InterestedIn    *GameteType   `json:"interestedIn"`
	PairingTypes    []string      `json:"pairingTypes"`
	TermsAccepted   bool          `json:"termsAccepted"`
	OnboardingStep  int           `json:"onboardingStep"`
	ProfileStatus   ProfileStatus `json:"profileStatus"`
	AccessRoleID    *string       `json:"accessRoleId"`
	SubmittedAt     *time.Time    `json:"submittedAt"`
	ReviewedAt      *time.Time    `json:"reviewedAt"`
	ReviewedBy      *string       `json:"reviewedBy"`
	RejectionReason *string       `json:"rejectionReason"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`

	// AccessRole is populated only by operations that resolve authorization data.
	AccessRole *Role `json:"accessRole,omitempty"`
}

// IsSurrogacyCandidate reports whether surrogacy-specific mandatory fields apply.
func (u User) IsSurrogacyCandidate() bool {
	if u.ServiceType != nil && *u.ServiceType == ServiceTypeSurrogacy {
		return true
	}
	return u.Role != nil && *u.Role == MemberRoleSurrogate
}

// OnboardingComplete reports whether every wizard stage has been submitted.
func (u User) OnboardingComplete() bool {
	return u.OnboardingStep >= OnboardingStepFinal
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OnboardingDeclaration carries the step-0 answers recorded on the user itself.
type OnboardingDeclaration struct {
	Gender        Gender
	Role          MemberRole
	ServiceType   ServiceType
	InterestedIn  GameteType
	PairingTypes  []string
	TermsAccepted bool
}

// OtpChallenge is a single issued login code. Only its hash is ever stored.
type OtpChallenge struct {
	ID         string
	UserID     string
	CodeHash   string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Expired reports whether the challenge can no longer be used at now.
func (c OtpChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Consumed reports whether the challenge was already used.
func (c OtpChallenge) Consumed() bool {
	return c.ConsumedAt != nil
}

// Setting is a single key/value pair from the settings store.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Well-known setting keys consulted by mail composition.
const (
	SettingBusinessName   = "BUSINESS_NAME"
	SettingAdminEmail     = "ADMIN_EMAIL"
	SettingLogoPath       = "LOGO_PATH"
	SettingPolicyLink     = "POLICY_LINK"
	SettingSocialFacebook = "SOCIAL_FB"
	SettingSocialX        = "SOCIAL_X"
	SettingMailFooter     = "MAIL_FOOTER_TEXT"
)

// ProtectedSettings cannot be deleted through the admin surface.
var ProtectedSettings = map[string]struct{}{
	SettingBusinessName: {},
	SettingAdminEmail:   {},
}

// DefaultSettings are inserted by the seed command when missing. Existing values are never overwritten.
var DefaultSettings = []Setting{
	{Key: SettingBusinessName, Value: "Helix Fertility"},
	{Key: SettingAdminEmail, Value: "admin@helix.com"},
	{Key: SettingLogoPath, Value: "https://helix.com/logo.png"},
	{Key: SettingPolicyLink, Value: "https://helix.com/policy"},
	{Key: SettingSocialFacebook, Value: "https://facebook.com/helix"},
	{Key: SettingSocialX, Value: "https://x.com/helix"},
	{Key: SettingMailFooter, Value: "Best of Luck, Team Helix"},
}

package usecase

import "github.com/213020aumc/matcha/internal/core/domain"

// Redirect tells the client where to send the user after signing in.
type Redirect struct {
	Path           string `json:"path"`
	SuggestedStage int    `json:"suggestedStage"`
}

// RedirectFor derives the post-login destination from role assignment, review status and progress.
func RedirectFor(user domain.User) Redirect {
	hint := Redirect{Path: "/onboarding", SuggestedStage: SuggestedStage(user)}

	if user.AccessRole != nil && len(user.AccessRole.Permissions) > 0 {
		hint.Path = "/admin"
		return hint
	}

	if user.TermsAccepted && user.Role != nil {
		switch user.ProfileStatus {
		case domain.ProfileStatusPendingReview:
			hint.Path = "/profile/pending"
		case domain.ProfileStatusActive:
			hint.Path = "/home"
		case domain.ProfileStatusRejected:
			hint.Path = "/profile/rejected"
		default:
			hint.Path = "/profile/complete"
		}
	}
	return hint
}

// SuggestedStage is the next wizard stage to show.
func SuggestedStage(user domain.User) int {
	return user.OnboardingStep + 1
}

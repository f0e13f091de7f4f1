package usecase

import (
	"context"
	"testing"

	"github.com/213020aumc/matcha/internal/core/domain"
)

func TestSignInToApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.store.seedAdmin("admin@test.com", domain.PermProfilesApprove)
	bystander := env.store.seedUser(domain.User{Email: "bystander@test.com"})

	user := env.signIn(t, "new@test.com")
	if user.OnboardingStep != 0 || user.ProfileStatus != domain.ProfileStatusDraft {
		t.Fatalf("fresh user must start in draft at step 0: %+v", user)
	}

	dob, err := domain.ParseDate("1994-03-02")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if _, err := env.profiles.SaveBasics(ctx, user.ID, domain.BasicsPatch{
		LegalName: domain.Some("New User"),
		DOB:       domain.Some(dob),
	}, true); err != nil {
		t.Fatalf("SaveBasics: %v", err)
	}
	if got := env.store.user(t, user.ID).OnboardingStep; got != 1 {
		t.Fatalf("expected step 1, got %d", got)
	}

	submission, err := env.profiles.SubmitLegal(ctx, user.ID, domain.LegalSubmission{ConsentAgreed: true})
	if err != nil {
		t.Fatalf("SubmitLegal: %v", err)
	}
	if submission.User.OnboardingStep != 6 || submission.User.ProfileStatus != domain.ProfileStatusPendingReview {
		t.Fatalf("unexpected submission state: %+v", submission.User)
	}

	if _, err := env.review.TransitionStatus(ctx, bystander.ID, user.ID, domain.ProfileStatusActive, ""); domain.KindOf(err) != domain.KindAuthorization {
		t.Fatalf("non-privileged caller must be refused, got %v", err)
	}

	approved, err := env.review.TransitionStatus(ctx, admin.ID, user.ID, domain.ProfileStatusActive, "")
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if approved.ProfileStatus != domain.ProfileStatusActive {
		t.Fatalf("expected ACTIVE, got %s", approved.ProfileStatus)
	}

	session, err := env.auth.Login(ctx, "new@test.com", mustIssue(t, env, "new@test.com"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Redirect.Path != "/onboarding" {
		t.Fatalf("a user who never declared a role stays on onboarding, got %s", session.Redirect.Path)
	}
}

func mustIssue(t *testing.T, env *testEnv, email string) string {
	t.Helper()
	challenge, err := env.auth.IssueChallenge(context.Background(), email)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	return challenge.Code
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/infra/logger"
	"github.com/213020aumc/matcha/internal/repository"
)

// OTPPolicy configures login code issuance.
type OTPPolicy struct {
	TTL        time.Duration
	CodeLength int
	// LogCodes writes plaintext codes to the log. Only ever enabled in development.
	LogCodes bool
}

// Challenge is the result of issuing a login code. Code is plaintext and must only be delivered out of band.
type Challenge struct {
	User      domain.User
	Code      string
	ExpiresAt time.Time
	NewUser   bool
}

// Session is a signed-in user with a session token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
	Redirect  Redirect
}

// AuthService issues and verifies login codes and session tokens.
type AuthService struct {
	tx         port.Transactor
	repos      port.Repositories
	authorizer *Authorizer
	hasher     port.SecretHasher
	codes      port.CodeGenerator
	tokens     port.SessionTokens
	notifier   port.Notifier
	events     port.EventPublisher
	metrics    port.DomainMetrics
	policy     OTPPolicy
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	tx port.Transactor,
	repos port.Repositories,
	authorizer *Authorizer,
	hasher port.SecretHasher,
	codes port.CodeGenerator,
	tokens port.SessionTokens,
	notifier port.Notifier,
	events port.EventPublisher,
	metrics port.DomainMetrics,
	policy OTPPolicy,
	log *zap.Logger,
) *AuthService {
	if policy.TTL <= 0 {
		policy.TTL = 10 * time.Minute
	}
	if policy.CodeLength <= 0 {
		policy.CodeLength = 6
	}
	return &AuthService{
		tx:         tx,
		repos:      repos,
		authorizer: authorizer,
		hasher:     hasher,
		codes:      codes,
		tokens:     tokens,
		notifier:   notifier,
		events:     events,
		metrics:    metrics,
		policy:     policy,
		logger:     log,
		now:        utcNow,
	}
}

// IssueChallenge finds or creates the user for email and stores a new hashed code for them.
func (s *AuthService) IssueChallenge(ctx context.Context, email string) (_ *Challenge, err error) {
	ctx, span := startSpan(ctx, "auth.IssueChallenge")
	defer func() { endSpan(span, err) }()

	email = domain.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}

	code, err := s.codes.Generate(s.policy.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}

	now := s.now()
	challenge := &Challenge{Code: code, ExpiresAt: now.Add(s.policy.TTL)}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		user, created, err := repos.Users.FindOrCreateByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("find or create user: %w", err)
		}
		challenge.User = *user
		challenge.NewUser = created

		return repos.Challenges.Create(ctx, domain.OtpChallenge{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			CodeHash:  hash,
			ExpiresAt: challenge.ExpiresAt,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", challenge.User.ID))

	s.metrics.OTPIssued()
	log := logger.WithContext(ctx)
	if s.policy.LogCodes {
		log.Info("Development login code", zap.String("email", email), zap.String("code", code))
	}

	if err := s.notifier.Notify(ctx, email, port.NotifyOTP, map[string]string{
		"Code":             code,
		"ExpiresInMinutes": strconv.Itoa(int(s.policy.TTL.Minutes())),
	}); err != nil {
		log.Warn("Failed to queue login code email", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
	}

	if challenge.NewUser {
		if err := s.events.PublishUserRegistered(ctx, domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       challenge.User.ID,
			Email:        email,
			RegisteredAt: now,
		}); err != nil {
			log.Warn("Failed to publish user registered event", zap.String("user_id", challenge.User.ID), zap.Error(err))
		}
	}

	return challenge, nil
}

// VerifyChallenge checks code against the most recently issued challenge and consumes it.
// The lookup, comparison and consumption run in one transaction with the challenge row locked.
func (s *AuthService) VerifyChallenge(ctx context.Context, email, code string) (_ *domain.User, err error) {
	ctx, span := startSpan(ctx, "auth.VerifyChallenge")
	defer func() { endSpan(span, err) }()

	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	now := s.now()

	var userID string
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.Repositories) error {
		user, err := repos.Users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrOTPUserNotFound
			}
			return fmt.Errorf("lookup user: %w", err)
		}
		userID = user.ID

		challenge, err := repos.Challenges.LatestForUpdate(ctx, user.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrOTPNoChallenge
			}
			return fmt.Errorf("lookup challenge: %w", err)
		}

		switch {
		case challenge.Expired(now):
			return domain.ErrOTPExpired
		case challenge.Consumed():
			return domain.ErrOTPAlreadyConsumed
		}

		ok, err := s.hasher.Verify(code, challenge.CodeHash)
		if err != nil {
			return fmt.Errorf("verify code: %w", err)
		}
		if !ok {
			return domain.ErrOTPMismatch
		}

		consumed, err := repos.Challenges.MarkConsumed(ctx, challenge.ID, now)
		if err != nil {
			return fmt.Errorf("consume challenge: %w", err)
		}
		if !consumed {
			return domain.ErrOTPAlreadyConsumed
		}
		return nil
	})
	s.metrics.OTPVerified(verificationOutcome(err))
	if err != nil {
		return nil, err
	}

	return s.authorizer.ResolvePrincipal(ctx, userID)
}

func verificationOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrOTPUserNotFound):
		return "unknown_user"
	case errors.Is(err, domain.ErrOTPNoChallenge):
		return "no_challenge"
	case errors.Is(err, domain.ErrOTPExpired):
		return "expired"
	case errors.Is(err, domain.ErrOTPAlreadyConsumed):
		return "consumed"
	case errors.Is(err, domain.ErrOTPMismatch):
		return "mismatch"
	default:
		return "error"
	}
}

// Login verifies the code and signs a session token for the user.
func (s *AuthService) Login(ctx context.Context, email, code string) (*Session, error) {
	user, err := s.VerifyChallenge(ctx, email, code)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	logger.WithContext(ctx).Info("User signed in", zap.String("user_id", user.ID))

	return &Session{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      *user,
		Redirect:  RedirectFor(*user),
	}, nil
}

// ResolveSession validates token and loads the current state of its user.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	user, err := s.authorizer.ResolvePrincipal(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidSessionToken
		}
		return nil, err
	}
	return user, nil
}

package port

import "github.com/213020aumc/matcha/internal/core/domain"

// DomainMetrics records business outcomes. Implementations must be safe for concurrent use.
type DomainMetrics interface {
	OTPIssued()
	OTPVerified(outcome string)
	StageAdvanced(step int)
	ReviewDecided(status domain.ProfileStatus)
}

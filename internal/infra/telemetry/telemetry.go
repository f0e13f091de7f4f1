package telemetry

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
)

const namespace = "matcha"

// DomainMetrics counts onboarding and review outcomes.
type DomainMetrics struct {
	otpIssued     prometheus.Counter
	otpVerified   *prometheus.CounterVec
	stageAdvanced *prometheus.CounterVec
	reviews       *prometheus.CounterVec
}

// NewDomainMetrics registers the business counters with reg, reusing collectors that already exist.
func NewDomainMetrics(reg prometheus.Registerer) (*DomainMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	otpIssued, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "otp",
		Name:      "issued_total",
		Help:      "Login codes issued.",
	}))
	if err != nil {
		return nil, err
	}

	otpVerified, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "otp",
		Name:      "verifications_total",
		Help:      "Login code verification attempts partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	stageAdvanced, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "onboarding",
		Name:      "stage_completions_total",
		Help:      "Onboarding stages completed partitioned by step.",
	}, []string{"step"}))
	if err != nil {
		return nil, err
	}

	reviews, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "review",
		Name:      "decisions_total",
		Help:      "Profile review decisions partitioned by resulting status.",
	}, []string{"status"}))
	if err != nil {
		return nil, err
	}

	return &DomainMetrics{
		otpIssued:     otpIssued,
		otpVerified:   otpVerified,
		stageAdvanced: stageAdvanced,
		reviews:       reviews,
	}, nil
}

func (m *DomainMetrics) OTPIssued() {
	m.otpIssued.Inc()
}

func (m *DomainMetrics) OTPVerified(outcome string) {
	m.otpVerified.WithLabelValues(outcome).Inc()
}

func (m *DomainMetrics) StageAdvanced(step int) {
	m.stageAdvanced.WithLabelValues(strconv.Itoa(step)).Inc()
}

func (m *DomainMetrics) ReviewDecided(status domain.ProfileStatus) {
	m.reviews.WithLabelValues(string(status)).Inc()
}

var _ port.DomainMetrics = (*DomainMetrics)(nil)

// register adds c to reg, or returns the collector registered earlier under the same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

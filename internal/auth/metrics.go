// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QuillPress Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Login outcome labels.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeNotActive          = "not_active"
)

// Metrics contains the Prometheus metrics for the authentication core.
// A nil *Metrics is valid and records nothing, so the service works without
// an observability stack wired in.
type Metrics struct {
	LoginsTotal        *prometheus.CounterVec
	RegistrationsTotal prometheus.Counter
	LockoutsTotal      prometheus.Counter
	RotationsTotal     prometheus.Counter
	TokenReuseTotal    prometheus.Counter
	MassRevocations    prometheus.Counter
}

// NewMetrics creates and registers the authentication metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillpress_auth_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		RegistrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quillpress_auth_registrations_total",
			Help: "Total number of accounts registered",
		}),
		LockoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quillpress_auth_lockouts_total",
			Help: "Total number of accounts locked after repeated failures",
		}),
		RotationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quillpress_auth_refresh_rotations_total",
			Help: "Total number of successful refresh token rotations",
		}),
		TokenReuseTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quillpress_auth_token_reuse_total",
			Help: "Total number of revoked refresh tokens presented again (reuse detection)",
		}),
		MassRevocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quillpress_auth_mass_revocations_total",
			Help: "Total number of whole-account refresh token revocations",
		}),
	}

	reg.MustRegister(
		m.LoginsTotal,
		m.RegistrationsTotal,
		m.LockoutsTotal,
		m.RotationsTotal,
		m.TokenReuseTotal,
		m.MassRevocations,
	)
	return m
}

func (m *Metrics) recordLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordRegistration() {
	if m == nil {
		return
	}
	m.RegistrationsTotal.Inc()
}

func (m *Metrics) recordLockout() {
	if m == nil {
		return
	}
	m.LockoutsTotal.Inc()
}

func (m *Metrics) recordRotation() {
	if m == nil {
		return
	}
	m.RotationsTotal.Inc()
}

func (m *Metrics) recordTokenReuse() {
	if m == nil {
		return
	}
	m.TokenReuseTotal.Inc()
}

func (m *Metrics) recordMassRevocation() {
	if m == nil {
		return
	}
	m.MassRevocations.Inc()
}

package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles every PostgreSQL-backed repository over one pool.
type Repositories struct {
	Onboarding *OnboardingRepository
	Steps      *StepRepository
	Sessions   *SessionRepository
}

// NewRepositories wires all repositories onto the shared connection pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Onboarding: NewOnboardingRepository(pool),
		Steps:      NewStepRepository(pool),
		Sessions:   NewSessionRepository(pool),
	}
}

package repositories

import (
	"context"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
)

// CartStorageKey is the key under which a session's serialised cart lines are kept.
const CartStorageKey = "cart"

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartStorage is durable key-value storage scoped per cart session.
// Get returns a RepositoryError reporting IsNotFound when the key was never written.
type CartStorage interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, error)
	Put(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID string) error
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

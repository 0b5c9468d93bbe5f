package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an external provider (embedding, generation).
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

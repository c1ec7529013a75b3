package health

import "context"

// DBPinger checks shared store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Checker checks a classifier or other dependency.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

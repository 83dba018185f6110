// Package target defines the client surface toward the external target
// service and the typed error taxonomy the worker loop classifies.
package target

import (
	"context"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// Deliverer performs the remote mutation for one job. Delivery is
// at-least-once across process restarts, so the mutation must be safely
// re-appliable.
type Deliverer interface {
	Deliver(ctx context.Context, job *domain.Job) error
}

// HealthProbe is a cheap liveness check against the target, used by the
// recovery detector while the breaker is open.
type HealthProbe interface {
	Probe(ctx context.Context) (healthy bool, latency time.Duration, err error)
}

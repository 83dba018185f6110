package domain

import "time"

// CircuitState is the gate position of the circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitBreakerState is the persisted breaker snapshot. It round-trips
// through breaker_state.json between invocations.
type CircuitBreakerState struct {
	State        CircuitState `json:"state"`
	FailureCount int          `json:"failure_count"`
	SuccessCount int          `json:"success_count"`
	OpenedAt     *time.Time   `json:"opened_at"`
}

// DefaultCircuitBreakerState returns the safe fallback used when the
// persisted file is missing or corrupted: fail toward availability.
func DefaultCircuitBreakerState() CircuitBreakerState {
	return CircuitBreakerState{State: CircuitClosed}
}

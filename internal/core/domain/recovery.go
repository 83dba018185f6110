package domain

import "time"

// RecoveryState is the persisted state of the recovery detector. All fields
// beyond LastCheckTime are diagnostic; breaker recovery is gated solely by
// the breaker's own success threshold.
type RecoveryState struct {
	LastCheckTime        time.Time  `json:"last_check_time"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	LastRecoveryTime     *time.Time `json:"last_recovery_time"`
	RecoveryCount        int        `json:"recovery_count"`
}

// Package throttle models per-organization worker tuning as a
// reconciliation step: the worker consumes configuration changes and
// reports whether they took effect live or need a restart.
package throttle

import "time"

// Config is the per-organization concurrency and retry tuning the worker
// runs under.
type Config struct {
	WorkerConcurrency int
	MaxRetries        int
	RetryInterval     time.Duration
	ReceiverTimeout   time.Duration
}

// Outcome is the typed result of applying a configuration change.
type Outcome int

const (
	// AppliedLive means the change is in effect without interruption.
	AppliedLive Outcome = iota

	// RequiresRestart means the change touches settings baked into running
	// consumers; it takes effect on the next worker start.
	RequiresRestart
)

func (o Outcome) String() string {
	switch o {
	case AppliedLive:
		return "applied_live"
	case RequiresRestart:
		return "requires_restart"
	default:
		return "unknown"
	}
}

// Apply reconciles current against next and reports the outcome. Retry
// tuning applies live because the retry manager reads it per message;
// consume concurrency is fixed at consumer creation, so changing it needs a
// restart.
func Apply(current, next Config) Outcome {
	if next.WorkerConcurrency != current.WorkerConcurrency {
		return RequiresRestart
	}
	return AppliedLive
}

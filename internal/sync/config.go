package sync

import "time"

// Environment selects the configuration profile the engine runs with.
// The environment is passed explicitly at construction time; there is no
// runtime introspection of the execution context.
type Environment int

const (
	// EnvProduction uses resilient retry settings (long delays, many
	// attempts).
	EnvProduction Environment = iota

	// EnvDevelopment uses shortened delays for a fast edit-run loop.
	EnvDevelopment

	// EnvTest uses near-zero delays so the retry and batch paths run in
	// full without slowing tests down.
	EnvTest
)

// String returns the environment name.
func (e Environment) String() string {
	switch e {
	case EnvDevelopment:
		return "development"
	case EnvTest:
		return "test"
	default:
		return "production"
	}
}

// Config carries the per-concern retry configurations and the batch
// configuration for one engine instance. Each environment constructs its
// own Config; instances are never shared or mutated after construction.
type Config struct {
	// Network applies to remote pull/push calls.
	Network RetryConfiguration

	// Database applies to local store operations.
	Database RetryConfiguration

	// Sync applies to the outer whole-pass retry in PerformSyncWithRetry.
	Sync RetryConfiguration

	// QuotaExceeded replaces Network for pushes once the remote reports
	// an exhausted quota. Quota resets are time-based, so the delays are
	// minutes rather than seconds.
	QuotaExceeded RetryConfiguration

	// Batch bounds push batch size and inter-batch pacing.
	Batch BatchConfiguration
}

// ConfigForEnvironment returns the configuration profile for env.
func ConfigForEnvironment(env Environment) *Config {
	switch env {
	case EnvTest:
		return &Config{
			Network: RetryConfiguration{
				MaxAttempts:       3,
				BaseDelay:         time.Millisecond,
				MaxDelay:          5 * time.Millisecond,
				BackoffMultiplier: 2.0,
				OperationTimeout:  time.Second,
			},
			Database: RetryConfiguration{
				MaxAttempts:       2,
				BaseDelay:         time.Millisecond,
				MaxDelay:          2 * time.Millisecond,
				BackoffMultiplier: 1.0,
				OperationTimeout:  time.Second,
			},
			Sync: RetryConfiguration{
				MaxAttempts:       2,
				BaseDelay:         time.Millisecond,
				MaxDelay:          5 * time.Millisecond,
				BackoffMultiplier: 2.0,
				OperationTimeout:  5 * time.Second,
			},
			QuotaExceeded: RetryConfiguration{
				MaxAttempts:       1,
				BaseDelay:         time.Millisecond,
				MaxDelay:          time.Millisecond,
				BackoffMultiplier: 1.0,
				OperationTimeout:  time.Second,
			},
			Batch: BatchConfiguration{
				MaxRecordsPerBatch: 50,
				BatchDelay:         0,
			},
		}

	case EnvDevelopment:
		return &Config{
			Network: RetryConfiguration{
				MaxAttempts:       3,
				BaseDelay:         200 * time.Millisecond,
				MaxDelay:          2 * time.Second,
				BackoffMultiplier: 2.0,
				OperationTimeout:  15 * time.Second,
			},
			Database: RetryConfiguration{
				MaxAttempts:       3,
				BaseDelay:         50 * time.Millisecond,
				MaxDelay:          500 * time.Millisecond,
				BackoffMultiplier: 2.0,
				OperationTimeout:  5 * time.Second,
			},
			Sync: RetryConfiguration{
				MaxAttempts:       2,
				BaseDelay:         time.Second,
				MaxDelay:          5 * time.Second,
				BackoffMultiplier: 2.0,
				OperationTimeout:  time.Minute,
			},
			QuotaExceeded: RetryConfiguration{
				MaxAttempts:       2,
				BaseDelay:         30 * time.Second,
				MaxDelay:          time.Minute,
				BackoffMultiplier: 2.0,
				OperationTimeout:  5 * time.Minute,
			},
			Batch: BatchConfiguration{
				MaxRecordsPerBatch: 50,
				BatchDelay:         100 * time.Millisecond,
			},
		}

	default: // EnvProduction
		return &Config{
			Network: RetryConfiguration{
				MaxAttempts:       5,
				BaseDelay:         time.Second,
				MaxDelay:          30 * time.Second,
				BackoffMultiplier: 2.0,
				OperationTimeout:  2 * time.Minute,
			},
			Database: RetryConfiguration{
				MaxAttempts:       3,
				BaseDelay:         100 * time.Millisecond,
				MaxDelay:          time.Second,
				BackoffMultiplier: 2.0,
				OperationTimeout:  30 * time.Second,
			},
			Sync: RetryConfiguration{
				MaxAttempts:       3,
				BaseDelay:         5 * time.Second,
				MaxDelay:          time.Minute,
				BackoffMultiplier: 2.0,
				OperationTimeout:  10 * time.Minute,
			},
			// Quota resets are time-based, not immediate: minutes, not
			// seconds.
			QuotaExceeded: RetryConfiguration{
				MaxAttempts:       3,
				BaseDelay:         5 * time.Minute,
				MaxDelay:          30 * time.Minute,
				BackoffMultiplier: 2.0,
				OperationTimeout:  2 * time.Hour,
			},
			Batch: BatchConfiguration{
				MaxRecordsPerBatch: 50,
				BatchDelay:         500 * time.Millisecond,
			},
		}
	}
}

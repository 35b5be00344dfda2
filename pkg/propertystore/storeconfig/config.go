// Package storeconfig loads the property store's runtime configuration
// (worker sizing, queue capacity, fast-track/debug toggles) from the
// environment, following this codebase's environment-first configuration
// convention.
package storeconfig

import (
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Config controls the store's worker pool sizing and optional behaviors.
type Config struct {
	// ComputeWorkers is the number of compute-worker goroutines. Zero
	// means "derive from host CPU count" (see Load).
	ComputeWorkers int `env:"STORE_COMPUTE_WORKERS,default=0"`

	// TaskQueueCapacity and UpdateQueueCapacity bound the two deques of
	// §4.4. A full queue applies backpressure to ScheduleEager/Force/Get
	// rather than growing unboundedly.
	TaskQueueCapacity   int `env:"STORE_TASK_QUEUE_CAPACITY,default=65536"`
	UpdateQueueCapacity int `env:"STORE_UPDATE_QUEUE_CAPACITY,default=65536"`

	// FastTrackEnabled allows Get to attempt a lazy kind's fast-track
	// approximator before falling back to triggering the real
	// computation (§4.6).
	FastTrackEnabled bool `env:"STORE_FAST_TRACK_ENABLED,default=true"`

	// FastTrackRatePerSecond caps fast-track attempts at this many per
	// second (a token bucket with a burst of the same size, shared by all
	// phases of one Store); see DOMAIN STACK's rate-limited fast-track
	// component. Zero disables the limiter (unbounded).
	FastTrackRatePerSecond int `env:"STORE_FAST_TRACK_RATE,default=0"`

	// Debug makes contract violations panic on the updates worker (the
	// panic is recovered and surfaced as the phase's first error),
	// promotes IdempotentResult mismatches from a logged warning to a
	// ContractViolation, and asserts at phase end that no forced pair was
	// left intermediate. Monotonicity is checked in both modes. There is
	// no check that a finalized pair's dependee set is empty.
	Debug bool `env:"STORE_DEBUG,default=false"`
}

// DefaultComputeWorkers returns max(logical CPU count, 1), the store's
// default compute-worker pool size absent an explicit override, reading
// the host's core count the way a container-aware deployment would
// rather than trusting runtime.GOMAXPROCS alone.
func DefaultComputeWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Load reads Config from a local .env file (if present) and the process
// environment, applying CPU-derived defaults for zero-valued fields that
// have none.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ComputeWorkers:         0,
		TaskQueueCapacity:      65536,
		UpdateQueueCapacity:    65536,
		FastTrackEnabled:       true,
		FastTrackRatePerSecond: 0,
		Debug:                  false,
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode store config: %w", err)
		}
	}

	if cfg.ComputeWorkers <= 0 {
		cfg.ComputeWorkers = DefaultComputeWorkers()
	}
	if cfg.TaskQueueCapacity <= 0 {
		cfg.TaskQueueCapacity = 65536
	}
	if cfg.UpdateQueueCapacity <= 0 {
		cfg.UpdateQueueCapacity = 65536
	}

	return cfg, nil
}

// Default returns a Config populated from CPU-derived defaults only,
// ignoring the environment — for tests and the demo client.
func Default() *Config {
	return &Config{
		ComputeWorkers:      DefaultComputeWorkers(),
		TaskQueueCapacity:   65536,
		UpdateQueueCapacity: 65536,
		FastTrackEnabled:    true,
	}
}

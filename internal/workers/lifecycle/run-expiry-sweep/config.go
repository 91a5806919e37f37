// internal/workers/lifecycle/run-expiry-sweep/config.go
package runexpirysweep

import (
	"time"

	"certification-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Config{Timeout: timeout}
}

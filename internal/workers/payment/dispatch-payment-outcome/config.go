// internal/workers/payment/dispatch-payment-outcome/config.go
package dispatchpaymentoutcome

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
		timeout = 20 * time.Second
	}
	return &Config{Timeout: timeout}
}

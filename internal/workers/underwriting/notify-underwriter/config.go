// internal/workers/underwriting/notify-underwriter/config.go
package notifyunderwriter

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}

// internal/workers/underwriting/calculate-risk-score/config.go
package calculateriskscore

import "time"

// Scoring is pure and local, so only a timeout is configurable.
type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}

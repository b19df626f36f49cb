// internal/workers/underwriting/validate-mortgage-application/config.go
package validatemortgageapplication

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}

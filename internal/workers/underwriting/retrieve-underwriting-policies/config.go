// internal/workers/underwriting/retrieve-underwriting-policies/config.go
package retrieveunderwritingpolicies

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 15 * time.Second,
	}
}

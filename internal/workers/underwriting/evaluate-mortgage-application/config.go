// internal/workers/underwriting/evaluate-mortgage-application/config.go
package evaluatemortgageapplication

import "time"

type Config struct {
	// Timeout bounds one full case run, including every generation call.
	Timeout time.Duration
	// IncludeMemo copies the decision memo into the process variables.
	IncludeMemo bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     5 * time.Minute,
		IncludeMemo: true,
	}
}

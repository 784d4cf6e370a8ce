package config

import "fmt"

// ValidateConfig checks every section that the node cannot start without.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if _, err := cfg.Lending.Params(); err != nil {
		return fmt.Errorf("lending: %w", err)
	}
	if _, err := cfg.Lending.ActionPauses(); err != nil {
		return fmt.Errorf("lending: %w", err)
	}
	if _, err := ResolveListings(cfg.Assets); err != nil {
		return fmt.Errorf("assets: %w", err)
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: negative limits")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		return fmt.Errorf("ratelimit: burst must be positive when a rate is set")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample ratio outside [0,1]")
	}
	return nil
}

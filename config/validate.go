package config

import (
	"fmt"
	"net"
	"strings"
)

var validNetworks = map[string]struct{}{
	"MAIN_NET":    {},
	"TEST_NET":    {},
	"REGTEST_NET": {},
}

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if _, ok := validNetworks[cfg.Network]; !ok {
		return fmt.Errorf("config: unknown network %q", cfg.Network)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if _, _, err := net.SplitHostPort(cfg.MetricsAddress); err != nil {
		return fmt.Errorf("config: MetricsAddress %q: %w", cfg.MetricsAddress, err)
	}
	if _, _, err := net.SplitHostPort(cfg.API.Address); err != nil {
		return fmt.Errorf("config: API.Address %q: %w", cfg.API.Address, err)
	}
	if cfg.API.QueryPerMinute < 0 || cfg.API.SubmitPerMinute < 0 || cfg.API.QueryBurst < 0 || cfg.API.SubmitBurst < 0 {
		return fmt.Errorf("config: API rate limits must not be negative")
	}
	if (cfg.Telemetry.Traces || cfg.Telemetry.Metrics) && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("config: telemetry enabled without an endpoint")
	}
	return nil
}

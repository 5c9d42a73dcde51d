package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network != DefaultNetwork {
		t.Fatalf("expected default network %q, got %q", DefaultNetwork, cfg.Network)
	}
	if cfg.MetricsAddress != DefaultMetricsAddress {
		t.Fatalf("expected default metrics address, got %q", cfg.MetricsAddress)
	}
	if cfg.API.Address != DefaultAPIAddress || cfg.API.SubmitBlocks {
		t.Fatalf("unexpected default api settings: %+v", cfg.API)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.DataDir != cfg.DataDir || again.Environment != "local" {
		t.Fatalf("reloaded config differs: %+v", again)
	}
}

func TestLoadParsesSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `DataDir = "/var/lib/cdpledger"
Network = "TEST_NET"
Environment = "staging"
LogFile = "/var/log/cdpledger.log"
MetricsAddress = "127.0.0.1:9100"
ParamsFile = "params.yaml"
PersistClosedCDP = true
GenesisAccountsFile = "accounts.yaml"
IndexerDSN = "file:index.db"

[API]
Address = "0.0.0.0:8780"
SubmitBlocks = true
QueryPerMinute = 600
QueryBurst = 20

[Telemetry]
Endpoint = "collector:4318"
Headers = "x-token=abc"
Insecure = true
Traces = true

[Pauses]
Liquidation = true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network != "TEST_NET" || cfg.DataDir != "/var/lib/cdpledger" {
		t.Fatalf("unexpected node settings: %+v", cfg)
	}
	if !cfg.PersistClosedCDP {
		t.Fatalf("expected closed cdp persistence enabled")
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.Metrics || cfg.Telemetry.Endpoint != "collector:4318" {
		t.Fatalf("unexpected telemetry: %+v", cfg.Telemetry)
	}
	if cfg.IndexerDSN != "file:index.db" || cfg.GenesisAccountsFile != "accounts.yaml" {
		t.Fatalf("unexpected indexer/genesis settings: %+v", cfg)
	}
	if !cfg.API.SubmitBlocks || cfg.API.QueryPerMinute != 600 || cfg.API.QueryBurst != 20 || cfg.API.SubmitPerMinute != 0 {
		t.Fatalf("unexpected api settings: %+v", cfg.API)
	}
	if cfg.Pauses != (Pauses{Liquidation: true}) {
		t.Fatalf("unexpected pauses: %+v", cfg.Pauses)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		want     string
	}{
		{name: "network", contents: `Network = "SIDE_NET"`, want: "unknown network"},
		{name: "metrics", contents: `MetricsAddress = "9100"`, want: "MetricsAddress"},
		{name: "api address", contents: "[API]\nAddress = \"8780\"", want: "API.Address"},
		{name: "api limits", contents: "[API]\nQueryBurst = -1", want: "must not be negative"},
		{name: "telemetry", contents: "[Telemetry]\nTraces = true\nEndpoint = \"  \"", want: "without an endpoint"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.contents), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateConfigNil(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

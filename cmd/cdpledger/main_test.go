package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cdpledger/config"
	"cdpledger/core"
	"cdpledger/core/types"
	"cdpledger/native/params"
	"cdpledger/storage"
)

func TestRateLimitsSkipsUnlimitedGroups(t *testing.T) {
	limits := rateLimits(config.API{QueryPerMinute: 120, QueryBurst: 4})
	if len(limits) != 1 {
		t.Fatalf("expected only the query group, got %+v", limits)
	}
	if got := limits["query"]; got.RequestsPerMinute != 120 || got.Burst != 4 {
		t.Fatalf("unexpected query limit %+v", got)
	}
}

func TestInitGenesisFromFile(t *testing.T) {
	reserve := types.KeyIDFromPubKey(append(types.PubKey{0x03}, make([]byte, types.PubKeyLength-1)...))
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	body := "genesisTime: \"2024-01-01T00:00:00Z\"\naccounts:\n  - address: " + reserve.Address() + "\n    regId: \"0-1\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	ledger, err := core.NewLedger(storage.NewMemDB(), core.Options{})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	cfg := &config.Config{Pauses: config.Pauses{Transfer: true}}
	if err := initGenesis(ledger, params.DefaultGenesis(), cfg, path); err != nil {
		t.Fatalf("init genesis: %v", err)
	}
	if ledger.Chain().CurrentHeader() == nil {
		t.Fatalf("genesis block not stored")
	}
}

func TestInitGenesisRequiresFile(t *testing.T) {
	ledger, err := core.NewLedger(storage.NewMemDB(), core.Options{})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	err = initGenesis(ledger, params.DefaultGenesis(), &config.Config{}, " ")
	if err == nil || !strings.Contains(err.Error(), "no genesis accounts file") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestRunExportRequiresOutput(t *testing.T) {
	if err := runExport([]string{"-kind", "receipts"}); err == nil {
		t.Fatalf("expected error without -out")
	}
}

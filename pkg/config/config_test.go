package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleTOML = `
[database]
pg_url = "postgres://localhost/relayer"

[carbon]
chain_id = "carbon-1"
axelar_bridge_id = "bridge-1"
rpc_url = "http://localhost:26657"
rest_url = "http://localhost:1317"
ws_url = "ws://localhost:26657/websocket"
relayer_mnemonic = "test mnemonic"

[fee]
relay_strategy = "all"

[[evm_chain]]
chain_id = 1
rpc_url = "http://localhost:8545"
axelar_gateway_proxy = "0x0000000000000000000000000000000000000001"
relayer_private_key = "deadbeef"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Carbon.AccountPrefix != "swth" {
		t.Errorf("account_prefix = %q, want swth", cfg.Carbon.AccountPrefix)
	}
	if cfg.Carbon.TxFeeDenom != "swth" {
		t.Errorf("tx_fee_denom = %q, want swth", cfg.Carbon.TxFeeDenom)
	}
	if cfg.Carbon.TxFeeAmount != "100000000000" {
		t.Errorf("tx_fee_amount = %q, want 100000000000", cfg.Carbon.TxFeeAmount)
	}
	if cfg.Carbon.BaseGas != 200000 {
		t.Errorf("base_gas = %d, want 200000", cfg.Carbon.BaseGas)
	}
	if len(cfg.EvmChain) != 1 {
		t.Fatalf("expected 1 evm_chain, got %d", len(cfg.EvmChain))
	}
	if cfg.EvmChain[0].MaxQueryBlocks != 2000 {
		t.Errorf("max_query_blocks = %d, want 2000", cfg.EvmChain[0].MaxQueryBlocks)
	}
}

func TestValidate_RejectsMissingRequiredFields(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to fail on an empty config")
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed on a well-formed config: %v", err)
	}
}

func TestValidate_RejectsHydrogenWithoutURL(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Fee.RelayStrategy = "hydrogen"
	cfg.Fee.HydrogenURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to reject hydrogen strategy without hydrogen_url")
	}
}

func TestValidate_RejectsWsChainWithoutWsURL(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.EvmChain[0].HasWs = true
	cfg.EvmChain[0].WsURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to reject has_ws=true without ws_url")
	}
}

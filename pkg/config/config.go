// Package config loads the relayer's configuration document.
//
// The primary source is a TOML file (default path "config.toml", overridable
// with --config). A few fields (the database URL, the Hub mnemonic and RPC
// URL, the hydrogen URL) may be overridden by an environment variable for
// container deployments, and the database pool sizes/timeouts and the
// start-relay retry limit fall back to environment variables before their
// hard defaults, using the getEnv/getEnvInt/getEnvDuration helpers below.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration document for the relayer.
type Config struct {
	Database Database    `toml:"database"`
	Carbon   Carbon      `toml:"carbon"`
	Fee      Fee         `toml:"fee"`
	EvmChain []EvmChain  `toml:"evm_chain"`

	// Verbosity is set from the repeatable --verbose CLI flag, not from the
	// TOML document; it is not part of the on-disk schema.
	Verbosity int `toml:"-"`
}

// Database holds the event store's connection parameters.
type Database struct {
	PgURL               string        `toml:"pg_url"`
	MaxConns            int           `toml:"max_conns"`
	MinConns            int           `toml:"min_conns"`
	MaxIdleTime         time.Duration `toml:"max_idle_time"`
	MaxLifetime         time.Duration `toml:"max_lifetime"`
}

// Carbon holds everything needed to read from and sign transactions for the
// Hub chain.
type Carbon struct {
	ChainID                     string `toml:"chain_id"`
	AxelarBridgeID              string `toml:"axelar_bridge_id"`
	RPCURL                      string `toml:"rpc_url"`
	RestURL                     string `toml:"rest_url"`
	WsURL                       string `toml:"ws_url"`
	RelayerAddress              string `toml:"relayer_address"`
	RelayerMnemonic             string `toml:"relayer_mnemonic"`
	AccountPrefix               string `toml:"account_prefix"`
	MaximumStartRelayRetryCount int    `toml:"maximum_start_relay_retry_count"`

	// TxFeeAmount/TxFeeDenom/BaseGas are the "fixed fee (amount x denom
	// configured)" and gas limit base spec.md §4.2 step 4 describes as
	// "configured" without naming the schema key; these are this module's
	// EXPANSION of the config document to hold that knob (see DESIGN.md).
	TxFeeAmount string `toml:"tx_fee_amount"`
	TxFeeDenom  string `toml:"tx_fee_denom"`
	BaseGas     uint64 `toml:"base_gas"`
}

// Fee holds the fee-policy configuration (§4.5).
type Fee struct {
	RelayStrategy          string   `toml:"relay_strategy"`
	HydrogenURL            string   `toml:"hydrogen_url"`
	FeeTolerancePercentage float64  `toml:"fee_tolerance_percentage"`
	WhitelistAddresses     []string `toml:"whitelist_addresses"`
	CallbackDenom          string   `toml:"callback_denom"`
}

// EvmChain holds one destination chain's client configuration.
type EvmChain struct {
	ChainID               int64         `toml:"chain_id"`
	RPCURL                string        `toml:"rpc_url"`
	WsURL                 string        `toml:"ws_url"`
	HasWs                 bool          `toml:"has_ws"`
	AxelarGatewayProxy    string        `toml:"axelar_gateway_proxy"`
	CarbonAxelarGateway   string        `toml:"carbon_axelar_gateway"`
	MaxQueryBlocks        uint64        `toml:"max_query_blocks"`
	RelayerPrivateKey     string        `toml:"relayer_private_key"`
	BackfillPollFrequency time.Duration `toml:"backfill_poll_frequency"`
}

// Load reads and decodes the TOML document at path, then applies any
// environment variable overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides lets a containerised deployment override the most
// commonly rotated secrets without editing the TOML document on disk.
func applyEnvOverrides(cfg *Config) {
	cfg.Database.PgURL = getEnv("RELAYER_DATABASE_URL", cfg.Database.PgURL)
	cfg.Carbon.RelayerMnemonic = getEnv("RELAYER_CARBON_MNEMONIC", cfg.Carbon.RelayerMnemonic)
	cfg.Carbon.RPCURL = getEnv("RELAYER_CARBON_RPC_URL", cfg.Carbon.RPCURL)
	cfg.Fee.HydrogenURL = getEnv("RELAYER_HYDROGEN_URL", cfg.Fee.HydrogenURL)
}

// applyDefaults fills in values the spec treats as defaults rather than
// required fields.
func applyDefaults(cfg *Config) {
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = getEnvInt("RELAYER_DB_MAX_CONNS", 10)
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = getEnvInt("RELAYER_DB_MIN_CONNS", 2)
	}
	if cfg.Database.MaxIdleTime == 0 {
		cfg.Database.MaxIdleTime = getEnvDuration("RELAYER_DB_MAX_IDLE_TIME", 5*time.Minute)
	}
	if cfg.Database.MaxLifetime == 0 {
		cfg.Database.MaxLifetime = getEnvDuration("RELAYER_DB_MAX_LIFETIME", time.Hour)
	}
	if cfg.Carbon.MaximumStartRelayRetryCount == 0 {
		cfg.Carbon.MaximumStartRelayRetryCount = getEnvInt("RELAYER_MAX_START_RELAY_RETRIES", 10)
	}
	if cfg.Carbon.AccountPrefix == "" {
		cfg.Carbon.AccountPrefix = "swth"
	}
	if cfg.Carbon.TxFeeDenom == "" {
		cfg.Carbon.TxFeeDenom = "swth"
	}
	if cfg.Carbon.TxFeeAmount == "" {
		cfg.Carbon.TxFeeAmount = "100000000000"
	}
	if cfg.Carbon.BaseGas == 0 {
		cfg.Carbon.BaseGas = 200000
	}
	for i := range cfg.EvmChain {
		if cfg.EvmChain[i].MaxQueryBlocks == 0 {
			cfg.EvmChain[i].MaxQueryBlocks = 2000
		}
		if cfg.EvmChain[i].BackfillPollFrequency == 0 {
			cfg.EvmChain[i].BackfillPollFrequency = 300 * time.Second
		}
	}
}

// Validate checks that the minimum viable configuration is present, failing
// the process at boot per spec.md §7's "Configuration / fatal" error kind.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.PgURL == "" {
		problems = append(problems, "database.pg_url is required")
	}
	if c.Carbon.RPCURL == "" {
		problems = append(problems, "carbon.rpc_url is required")
	}
	if c.Carbon.RestURL == "" {
		problems = append(problems, "carbon.rest_url is required")
	}
	if c.Carbon.WsURL == "" {
		problems = append(problems, "carbon.ws_url is required")
	}
	if c.Carbon.RelayerMnemonic == "" {
		problems = append(problems, "carbon.relayer_mnemonic is required")
	}
	if c.Carbon.AxelarBridgeID == "" {
		problems = append(problems, "carbon.axelar_bridge_id is required")
	}

	switch c.Fee.RelayStrategy {
	case "all", "greater_than_0":
	case "hydrogen":
		if c.Fee.HydrogenURL == "" {
			problems = append(problems, "fee.hydrogen_url is required when fee.relay_strategy = \"hydrogen\"")
		}
	default:
		problems = append(problems, fmt.Sprintf("fee.relay_strategy %q is not one of all|greater_than_0|hydrogen", c.Fee.RelayStrategy))
	}

	if len(c.EvmChain) == 0 {
		problems = append(problems, "at least one [[evm_chain]] is required")
	}
	for _, chain := range c.EvmChain {
		if chain.RPCURL == "" {
			problems = append(problems, fmt.Sprintf("evm_chain[chain_id=%d].rpc_url is required", chain.ChainID))
		}
		if chain.HasWs && chain.WsURL == "" {
			problems = append(problems, fmt.Sprintf("evm_chain[chain_id=%d].ws_url is required when has_ws = true", chain.ChainID))
		}
		if chain.AxelarGatewayProxy == "" {
			problems = append(problems, fmt.Sprintf("evm_chain[chain_id=%d].axelar_gateway_proxy is required", chain.ChainID))
		}
		if chain.RelayerPrivateKey == "" {
			problems = append(problems, fmt.Sprintf("evm_chain[chain_id=%d].relayer_private_key is required", chain.ChainID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// envVar binds one AGENTMARKET_* variable to a config field.
type envVar struct {
	name  string
	apply func(c *Config, v string) error
}

var envVars = []envVar{
	{"DATA_DIR", func(c *Config, v string) error { c.General.DataDir = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.General.LogLevel = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.General.LogFormat = v; return nil }},

	{"FEE_PER_SIGNATURE", uintVar(func(c *Config) *uint64 { return &c.Ledger.FeePerSignature })},
	{"VERIFY_SIGNATURES", boolVar(func(c *Config) *bool { return &c.Ledger.VerifySignatures })},
	{"STATUS_CACHE_SIZE", intVar(func(c *Config) *int { return &c.Ledger.StatusCacheSize })},
	{"COMPUTE_UNIT_LIMIT", uintVar(func(c *Config) *uint64 { return &c.Ledger.ComputeUnitLimit })},
	{"HASHES_PER_TICK", uintVar(func(c *Config) *uint64 { return &c.Ledger.HashesPerTick })},
	{"MAX_ACCOUNT_DATA_SIZE", uintVar(func(c *Config) *uint64 { return &c.Ledger.MaxAccountDataSize })},
	{"SLOT_DURATION", durationVar(func(c *Config) *time.Duration { return &c.Ledger.SlotDuration })},
	{"GENESIS_SNAPSHOT", func(c *Config, v string) error { c.Ledger.GenesisSnapshot = v; return nil }},
	{"SNAPSHOT_ON_SHUTDOWN", boolVar(func(c *Config) *bool { return &c.Ledger.SnapshotOnShutdown })},

	{"PROGRAM_ID", func(c *Config, v string) error {
		pk, err := types.PubkeyFromBase58(v)
		if err != nil {
			return err
		}
		c.Program.ProgramID = pk
		return nil
	}},
	{"MAX_NAME_LEN", intVar(func(c *Config) *int { return &c.Program.MaxNameLen })},
	{"MAX_DESCRIPTION_LEN", intVar(func(c *Config) *int { return &c.Program.MaxDescriptionLen })},
	{"MAX_ENDPOINT_LEN", intVar(func(c *Config) *int { return &c.Program.MaxEndpointLen })},
	{"MIN_PRICE", uintVar(func(c *Config) *uint64 { return &c.Program.MinPrice })},

	{"RPC_ENABLED", boolVar(func(c *Config) *bool { return &c.RPC.Enabled })},
	{"RPC_ADDR", func(c *Config, v string) error { c.RPC.Addr = v; return nil }},
	{"RPC_ALLOWED_ORIGINS", func(c *Config, v string) error { c.RPC.AllowedOrigins = splitList(v); return nil }},
	{"RPC_RATE_LIMIT", boolVar(func(c *Config) *bool { return &c.RPC.RateLimit.Enabled })},
	{"RPC_RATE_LIMIT_RPS", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.RPC.RateLimit.RPS = f
		return nil
	}},
	{"RPC_RATE_LIMIT_BURST", intVar(func(c *Config) *int { return &c.RPC.RateLimit.Burst })},

	{"METRICS_ENABLED", boolVar(func(c *Config) *bool { return &c.Metrics.Enabled })},
	{"METRICS_ADDR", func(c *Config, v string) error { c.Metrics.Addr = v; return nil }},
	{"METRICS_HEALTH_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.Metrics.HealthInterval })},
	{"METRICS_COLLECT_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.Metrics.CollectInterval })},

	{"FAUCET_ENABLED", boolVar(func(c *Config) *bool { return &c.Faucet.Enabled })},
	{"FAUCET_KEYPAIR", func(c *Config, v string) error { c.Faucet.Keypair = v; return nil }},
	{"FAUCET_MAX_AIRDROP", uintVar(func(c *Config) *uint64 { return &c.Faucet.MaxAirdrop })},
}

// ApplyEnv overrides fields from AGENTMARKET_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(EnvPrefix + ev.name)
		if !ok {
			continue
		}
		if err := ev.apply(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, ev.name, err)
		}
	}
	return nil
}

// EnvNames lists every recognized environment variable.
func EnvNames() []string {
	names := make([]string, len(envVars))
	for i, ev := range envVars {
		names[i] = EnvPrefix + ev.name
	}
	return names
}

func uintVar(field func(*Config) *uint64) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

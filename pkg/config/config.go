// Package config loads node configuration from a YAML file, optional .env
// files and AGENTMARKET_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/fortiblox/x1-agentmarket/pkg/ledger"
	"github.com/fortiblox/x1-agentmarket/pkg/logging"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTMARKET_"

// MemoryDataDir keeps all state in memory.
const MemoryDataDir = ":memory:"

// Config represents the configuration file structure.
type Config struct {
	General GeneralConfig `yaml:"general"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Program ProgramConfig `yaml:"program"`
	Rent    types.Rent    `yaml:"rent"`
	RPC     RPCConfig     `yaml:"rpc"`
	Metrics MetricsConfig `yaml:"metrics"`
	Faucet  FaucetConfig  `yaml:"faucet"`
}

// GeneralConfig holds general application settings.
type GeneralConfig struct {
	DataDir   string `yaml:"data_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LedgerConfig holds transaction processing settings.
type LedgerConfig struct {
	FeePerSignature    uint64        `yaml:"fee_per_signature"`
	VerifySignatures   bool          `yaml:"verify_signatures"`
	StatusCacheSize    int           `yaml:"status_cache_size"`
	ComputeUnitLimit   uint64        `yaml:"compute_unit_limit"`
	MaxAccountDataSize uint64        `yaml:"max_account_data_size"`
	SlotDuration       time.Duration `yaml:"slot_duration"`
	HashesPerTick      uint64        `yaml:"hashes_per_tick"`

	// GenesisSnapshot is loaded into an empty account database at startup.
	GenesisSnapshot string `yaml:"genesis_snapshot"`

	// SnapshotOnShutdown writes <data_dir>/snapshots/latest.snapshot on exit.
	SnapshotOnShutdown bool `yaml:"snapshot_on_shutdown"`
}

// ProgramConfig holds the marketplace program's address and record limits.
type ProgramConfig struct {
	ProgramID         types.Pubkey `yaml:"program_id"`
	MaxNameLen        int          `yaml:"max_name_len"`
	MaxDescriptionLen int          `yaml:"max_description_len"`
	MaxEndpointLen    int          `yaml:"max_endpoint_len"`
	MinPrice          uint64       `yaml:"min_price"`
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxRequestSize int64    `yaml:"max_request_size"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`

	// HealthInterval is how often the health checks run.
	HealthInterval time.Duration `yaml:"health_interval"`
	// CollectInterval is how often ledger gauges are refreshed.
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// FaucetConfig holds airdrop settings.
type FaucetConfig struct {
	Enabled bool `yaml:"enabled"`

	// Keypair is the faucet key file. Empty means <data_dir>/faucet.json.
	Keypair string `yaml:"keypair"`

	InitialLamports uint64 `yaml:"initial_lamports"`
	MaxAirdrop      uint64 `yaml:"max_airdrop"`
}

// Default returns a Config with default values.
func Default() *Config {
	lo := ledger.DefaultOptions()
	pc := agentmarket.DefaultConfig()
	return &Config{
		General: GeneralConfig{
			DataDir:   defaultDataDir(),
			LogLevel:  "info",
			LogFormat: logging.FormatText,
		},
		Ledger: LedgerConfig{
			FeePerSignature:    uint64(lo.FeePerSignature),
			VerifySignatures:   lo.VerifySignatures,
			StatusCacheSize:    lo.StatusCacheSize,
			ComputeUnitLimit:   uint64(lo.ComputeUnitLimit),
			MaxAccountDataSize: lo.MaxAccountDataSize,
			SlotDuration:       lo.SlotDuration,
			HashesPerTick:      lo.HashesPerTick,
			SnapshotOnShutdown: true,
		},
		Program: ProgramConfig{
			ProgramID:         pc.ProgramID,
			MaxNameLen:        pc.MaxNameLen,
			MaxDescriptionLen: pc.MaxDescriptionLen,
			MaxEndpointLen:    pc.MaxEndpointLen,
			MinPrice:          pc.MinPrice,
		},
		Rent: lo.Rent,
		RPC: RPCConfig{
			Enabled:        true,
			Addr:           ":8899",
			AllowedOrigins: []string{"*"},
			MaxRequestSize: 1 << 20,
			RateLimit: RateLimitConfig{
				RPS:   100,
				Burst: 200,
			},
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			Addr:            ":9090",
			HealthInterval:  10 * time.Second,
			CollectInterval: 15 * time.Second,
		},
		Faucet: FaucetConfig{
			Enabled:         true,
			InitialLamports: uint64(lo.FaucetLamports),
			MaxAirdrop:      uint64(lo.MaxAirdrop),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentmarket"
	}
	return filepath.Join(home, ".agentmarket")
}

// Load builds the configuration: defaults, then the YAML file at path (a
// missing file is not an error), then envFiles, then the process
// environment. The result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := cfg.decode(data); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped and variables already set are kept.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if c.General.DataDir == "" {
		return errors.New("general.data_dir must be set")
	}
	if _, err := logging.ParseLevel(c.General.LogLevel); err != nil {
		return fmt.Errorf("general.log_level: %w", err)
	}
	switch c.General.LogFormat {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("general.log_format must be %q or %q", logging.FormatText, logging.FormatJSON)
	}
	if c.Ledger.StatusCacheSize <= 0 {
		return errors.New("ledger.status_cache_size must be positive")
	}
	if c.Ledger.ComputeUnitLimit == 0 {
		return errors.New("ledger.compute_unit_limit must be positive")
	}
	if c.Ledger.SlotDuration <= 0 {
		return errors.New("ledger.slot_duration must be positive")
	}
	if c.Ledger.HashesPerTick == 0 {
		return errors.New("ledger.hashes_per_tick must be positive")
	}
	if c.Program.ProgramID.IsZero() {
		return errors.New("program.program_id must be set")
	}
	if c.Program.MaxNameLen <= 0 || c.Program.MaxDescriptionLen <= 0 || c.Program.MaxEndpointLen <= 0 {
		return errors.New("program field limits must be positive")
	}
	if max := c.ProgramConfig().MaxRecordSize(); max > c.Ledger.MaxAccountDataSize {
		return fmt.Errorf("largest agent record (%d bytes) exceeds ledger.max_account_data_size (%d)", max, c.Ledger.MaxAccountDataSize)
	}
	if c.RPC.Enabled && c.RPC.Addr == "" {
		return errors.New("rpc.addr must be set when rpc is enabled")
	}
	if c.RPC.RateLimit.Enabled && (c.RPC.RateLimit.RPS <= 0 || c.RPC.RateLimit.Burst <= 0) {
		return errors.New("rpc.rate_limit rps and burst must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr must be set when metrics are enabled")
	}
	if c.Metrics.Enabled && (c.Metrics.HealthInterval <= 0 || c.Metrics.CollectInterval <= 0) {
		return errors.New("metrics intervals must be positive")
	}
	return nil
}

// InMemory reports whether state is kept in memory only.
func (c *Config) InMemory() bool {
	return c.General.DataDir == MemoryDataDir
}

// AccountsDir is where the account database lives.
func (c *Config) AccountsDir() string {
	return filepath.Join(c.General.DataDir, "accounts")
}

// SnapshotPath is where shutdown snapshots are written.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.General.DataDir, "snapshots", "latest.snapshot")
}

// FaucetKeypairPath resolves the faucet key file.
func (c *Config) FaucetKeypairPath() string {
	if c.Faucet.Keypair != "" {
		return c.Faucet.Keypair
	}
	return filepath.Join(c.General.DataDir, "faucet.json")
}

// ProgramConfig converts the program section.
func (c *Config) ProgramConfig() agentmarket.Config {
	return agentmarket.Config{
		ProgramID:         c.Program.ProgramID,
		MaxNameLen:        c.Program.MaxNameLen,
		MaxDescriptionLen: c.Program.MaxDescriptionLen,
		MaxEndpointLen:    c.Program.MaxEndpointLen,
		MinPrice:          c.Program.MinPrice,
	}
}

// LedgerOptions converts the ledger, rent and faucet sections. The faucet
// keypair and the recorder are left for the caller to set.
func (c *Config) LedgerOptions(log zerolog.Logger) ledger.Options {
	opts := ledger.DefaultOptions()
	opts.FeePerSignature = types.Lamports(c.Ledger.FeePerSignature)
	opts.VerifySignatures = c.Ledger.VerifySignatures
	opts.StatusCacheSize = c.Ledger.StatusCacheSize
	opts.ComputeUnitLimit = types.ComputeUnits(c.Ledger.ComputeUnitLimit)
	opts.MaxAccountDataSize = c.Ledger.MaxAccountDataSize
	opts.SlotDuration = c.Ledger.SlotDuration
	opts.HashesPerTick = c.Ledger.HashesPerTick
	opts.Rent = c.Rent
	opts.FaucetLamports = types.Lamports(c.Faucet.InitialLamports)
	opts.MaxAirdrop = types.Lamports(c.Faucet.MaxAirdrop)
	opts.Logger = log
	return opts
}

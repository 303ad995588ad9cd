// agentmarketd runs an agent marketplace node: the ledger with the
// marketplace and system programs, the JSON-RPC server and the Prometheus
// metrics server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortiblox/x1-agentmarket/pkg/accounts"
	"github.com/fortiblox/x1-agentmarket/pkg/config"
	"github.com/fortiblox/x1-agentmarket/pkg/crypto"
	"github.com/fortiblox/x1-agentmarket/pkg/ledger"
	"github.com/fortiblox/x1-agentmarket/pkg/logging"
	"github.com/fortiblox/x1-agentmarket/pkg/metrics"
	"github.com/fortiblox/x1-agentmarket/pkg/rpc"
	"github.com/fortiblox/x1-agentmarket/pkg/snapshot"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildTime = "unknown"
)

// Configuration flags
var (
	configFile         = flag.String("config", "", "Path to YAML configuration file (default <data-dir>/config.yaml)")
	envFile            = flag.String("env-file", ".env", "Path to .env file with AGENTMARKET_* variables")
	dataDir            = flag.String("data-dir", "", "Data directory for accounts and snapshots (\":memory:\" keeps state in memory)")
	logLevel           = flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat          = flag.String("log-format", "", "Log format: text, json")
	rpcAddr            = flag.String("rpc-addr", "", "RPC server listen address")
	enableRPC          = flag.Bool("enable-rpc", false, "Enable JSON-RPC server")
	enableMetrics      = flag.Bool("enable-metrics", false, "Enable Prometheus metrics server")
	metricsAddr        = flag.String("metrics-addr", "", "Metrics server listen address")
	enableFaucet       = flag.Bool("enable-faucet", false, "Enable requestAirdrop")
	faucetKeypair      = flag.String("faucet-keypair", "", "Faucet key file (created when missing)")
	slotDuration       = flag.Duration("slot-duration", 0, "Time between sealed slots")
	skipSigVerify      = flag.Bool("skip-sig-verify", false, "Skip signature verification (unsafe)")
	genesisSnapshot    = flag.String("genesis-snapshot", "", "Snapshot to load into an empty account store")
	snapshotOnShutdown = flag.Bool("snapshot-on-shutdown", false, "Write a snapshot when stopping")
	showVersion        = flag.Bool("version", false, "Print version and exit")
	showStats          = flag.Bool("stats", false, "Log statistics periodically")
	printConfig        = flag.Bool("print-config", false, "Print the effective configuration and exit")
)

// applyConfigWithCLIOverrides lets explicitly set CLI flags override values
// from the config file and environment.
func applyConfigWithCLIOverrides(cfg *config.Config) {
	flagSet := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		flagSet[f.Name] = true
	})

	if flagSet["data-dir"] {
		cfg.General.DataDir = *dataDir
	}
	if flagSet["log-level"] {
		cfg.General.LogLevel = *logLevel
	}
	if flagSet["log-format"] {
		cfg.General.LogFormat = *logFormat
	}

	if flagSet["enable-rpc"] {
		cfg.RPC.Enabled = *enableRPC
	}
	if flagSet["rpc-addr"] {
		cfg.RPC.Addr = *rpcAddr
	}

	if flagSet["enable-metrics"] {
		cfg.Metrics.Enabled = *enableMetrics
	}
	if flagSet["metrics-addr"] {
		cfg.Metrics.Addr = *metricsAddr
	}

	if flagSet["enable-faucet"] {
		cfg.Faucet.Enabled = *enableFaucet
	}
	if flagSet["faucet-keypair"] {
		cfg.Faucet.Keypair = *faucetKeypair
	}

	// Config uses a positive flag, CLI uses a skip flag.
	if flagSet["skip-sig-verify"] {
		cfg.Ledger.VerifySignatures = !*skipSigVerify
	}
	if flagSet["slot-duration"] {
		cfg.Ledger.SlotDuration = *slotDuration
	}
	if flagSet["genesis-snapshot"] {
		cfg.Ledger.GenesisSnapshot = *genesisSnapshot
	}
	if flagSet["snapshot-on-shutdown"] {
		cfg.Ledger.SnapshotOnShutdown = *snapshotOnShutdown
	}
}

// loadConfig resolves the config file path, loads it with the .env file and
// environment, then applies CLI flags.
func loadConfig() (*config.Config, error) {
	path := *configFile
	if path == "" {
		dir := *dataDir
		if dir == "" {
			dir = config.Default().General.DataDir
		}
		if dir != config.MemoryDataDir {
			path = filepath.Join(dir, "config.yaml")
		}
	}

	cfg, err := config.Load(path, *envFile)
	if err != nil {
		return nil, err
	}
	applyConfigWithCLIOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("agentmarketd %s (%s)\n", Version, GitCommit)
		fmt.Printf("Build time: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render configuration: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		os.Exit(0)
	}

	log, err := logging.New(cfg.General.LogLevel, cfg.General.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("agentmarketd stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("version", Version).
		Str("commit", GitCommit).
		Str("data_dir", cfg.General.DataDir).
		Msg("starting agentmarketd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	db, sizer, err := openAccounts(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	startSlot, err := restoreState(cfg, db, log)
	if err != nil {
		return err
	}

	market := agentmarket.New(cfg.ProgramConfig())
	registry := ledger.NewProgramRegistry()
	ledger.RegisterNativePrograms(registry, market)

	opts := cfg.LedgerOptions(log)
	opts.StartSlot = startSlot
	if cfg.Faucet.Enabled {
		faucet, err := loadFaucet(cfg, log)
		if err != nil {
			return err
		}
		opts.Faucet = faucet
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
		opts.Recorder = m
	}

	l, err := ledger.New(db, registry, opts)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	log.Info().
		Str("program_id", market.ProgramID().String()).
		Bool("verify_signatures", cfg.Ledger.VerifySignatures).
		Uint64("fee_per_signature", cfg.Ledger.FeePerSignature).
		Dur("slot_duration", cfg.Ledger.SlotDuration).
		Bool("faucet", opts.Faucet != nil).
		Msg("configuration")
	for _, p := range l.Programs().ListPrograms() {
		log.Debug().Str("program_id", p.ID.String()).Str("name", p.Name).Msg("native program registered")
	}

	ledgerDone := make(chan error, 1)
	go func() {
		ledgerDone <- l.Run(ctx)
	}()

	var health *metrics.HealthChecker
	var metricsServer *metrics.Server
	var collector *metrics.LedgerCollector
	if m != nil {
		health = metrics.NewHealthChecker(l,
			metrics.WithMaxSlotAge(maxSlotAge(cfg.Ledger.SlotDuration)),
			metrics.WithHealthCheckInterval(cfg.Metrics.HealthInterval),
		)
		health.Start(ctx)

		collector = metrics.NewLedgerCollector(m, l, market.ProgramID(), sizer, cfg.Metrics.CollectInterval, log)
		collector.Start(ctx)

		metricsServer = metrics.NewServer(m,
			metrics.WithAddr(cfg.Metrics.Addr),
			metrics.WithHealthChecker(health),
			metrics.WithLogger(log),
		)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	rpcDone := make(chan error, 1)
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcCfg := rpc.DefaultServerConfig()
		rpcCfg.Address = cfg.RPC.Addr
		rpcCfg.AllowedOrigins = cfg.RPC.AllowedOrigins
		rpcCfg.MaxRequestSize = cfg.RPC.MaxRequestSize
		rpcCfg.EnableRateLimit = cfg.RPC.RateLimit.Enabled
		rpcCfg.RateLimitRPS = cfg.RPC.RateLimit.RPS
		rpcCfg.RateLimitBurst = cfg.RPC.RateLimit.Burst
		rpcCfg.Version = Version
		rpcCfg.Logger = log
		if m != nil {
			rpcCfg.Observer = m
		}
		rpcServer = rpc.NewServer(rpcCfg, rpc.NewHandlers(l, market, Version))
		go func() {
			rpcDone <- rpcServer.Start(ctx)
		}()
	}

	if health != nil {
		health.SetReady(true)
	}

	if *showStats {
		go logStats(ctx, l, market.ProgramID(), log)
	}

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-rpcDone:
		if err != nil {
			log.Error().Err(err).Msg("rpc server failed")
		}
	case err := <-ledgerDone:
		if err != nil {
			log.Error().Err(err).Msg("ledger stopped")
		}
	}

	if health != nil {
		health.SetReady(false)
	}
	if rpcServer != nil {
		if err := rpcServer.Stop(); err != nil {
			log.Warn().Err(err).Msg("error stopping rpc server")
		}
	}
	cancel()
	l.Close()

	if collector != nil {
		collector.Stop()
	}
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("error stopping metrics server")
		}
		shutdownCancel()
	}

	if cfg.Ledger.SnapshotOnShutdown && !cfg.InMemory() {
		blockhash, _ := l.LatestBlockhash()
		state := snapshot.State{Slot: l.Slot(), Blockhash: blockhash}
		if _, err := snapshot.Save(cfg.SnapshotPath(), db, state, log); err != nil {
			log.Error().Err(err).Msg("failed to write shutdown snapshot")
		}
	}

	log.Info().
		Uint64("slot", uint64(l.Slot())).
		Uint64("accounts", l.AccountsCount()).
		Msg("agentmarketd stopped gracefully")
	return nil
}

// openAccounts opens the account store. The returned sizer is nil for the
// in-memory store.
func openAccounts(cfg *config.Config, log zerolog.Logger) (accounts.AccountsDB, metrics.DBSizer, error) {
	if cfg.InMemory() {
		log.Info().Msg("using in-memory account store")
		return accounts.NewMemoryDB(), nil, nil
	}

	dbPath := cfg.AccountsDir()
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := accounts.NewBadgerDB(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open accounts database: %w", err)
	}
	log.Info().Str("path", dbPath).Uint64("accounts", db.GetAccountsCount()).Msg("opened account store")
	return db, db, nil
}

// restoreState seeds an empty store from the genesis snapshot, or from the
// last shutdown snapshot, and returns the slot to resume at. A populated
// store resumes at the shutdown snapshot's slot when its state still matches.
func restoreState(cfg *config.Config, db accounts.AccountsDB, log zerolog.Logger) (types.Slot, error) {
	latest := cfg.SnapshotPath()

	if db.GetAccountsCount() == 0 {
		path := cfg.Ledger.GenesisSnapshot
		if path == "" && !cfg.InMemory() && snapshot.Exists(latest) {
			path = latest
		}
		if path == "" {
			return 0, nil
		}
		m, err := snapshot.Load(path, db, log)
		if err != nil {
			return 0, fmt.Errorf("failed to load snapshot %s: %w", path, err)
		}
		return m.Slot, nil
	}

	if cfg.InMemory() || !snapshot.Exists(latest) {
		return 0, nil
	}
	m, err := snapshot.ReadManifest(latest)
	if err != nil {
		log.Warn().Err(err).Str("path", latest).Msg("ignoring unreadable shutdown snapshot")
		return 0, nil
	}
	hash, err := accounts.AccountsHash(db)
	if err != nil {
		return 0, fmt.Errorf("failed to hash account store: %w", err)
	}
	if hash != m.AccountsHash {
		log.Warn().
			Str("snapshot_hash", m.AccountsHash.String()).
			Str("store_hash", hash.String()).
			Msg("account store diverged from shutdown snapshot, starting at slot 0")
		return 0, nil
	}
	return m.Slot, nil
}

// loadFaucet reads the faucet key, creating it on first start. In-memory
// nodes without a configured key file get a throwaway key.
func loadFaucet(cfg *config.Config, log zerolog.Logger) (*crypto.Keypair, error) {
	if cfg.InMemory() && cfg.Faucet.Keypair == "" {
		return crypto.GenerateKeypair()
	}

	path := cfg.FaucetKeypairPath()
	kp, err := crypto.LoadKeypairFile(path)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load faucet keypair: %w", err)
	}

	kp, err = crypto.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create faucet key directory: %w", err)
	}
	if err := crypto.SaveKeypairFile(path, kp); err != nil {
		return nil, fmt.Errorf("failed to save faucet keypair: %w", err)
	}
	log.Info().Str("path", path).Str("pubkey", kp.Pubkey().String()).Msg("created faucet keypair")
	return kp, nil
}

func maxSlotAge(slotDuration time.Duration) time.Duration {
	if age := 50 * slotDuration; age > 30*time.Second {
		return age
	}
	return 30 * time.Second
}

func logStats(ctx context.Context, l *ledger.Ledger, program types.Pubkey, log zerolog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			agents, err := l.ProgramAccounts(program)
			if err != nil {
				log.Warn().Err(err).Msg("failed to count agents")
			}
			log.Info().
				Dur("uptime", time.Since(start).Round(time.Second)).
				Uint64("slot", uint64(l.Slot())).
				Uint64("accounts", l.AccountsCount()).
				Int("agents", len(agents)).
				Msg("statistics")
		}
	}
}

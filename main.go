// Carbon-Axelar Relayer bridges pending actions on the Carbon Hub to
// execute() calls on destination EVM chains via the Axelar GMP gateway
// (see SPEC_FULL.md). The command surface and the raw flag.FlagSet dispatch
// below are grounded in original_source/src/main.rs's clap Cli/Commands
// shape, re-expressed without a CLI framework dependency since none is
// present anywhere in the teacher's own stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/backfill"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/broadcaster"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/config"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/evmclient"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/evmpipeline"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/feepolicy"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/hubclient"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/hubpipeline"
	"github.com/switcheo-labs/carbon-axelar-relayer/pkg/store"
)

// verboseCount implements flag.Value as a repeatable boolean counter,
// matching clap's `action = ArgAction::Count` for --verbose in
// original_source/src/main.rs.
type verboseCount int

func (v *verboseCount) String() string { return strconv.Itoa(int(*v)) }
func (v *verboseCount) Set(string) error {
	*v++
	return nil
}
func (v *verboseCount) IsBoolFlag() bool { return true }

func main() {
	globalFlags := flag.NewFlagSet("carbon-axelar-relayer", flag.ExitOnError)
	configPath := globalFlags.String("config", "config.toml", "path to the TOML configuration document")
	var verbose verboseCount
	globalFlags.Var(&verbose, "verbose", "repeatable: once warn, twice info, three times debug, four or more trace")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if err := globalFlags.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	args := globalFlags.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	command, rest := args[0], args[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %q: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg.Verbosity = int(verbose)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	switch command {
	case "run":
		runCommand(cfg)
	case "sync-from":
		syncFromCommand(cfg, rest)
	case "sync":
		syncCommand(rest)
	case "start-relay":
		startRelayCommand(cfg, rest)
	case "expire-pending-actions":
		expirePendingActionsCommand(cfg, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Carbon-Axelar Relayer

Usage:
  carbon-axelar-relayer [--config path] [--verbose...] <command> [args]

Commands:
  run                                        start all pipelines
  sync-from <start_height> <end_height>      Hub-range backfill
  sync <tx_hash>                             per-tx backfill (placeholder)
  start-relay <nonce>                        one-shot MsgStartRelay
  expire-pending-actions <nonces,...>        one-shot MsgPruneExpiredPendingActions`)
}

// deriveHubClient builds the signing key and REST/RPC client shared by every
// command that touches the Hub.
func deriveHubClient(cfg *config.Config) (*hubclient.Client, *hubclient.SigningKey, error) {
	key, err := hubclient.DeriveSigningKey(cfg.Carbon.RelayerMnemonic, cfg.Carbon.AccountPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive relayer signing key: %w", err)
	}
	hub := hubclient.NewClient(cfg.Carbon.RestURL, cfg.Carbon.RPCURL, cfg.Carbon.ChainID, key,
		cfg.Carbon.BaseGas, cfg.Carbon.TxFeeAmount, cfg.Carbon.TxFeeDenom)
	return hub, key, nil
}

// blockchainID is the string key this relayer uses to correlate a
// PendingAction's connection_id chain_id segment, an ApprovedCall's
// blockchain column, and one evm_chain[] config entry. Operators are
// expected to set evm_chain[].chain_id to the same numeric id the Hub uses
// in its connection_id strings (see DESIGN.md Open Questions).
func blockchainID(chain config.EvmChain) string {
	return strconv.FormatInt(chain.ChainID, 10)
}

// runCommand wires and starts every long-lived task: the Hub WS
// subscriptions, the Hub retry/expire loop, one listener+backfiller+worker
// triple per EVM chain, the approved-call poll loop, and the health/metrics
// HTTP server (spec §5, §6).
func runCommand(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewClient(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to event store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.MigrateUp(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply migrations: %v\n", err)
		os.Exit(1)
	}

	hub, _, err := deriveHubClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	fees, err := feepolicy.New(cfg.Fee)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build fee policy: %v\n", err)
		os.Exit(1)
	}

	hubBroadcaster := broadcaster.New(hub, 100)
	go hubBroadcaster.Run(ctx)

	hubPipeline := hubpipeline.New(db, hub, hubBroadcaster, fees, cfg.Carbon.MaximumStartRelayRetryCount)

	sub := hubclient.NewSubscriber(cfg.Carbon.WsURL)
	hubPipeline.RegisterSubscriptions(sub, cfg.Carbon.AxelarBridgeID)
	go sub.Run(ctx)
	go hubPipeline.RunRetryExpireLoop(ctx)

	evmWorkers := map[string]*evmpipeline.ChainWorker{}
	backfillChains := map[string]backfill.ChainBackfiller{}

	for _, chainCfg := range cfg.EvmChain {
		blockchain := blockchainID(chainCfg)

		client, err := evmclient.NewClient(evmclient.Config{
			RPCURL:            chainCfg.RPCURL,
			WsURL:             chainCfg.WsURL,
			HasWs:             chainCfg.HasWs,
			ChainID:           chainCfg.ChainID,
			RelayerPrivateKey: chainCfg.RelayerPrivateKey,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build EVM client for chain_id=%d: %v\n", chainCfg.ChainID, err)
			os.Exit(1)
		}

		gateway := common.HexToAddress(chainCfg.AxelarGatewayProxy)
		destination := common.HexToAddress(chainCfg.CarbonAxelarGateway)

		ingestor := evmpipeline.NewIngestor(blockchain, db)

		if client.HasWs() {
			listener := evmclient.NewListener(client, gateway, destination, ingestor.Handle)
			go listener.Run(ctx)
		}

		backfiller := evmclient.NewBackfiller(client, gateway, destination, chainCfg.MaxQueryBlocks)
		go runEvmBackfillLoop(ctx, backfiller, ingestor, chainCfg.BackfillPollFrequency)

		worker := evmpipeline.NewChainWorker(blockchain, client, gateway, destination, db, 100)
		go worker.Run(ctx)

		evmWorkers[blockchain] = worker
		backfillChains[blockchain] = backfill.ChainBackfiller{ChainID: blockchain, Backfiller: backfiller, Ingestor: ingestor}
	}

	evmPipeline := evmpipeline.New(db, evmWorkers)
	go evmPipeline.RunPollLoop(ctx)

	resyncer := backfill.New(db, hub, backfillChains)
	resyncer.ColdStart(ctx)

	serveHealthAndMetrics(ctx, db)

	<-ctx.Done()
}

// runEvmBackfillLoop ticks ScanLatest on the configured per-chain interval
// (default 300s, spec §4.3), independent of any live-subscription state.
func runEvmBackfillLoop(ctx context.Context, backfiller *evmclient.Backfiller, ingestor *evmpipeline.Ingestor, interval time.Duration) {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := backfiller.ScanLatest(ctx, ingestor.Handle); err != nil {
				fmt.Fprintf(os.Stderr, "evm backfill tick failed: %v\n", err)
			}
		}
	}
}

// serveHealthAndMetrics starts the /health and /metrics HTTP endpoints on a
// background goroutine. Process-level graceful shutdown only bounds this
// server; the pipelines themselves run for the process lifetime (spec §5
// EXPANSION).
func serveHealthAndMetrics(ctx context.Context, db *store.Client) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"error","database":"disconnected"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","database":"connected"}`)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "health/metrics server error: %v\n", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
}

// syncFromCommand implements `sync-from START END` (spec §6, §4.8).
func syncFromCommand(cfg *config.Config, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: sync-from <start_height> <end_height>")
		os.Exit(1)
	}
	start, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid start_height %q: %v\n", args[0], err)
		os.Exit(1)
	}
	end, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid end_height %q: %v\n", args[1], err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := store.NewClient(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to event store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.MigrateUp(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply migrations: %v\n", err)
		os.Exit(1)
	}

	hub, _, err := deriveHubClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	backfillChains := map[string]backfill.ChainBackfiller{}
	for _, chainCfg := range cfg.EvmChain {
		blockchain := blockchainID(chainCfg)
		client, err := evmclient.NewClient(evmclient.Config{
			RPCURL:            chainCfg.RPCURL,
			WsURL:             chainCfg.WsURL,
			HasWs:             chainCfg.HasWs,
			ChainID:           chainCfg.ChainID,
			RelayerPrivateKey: chainCfg.RelayerPrivateKey,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build EVM client for chain_id=%d: %v\n", chainCfg.ChainID, err)
			os.Exit(1)
		}
		gateway := common.HexToAddress(chainCfg.AxelarGatewayProxy)
		destination := common.HexToAddress(chainCfg.CarbonAxelarGateway)
		backfiller := evmclient.NewBackfiller(client, gateway, destination, chainCfg.MaxQueryBlocks)
		ingestor := evmpipeline.NewIngestor(blockchain, db)
		backfillChains[blockchain] = backfill.ChainBackfiller{ChainID: blockchain, Backfiller: backfiller, Ingestor: ingestor}
	}

	resyncer := backfill.New(db, hub, backfillChains)
	if err := resyncer.SyncBlockRange(ctx, cfg.Carbon.AxelarBridgeID, start, end); err != nil {
		fmt.Fprintf(os.Stderr, "sync-from failed: %v\n", err)
		os.Exit(1)
	}
}

// syncCommand implements `sync <tx_hash>`, a documented placeholder matching
// original_source/src/main.rs's own NYI stub for Commands::Sync — logged,
// not silently ignored (spec §4.8, §9 Open Questions).
func syncCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: sync <tx_hash>")
		os.Exit(1)
	}
	fmt.Printf("sync <tx_hash> is not yet implemented, input: %s\n", args[0])
}

// startRelayCommand implements `start-relay <nonce>`: a direct one-shot
// Cosmos tx build reusing the Hub client's signing path, bypassing the C4
// mailbox entirely (spec §4.8 EXPANSION, matching
// original_source/src/main.rs's direct carbon_tx::send_msg_start_relay
// call outside any channel).
func startRelayCommand(cfg *config.Config, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: start-relay <nonce>")
		os.Exit(1)
	}
	nonce, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid nonce %q: %v\n", args[0], err)
		os.Exit(1)
	}

	hub, _, err := deriveHubClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := hub.StartRelay(context.Background(), nonce); err != nil {
		fmt.Fprintf(os.Stderr, "start-relay failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("start-relay submitted for nonce=%d\n", nonce)
}

// expirePendingActionsCommand implements `expire-pending-actions
// <nonces...>` (comma-delimited), same direct-dispatch shape as start-relay.
func expirePendingActionsCommand(cfg *config.Config, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: expire-pending-actions <nonce,nonce,...>")
		os.Exit(1)
	}

	var nonces []int64
	for _, part := range strings.Split(args[0], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid nonce %q: %v\n", part, err)
			os.Exit(1)
		}
		nonces = append(nonces, n)
	}
	if len(nonces) == 0 {
		fmt.Fprintln(os.Stderr, "no nonces given")
		os.Exit(1)
	}

	hub, _, err := deriveHubClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := hub.PruneExpiredPendingActions(context.Background(), nonces); err != nil {
		fmt.Fprintf(os.Stderr, "expire-pending-actions failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("expire-pending-actions submitted for %d nonces\n", len(nonces))
}

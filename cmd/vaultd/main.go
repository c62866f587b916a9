package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantvault/config"
	"tenantvault/core/epoch"
	"tenantvault/core/events"
	"tenantvault/native/rewards"
	"tenantvault/native/vault"
	"tenantvault/observability"
	"tenantvault/observability/logging"
	"tenantvault/state"
	"tenantvault/storage"
)

// pauseSet freezes the configured module pauses for the process lifetime.
type pauseSet map[string]struct{}

func newPauseSet(modules []string) pauseSet {
	set := make(pauseSet, len(modules))
	for _, module := range modules {
		module = strings.TrimSpace(module)
		if module != "" {
			set[module] = struct{}{}
		}
	}
	return set
}

func (p pauseSet) IsPaused(module string) bool {
	_, ok := p[module]
	return ok
}

// slogEmitter logs every engine event at debug level.
type slogEmitter struct {
	logger *slog.Logger
}

func (e slogEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	e.logger.Debug("engine event", "type", evt.EventType(), "event", evt)
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "vault.toml", "path to vaultd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VAULT_ENV"))
	logger := logging.Setup("vaultd", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		log.Fatalf("validate config: %v", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("open state database at %s: %v", cfg.DataDir, err)
	}
	defer db.Close()

	vaultState := state.NewVaultState(db)
	rewardState := state.NewRewardState(db)
	registry := state.NewRegistry(db)
	mirror := state.NewPositionMirror(db)
	funding := state.NewReserveFunding(vaultState)

	pauses := newPauseSet(cfg.PausedModules)
	emitter := observability.MetricsEmitter{Next: slogEmitter{logger: logger}}

	epochManager, err := epoch.NewManager(epoch.DefaultConfig(), db)
	if err != nil {
		log.Fatalf("init epoch manager: %v", err)
	}

	vaultEngine := vault.NewEngine(mirror, registry)
	vaultEngine.SetState(vaultState)
	vaultEngine.SetEpochManager(epochManager)
	vaultEngine.SetEmitter(emitter)
	vaultEngine.SetPauses(pauses)
	if cfg.MaxBatchSize > 0 {
		vaultEngine.SetMaxBatchSize(cfg.MaxBatchSize)
	}

	rewardsEngine := rewards.NewEngine(funding)
	rewardsEngine.SetState(rewardState)
	rewardsEngine.SetEmitter(emitter)
	rewardsEngine.SetPauses(pauses)

	if authority := cfg.Authority(); authority != (common.Address{}) {
		current, err := rewardState.Authority()
		if err != nil {
			log.Fatalf("read authority: %v", err)
		}
		if current == (common.Address{}) {
			if err := rewardState.SetAuthority(authority); err != nil {
				log.Fatalf("set authority: %v", err)
			}
			logger.Info("configured claim authority", "authority", authority.Hex())
		} else if current != authority {
			logger.Warn("configured authority differs from state; rotate through the rewards engine",
				"configured", authority.Hex(), "state", current.Hex())
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.ListenAddress, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AccrualIntervalSecs > 0 {
		interval := time.Duration(cfg.AccrualIntervalSecs) * time.Second
		go accrualLoop(ctx, logger, vaultEngine, vaultState, interval)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening", "address", cfg.ListenAddress)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}
}

// accrualLoop periodically refreshes the global index and accrues yield for
// every known tenant.
func accrualLoop(ctx context.Context, logger *slog.Logger, engine *vault.Engine, vaultState *state.VaultState, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runAccrualSweep(logger, engine, vaultState)
		}
	}
}

func runAccrualSweep(logger *slog.Logger, engine *vault.Engine, vaultState *state.VaultState) {
	metrics := observability.EngineMetrics()

	start := time.Now()
	index, err := engine.RefreshGlobalIndex()
	metrics.Observe("vault", "refresh_index", err, time.Since(start))
	if err != nil {
		logger.Error("refresh global index", "error", err)
		return
	}
	value, _ := new(big.Float).SetInt(index).Float64()
	metrics.SetGlobalIndex(value)

	tenants, err := vaultState.Tenants()
	if err != nil {
		logger.Error("list tenants", "error", err)
		return
	}
	for _, tenant := range tenants {
		start := time.Now()
		accrued, err := engine.AccrueTenantYield(tenant)
		metrics.Observe("vault", "accrue_yield", err, time.Since(start))
		if err != nil {
			logger.Error("accrue tenant yield", "tenant", tenant.Hex(), "error", err)
			continue
		}
		if accrued.Sign() > 0 {
			logger.Info("accrued tenant yield", "tenant", tenant.Hex(), "amount", accrued.String())
		}
	}
}

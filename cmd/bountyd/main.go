package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"bountyledger/config"
	"bountyledger/core/types"
	"bountyledger/native/bounty"
	"bountyledger/observability/logging"
	"bountyledger/observability/metrics"
	"bountyledger/rpc"
	"bountyledger/runtime"
	"bountyledger/storage"
)

// logEmitter forwards engine events to the structured logger.
type logEmitter struct {
	log *slog.Logger
}

func (e logEmitter) Emit(evt bounty.Event) {
	attrs := make([]any, 0, len(evt.Attributes)*2)
	for k, v := range evt.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	e.log.Info(evt.Type, attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("BOUNTY_ENV"))
	logger := logging.Setup("bountyd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	bootstrap, err := cfg.ParseBootstrapAuthority()
	if err != nil {
		logger.Error("Invalid bootstrap authority", slog.Any("error", err))
		os.Exit(1)
	}
	trusted, err := cfg.ParseTrustedAuthority()
	if err != nil {
		logger.Error("Invalid trusted authority", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	rt := runtime.NewLocal(db, bootstrap)
	engine := bounty.NewEngine()
	engine.SetEmitter(logEmitter{log: logger})

	if err := ensureInitialized(rt, engine, trusted); err != nil {
		logger.Error("Failed to initialize ledger", slog.Any("error", err))
		os.Exit(1)
	}

	var m *metrics.BountyMetrics
	if cfg.MetricsEnabled {
		m = metrics.Bounty()
	}

	server := rpc.NewServer(rt, engine, logger, m)
	logger.Info("bountyd listening",
		slog.String("address", cfg.ListenAddress),
		slog.String("dataDir", cfg.DataDir),
		slog.String("trustedAuthority", trusted.Hex()),
	)
	if err := http.ListenAndServe(cfg.ListenAddress, server.Handler()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// ensureInitialized runs the initialize operation on first boot, when the
// store has no published state root yet.
func ensureInitialized(rt *runtime.Local, engine *bounty.Engine, trusted types.Address) error {
	initialized, err := rt.Initialized()
	if err != nil {
		return err
	}
	if initialized {
		return nil
	}
	params, err := bounty.EncodeInitializeParams(trusted)
	if err != nil {
		return err
	}
	_, err = rt.Invoke(rt.BootstrapAuthority(), nil, func(r runtime.Runtime) ([]byte, error) {
		return engine.Dispatch(r, bounty.MethodInitialize, params)
	})
	return err
}

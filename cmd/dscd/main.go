package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dhanesh24g/foundry-defi-stablecoin/config"
	"github.com/dhanesh24g/foundry-defi-stablecoin/gateway"
	"github.com/dhanesh24g/foundry-defi-stablecoin/native/dsc"
	"github.com/dhanesh24g/foundry-defi-stablecoin/observability"
	"github.com/dhanesh24g/foundry-defi-stablecoin/observability/logging"
	"github.com/dhanesh24g/foundry-defi-stablecoin/storage"
)

func main() {
	configPath := flag.String("config", "./dscd.toml", "Path to the daemon configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("dscd", cfg.Environment)

	var db storage.Database
	if cfg.DataDir == "" {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("open database", "err", err)
			os.Exit(1)
		}
		db = ldb
	}
	defer db.Close()

	feed := newSimFeed()
	for _, asset := range cfg.Assets {
		if asset.SimPrice == "" {
			continue
		}
		price, ok := new(big.Int).SetString(asset.SimPrice, 10)
		if !ok {
			logger.Error("invalid sim price", "asset", asset.Symbol, "price", asset.SimPrice)
			os.Exit(1)
		}
		feed.SetPrice(common.HexToAddress(asset.PriceFeed), price)
	}

	assets, feeds := cfg.AssetAddresses()
	engine, err := dsc.NewEngine(assets, feeds, feed, simVault{}, newSimToken())
	if err != nil {
		logger.Error("construct engine", "err", err)
		os.Exit(1)
	}
	engine.SetModuleAddress(common.HexToAddress(cfg.ModuleAddress))
	if age := cfg.PriceAge(); age > 0 {
		engine.SetMaxPriceAge(age)
	}
	engine.SetEmitter(observability.Engine().Emitter())

	if err := engine.Load(db); err != nil {
		logger.Error("restore ledger snapshot", "err", err)
		os.Exit(1)
	}

	handler := gateway.New(gateway.Config{
		Engine:  engine,
		Logger:  logger,
		Limiter: gateway.NewRateLimiter(50, 100),
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("dscd listening", "addr", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	if err := engine.Persist(db); err != nil {
		logger.Error("persist ledger snapshot", "err", err)
	}
}

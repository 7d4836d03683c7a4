// dscd is the DSC engine daemon: a collateral-backed stablecoin engine
// exposed over JSON-RPC, with Prometheus metrics and NATS event publishing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/log"
	"github.com/shopspring/decimal"

	"github.com/luxfi/dsc/pkg/api"
	"github.com/luxfi/dsc/pkg/dsc"
	"github.com/luxfi/dsc/pkg/events"
	"github.com/luxfi/dsc/pkg/feed"
	"github.com/luxfi/dsc/pkg/metrics"
)

const engineID = "dsc-engine"

// Config holds the daemon flags.
type Config struct {
	RPCPort     int
	MetricsPort int
	NATSURL     string
	FeedURL     string
	AssetsPath  string
	LogLevel    string
}

// assetSpec is one entry of the assets config file.
type assetSpec struct {
	Symbol         string `json:"symbol"`
	Decimals       uint8  `json:"decimals"`
	OracleDecimals uint8  `json:"oracleDecimals"`
	StaleAfterSec  int64  `json:"staleAfterSec"`
	MinPrice       string `json:"minPrice,omitempty"`
	MaxPrice       string `json:"maxPrice,omitempty"`
	BonusBps       uint64 `json:"bonusBps,omitempty"`

	// DemoPrice seeds a local price when no feed URL is configured.
	DemoPrice string `json:"demoPrice,omitempty"`
}

type assetsFile struct {
	Assets []assetSpec `json:"assets"`
}

func parseFlags() *Config {
	config := &Config{}
	flag.IntVar(&config.RPCPort, "rpc-port", 8680, "JSON-RPC listen port")
	flag.IntVar(&config.MetricsPort, "metrics-port", 9680, "Prometheus metrics port")
	flag.StringVar(&config.NATSURL, "nats", "", "NATS server URL, empty disables eventing")
	flag.StringVar(&config.FeedURL, "feed", "", "websocket price feed URL, empty uses demo prices")
	flag.StringVar(&config.AssetsPath, "assets", "assets.json", "collateral asset config file")
	flag.StringVar(&config.LogLevel, "log-level", "info", "log level")
	flag.Parse()
	return config
}

// demoFeed serves a fixed price with a fresh timestamp so standalone runs
// never trip the staleness check.
type demoFeed struct {
	prices map[string]*big.Int
	round  uint64
}

func (f *demoFeed) LatestQuote(symbol string) (dsc.PriceQuote, error) {
	price, ok := f.prices[symbol]
	if !ok {
		return dsc.PriceQuote{}, fmt.Errorf("%w: %s", dsc.ErrNoQuote, symbol)
	}
	f.round++
	return dsc.PriceQuote{
		Symbol:    symbol,
		Price:     new(big.Int).Set(price),
		Timestamp: time.Now(),
		RoundID:   f.round,
	}, nil
}

func main() {
	config := parseFlags()

	level, _ := log.ToLevel(config.LogLevel)
	logger := log.NewTestLogger(level)
	logger.Info("starting dscd", "rpcPort", config.RPCPort)

	specs, err := loadAssets(config.AssetsPath)
	if err != nil {
		logger.Error("failed to load asset config", "path", config.AssetsPath, "error", err)
		os.Exit(1)
	}

	// State plumbing.
	store := dsc.NewStore(dsc.NewMemDB(), logger)
	oracle := dsc.NewOracleAdapter(logger, nil, 0)
	ledger := dsc.NewCollateralLedger(oracle, "dsc-vault")
	stable := dsc.NewStableToken("Decentralized Stable Coin", "DSC", engineID)
	engine := dsc.NewEngine(dsc.DefaultEngineConfig(), oracle, ledger, stable, engineID, logger)
	engine.SetStore(store)

	if err := engine.LoadState(); err != nil {
		logger.Error("failed to restore state", "error", err)
		os.Exit(1)
	}

	// Price source: websocket stream or per-asset demo prices.
	var priceFeed dsc.PriceFeed
	var wsFeed *feed.WSFeed
	if config.FeedURL != "" {
		wsFeed = feed.NewWSFeed(config.FeedURL, logger)
		if err := wsFeed.Start(); err != nil {
			logger.Error("failed to start price feed", "error", err)
			os.Exit(1)
		}
		priceFeed = wsFeed
	} else {
		demo := &demoFeed{prices: make(map[string]*big.Int)}
		for _, spec := range specs {
			if spec.DemoPrice == "" {
				continue
			}
			price, err := decimal.NewFromString(spec.DemoPrice)
			if err != nil {
				logger.Error("bad demo price", "symbol", spec.Symbol, "error", err)
				os.Exit(1)
			}
			demo.prices[spec.Symbol] = price.Shift(int32(spec.OracleDecimals)).Truncate(0).BigInt()
		}
		priceFeed = demo
		logger.Info("using demo price feed", "assets", len(demo.prices))
	}

	for _, spec := range specs {
		cfg := dsc.AssetConfig{
			Symbol:         spec.Symbol,
			Token:          dsc.NewSimpleToken(spec.Symbol),
			Feed:           priceFeed,
			Decimals:       spec.Decimals,
			OracleDecimals: spec.OracleDecimals,
			StaleAfter:     time.Duration(spec.StaleAfterSec) * time.Second,
			BonusBps:       spec.BonusBps,
		}
		if spec.MinPrice != "" {
			cfg.MinPrice, _ = new(big.Int).SetString(spec.MinPrice, 10)
		}
		if spec.MaxPrice != "" {
			cfg.MaxPrice, _ = new(big.Int).SetString(spec.MaxPrice, 10)
		}
		if err := engine.RegisterAsset(cfg); err != nil {
			logger.Error("failed to register asset", "symbol", spec.Symbol, "error", err)
			os.Exit(1)
		}
	}

	// Eventing.
	var publisher *events.NATSPublisher
	if config.NATSURL != "" {
		publisher, err = events.NewNATSPublisher(config.NATSURL, "dsc", logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		engine.SetPublisher(publisher)
	}

	// Metrics.
	m := metrics.New("dsc", logger)
	engine.SetRecorder(m)
	go func() {
		addr := fmt.Sprintf(":%d", config.MetricsPort)
		if err := m.Serve(addr); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	// JSON-RPC.
	rpc := api.NewJSONRPCServer(engine, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.RPCPort),
		Handler: rpc,
	}
	go func() {
		logger.Info("JSON-RPC listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("rpc server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("rpc shutdown failed", "error", err)
	}
	if wsFeed != nil {
		_ = wsFeed.Close()
	}
	if publisher != nil {
		publisher.Close()
	}
	if err := store.Close(); err != nil {
		logger.Warn("store close failed", "error", err)
	}
}

func loadAssets(path string) ([]assetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file assetsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Assets) == 0 {
		return nil, fmt.Errorf("%s: no assets configured", path)
	}
	return file.Assets, nil
}

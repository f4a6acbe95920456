package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/defistate/defistate-router-go/chains/ethereum"
	"github.com/defistate/defistate-router-go/cmd/client/config"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/pricefeed/coingecko"
	"github.com/defistate/defistate-router-go/swap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultBatchSize  = 100
	DefaultHeadBuffer = 16
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	prometheusRegistry := prometheus.DefaultRegisterer
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []ethereum.Option{ethereum.WithBatchSize(DefaultBatchSize)}
	if cfg.WSURL != "" {
		opts = append(opts, ethereum.WithHeadStream(cfg.WSURL), ethereum.WithHeadBuffer(DefaultHeadBuffer))
	}
	node, err := ethereum.Dial(ctx, cfg.RPCURL, rootLogger.With("component", "ethereum-client"), prometheusRegistry, opts...)
	if err != nil {
		rootLogger.Error("Failed to connect to node", "url", cfg.RPCURL, "error", err)
		close()
	}
	if node.ChainID() != cfg.ChainID {
		rootLogger.Error(fmt.Errorf("node serves chain %d, configuration expects %d", node.ChainID(), cfg.ChainID).Error())
		close()
	}

	settings, err := cfg.Settings()
	if err != nil {
		rootLogger.Error("Invalid trading settings", "error", err)
		close()
	}

	var priceFeed chains.FiatPriceFeed
	if cfg.GasAware {
		feed, err := coingecko.NewClient(coingecko.Config{
			BaseURL: cfg.CoinGeckoURL,
			APIKey:  cfg.CoinGeckoAPIKey,
			Logger:  rootLogger.With("component", "coingecko"),
		})
		if err != nil {
			rootLogger.Error("Failed to initialize price feed", "error", err)
			close()
		}
		priceFeed = feed
	}

	pair, err := swap.New(ctx, swap.Config{
		Caller:        node.Caller(),
		ChainID:       cfg.ChainID,
		Owner:         common.HexToAddress(cfg.Wallet),
		From:          common.HexToAddress(cfg.From),
		To:            common.HexToAddress(cfg.To),
		Settings:      settings,
		GasPrice:      node.Gas(),
		Estimator:     node.Gas(),
		PriceFeed:     priceFeed,
		Heads:         node.Heads(),
		WatchInterval: cfg.WatchInterval,
		Logger:        rootLogger.With("component", "swap"),
		Registry:      prometheusRegistry,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize pair", "from", cfg.From, "to", cfg.To, "error", err)
		close()
	}
	defer pair.Close()

	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, cfg.MetricsAddr, rootLogger.With("component", "metrics"))
	}

	updates := make(chan any)
	if cfg.Portfolio {
		err = watchPortfolio(ctx, pair, updates)
	} else {
		err = watchTrade(ctx, cfg, pair, updates)
	}
	if err != nil {
		rootLogger.Error("Failed to start watch", "error", err)
		return
	}

	encoder := json.NewEncoder(os.Stdout)
	for {
		select {
		case update := <-updates:
			if err := encoder.Encode(update); err != nil {
				rootLogger.Error("Failed to encode update", "error", err)
			}
		case err, ok := <-node.Err():
			if ok {
				rootLogger.Error("Fatal client error", "error", err)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// watchTrade prints the current trade and forwards every re-quote.
func watchTrade(ctx context.Context, cfg *config.ClientConfig, pair *swap.Pair, out chan<- any) error {
	amount, err := cfg.TradeAmount()
	if err != nil {
		return err
	}
	initial, sub, err := pair.WatchTrade(ctx, amount, engine.Direction(cfg.Direction))
	if err != nil {
		return err
	}
	go func() {
		forward(ctx, out, initial)
		for tc := range sub.C() {
			forward(ctx, out, tc)
		}
	}()
	return nil
}

// watchPortfolio prints every supplied position and forwards their updates.
func watchPortfolio(ctx context.Context, pair *swap.Pair, out chan<- any) error {
	positions, err := pair.WatchPortfolio(ctx)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		go func() {
			forward(ctx, out, pos.Liquidity)
			for update := range pos.Updates.C() {
				forward(ctx, out, update)
			}
		}()
	}
	return nil
}

func forward(ctx context.Context, out chan<- any, v any) {
	select {
	case out <- v:
	case <-ctx.Done():
	}
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("Serving metrics", "addr", addr)
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}

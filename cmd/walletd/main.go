package main

import (
	"context"
	"flag"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/totegamma/passkey-wallet/client"
	"github.com/totegamma/passkey-wallet/internal/config"
	"github.com/totegamma/passkey-wallet/internal/infra/cache"
	"github.com/totegamma/passkey-wallet/internal/infra/database"
	"github.com/totegamma/passkey-wallet/internal/infra/gateway"
	"github.com/totegamma/passkey-wallet/internal/infra/lock"
	"github.com/totegamma/passkey-wallet/internal/infra/repository"
	"github.com/totegamma/passkey-wallet/internal/present/rest"
	pwmiddleware "github.com/totegamma/passkey-wallet/internal/present/rest/middleware"
	"github.com/totegamma/passkey-wallet/internal/service"
	"github.com/totegamma/passkey-wallet/internal/telemetry"
	"github.com/totegamma/passkey-wallet/internal/usecase"
)

func main() {
	configPath := flag.String("config", os.Getenv("WALLET_CONFIG"), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.EnableTrace {
		shutdown, err := telemetry.Setup(ctx, "passkey-wallet", cfg.Server.TraceEndpoint)
		if err != nil {
			slog.Error("failed to setup tracing", slog.String("error", err.Error()))
		}
		defer shutdown(context.Background())
	}

	slog.Info("initializing wallet service",
		slog.String("clientUrl", cfg.Wallet.RedactedClientURL()),
		slog.String("chainName", cfg.Wallet.ChainName),
		slog.Bool("clientKeyExists", cfg.Wallet.ClientKey != ""),
	)

	registry, err := cfg.Wallet.CurrencyRegistry()
	if err != nil {
		slog.Error("invalid currency configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	relay := rest.NewCeremonyRelay(cfg.Wallet.CeremonyTimeout)

	var addressCache gateway.AddressCache = cache.NewMemoryAddressCache(cfg.Wallet.AddressCacheTTL)
	if cfg.Server.MemcachedAddr != "" {
		mc := database.NewMemcached(cfg.Server.MemcachedAddr)
		addressCache = cache.NewTiered(addressCache, cache.NewMemcachedAddressCache(mc, cfg.Wallet.AddressCacheTTL))
	}

	// Missing transport configuration leaves the collaborators nil; operations then fail with not_initialized.
	var transport usecase.PasskeyTransport
	var factory usecase.AccountFactory
	if cfg.Wallet.Configured() {
		passkeyClient, err := client.NewPasskeyClient(ctx, cfg.Wallet.ClientURL, cfg.Wallet.ClientKey)
		if err != nil {
			slog.Error("failed to create passkey client", slog.String("error", err.Error()))
		} else {
			defer passkeyClient.Close()
			transport = gateway.NewPasskeyGateway(passkeyClient, relay)
		}

		chainClient, err := client.New(ctx, cfg.Wallet.ChainEndpoint(), cfg.Wallet.ClientKey)
		if err != nil {
			slog.Error("failed to create chain client", slog.String("error", err.Error()))
		} else {
			defer chainClient.Close()
			chainID, err := chainClient.ChainID(ctx)
			if err != nil {
				slog.Error("failed to fetch chain id", slog.String("error", err.Error()))
			} else {
				factory = newChainGateway(chainClient, chainID, cfg.Wallet, addressCache, relay)
			}
		}
		slog.Info("wallet service initialized")
	} else {
		slog.Error("missing wallet configuration, check WALLET_CLIENT_URL, WALLET_CHAIN_NAME and WALLET_CLIENT_KEY")
	}

	var locker usecase.AccountLocker = lock.NewStriped(256)
	var notifier usecase.TransferNotifier
	var events rest.OperationEvents
	if cfg.Server.RedisAddr != "" {
		rdb := database.NewRedis(cfg.Server.RedisAddr, cfg.Server.RedisPassword, cfg.Server.RedisDB)
		if err := database.PingRedis(ctx, rdb); err != nil {
			slog.Error("failed to connect redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, cfg.Wallet.AccountLockTTL())
		signalService := service.NewSignalService(rdb)
		notifier = signalService
		events = signalService
	}

	var journal usecase.OperationJournal
	var wallets usecase.WalletDirectory
	if cfg.Server.PostgresDsn != "" {
		db, err := database.NewPostgres(cfg.Server.PostgresDsn)
		if err != nil {
			slog.Error("failed to connect database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := database.MigratePostgres(db); err != nil {
			slog.Error("failed to migrate database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		journal = repository.NewOperationRepository(db)
		wallets = repository.NewWalletRepository(db)
	}

	handler := rest.NewHandler(
		usecase.NewPasskeyUsecase(transport),
		usecase.NewAccountUsecase(factory),
		usecase.NewTransferUsecase(registry, locker, journal, notifier, usecase.TransferConfig{
			Sponsored:           cfg.Wallet.Sponsored,
			ConfirmationTimeout: cfg.Wallet.ConfirmationTimeout,
		}),
		wallets,
		gateway.NewPortfolioGateway(cfg.Wallet.PortfolioEndpoint, cfg.Wallet.PortfolioKey),
		events,
		relay,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("passkey-wallet"))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(pwmiddleware.CeremonySession)
	handler.RegisterRoutes(e)

	go func() {
		if err := e.Start(cfg.Server.Listen); err != nil {
			slog.Info("server stopped", slog.String("reason", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", slog.String("error", err.Error()))
	}
}

func newChainGateway(cl *client.Client, chainID *big.Int, w config.Wallet, addressCache gateway.AddressCache, relay *rest.CeremonyRelay) *gateway.ChainGateway {
	return gateway.NewChainGateway(cl, gateway.ChainConfig{
		Name:             w.ChainName,
		ChainID:          chainID,
		EntryPoint:       common.HexToAddress(w.EntryPoint),
		Factory:          common.HexToAddress(w.Factory),
		PollInterval:     w.PollInterval,
		PaymasterContext: w.PaymasterContext,
	}, addressCache, relay)
}

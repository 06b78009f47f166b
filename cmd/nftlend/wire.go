package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	"nftlend/cmd/internal/secret"
	"nftlend/config"
	"nftlend/contracts"
	"nftlend/gateway/middleware"
	"nftlend/gateway/routes"
	"nftlend/indexer"
	"nftlend/inventory"
	"nftlend/observability/logging"
	telemetry "nftlend/observability/otel"
	"nftlend/orchestrator"
	"nftlend/portfolio"
	"nftlend/position"
	"nftlend/refresh"
	"nftlend/wallet"
)

const apiKeyEnv = config.EnvPrefix + "_INDEXER_API_KEY"

// wireApp builds the production graph: node client, external signer, indexer
// client, loaders, store, syncer and orchestrator.
func wireApp(ctx context.Context, opts globalOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logOpts := logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File}
	if strings.TrimSpace(cfg.Logging.File) == "" {
		logOpts.Output = stderr
	}
	logger := logging.Setup("nftlend", cfg.Environment, logOpts)
	logger.Debug("configuration loaded", "config", cfg.Sanitized())

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "nftlend",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise telemetry: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("dial %s: %w", cfg.Chain.RPCURL, err)
	}
	closeAll := func(ctx context.Context) error {
		client.Close()
		return shutdownTelemetry(ctx)
	}
	if cfg.Chain.ChainID != 0 {
		if err := checkChainID(ctx, client, cfg.Chain.ChainID); err != nil {
			_ = closeAll(ctx)
			return nil, err
		}
	}

	var account common.Address
	if trimmed := strings.TrimSpace(cfg.Wallet.Account); trimmed != "" {
		account = common.HexToAddress(trimmed)
	}
	connector := wallet.NewClefConnector(cfg.Wallet.SignerEndpoint, account)
	resolver := wallet.NewResolver(connector, logger)
	factory := contracts.NewFactory(client, resolver, cfg.LendingAddress())

	apiKey := strings.TrimSpace(cfg.Indexer.APIKey)
	if apiKey == "" {
		apiKey, err = secret.NewSource("indexer API key", apiKeyEnv).Get()
		switch {
		case errors.Is(err, secret.ErrNoTerminal):
			logger.Warn("indexer API key not configured; inventory reads will likely be refused", "env", apiKeyEnv)
		case err != nil:
			_ = closeAll(ctx)
			return nil, err
		}
	}
	indexerClient, err := indexer.NewClient(indexer.Config{
		BaseURL:           cfg.Indexer.BaseURL,
		APIKey:            apiKey,
		Chain:             cfg.Chain.IndexerChain,
		PageSize:          cfg.Indexer.PageSize,
		RequestsPerSecond: cfg.Indexer.RequestsPerSecond,
		Burst:             cfg.Indexer.Burst,
		Timeout:           time.Duration(cfg.Indexer.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		_ = closeAll(ctx)
		return nil, fmt.Errorf("configure indexer: %w", err)
	}
	indexerService := indexer.NewService(indexerClient, logger)
	logger.Info("session dependencies configured",
		"indexer", cfg.Indexer.BaseURL,
		logging.MaskField("indexer_api_key", apiKey),
		logging.MaskField("signer_endpoint", cfg.Wallet.SignerEndpoint),
	)

	amounts, err := cfg.Policy.Amounts()
	if err != nil {
		_ = closeAll(ctx)
		return nil, err
	}

	store := portfolio.NewStore()
	syncer := refresh.NewSyncer(
		store,
		position.NewReader(factory, logger),
		inventory.NewAggregator(indexerService, factory, logger),
		resolver,
		logger,
	)
	actionLog := logging.Component(logger, "actions")
	actions := orchestrator.New(factory, syncer, amounts, cfg.GiveawayAddress(), logger,
		orchestrator.WithPhaseListener(func(id uuid.UUID, action orchestrator.Action, phase orchestrator.Phase) {
			actionLog.Debug("action phase", "action_id", id.String(), "action", string(action), "phase", string(phase))
		}),
	)

	poll := time.Duration(cfg.Wallet.ReconnectPollSeconds) * time.Second
	return &app{
		logger:    logger,
		view:      store,
		refresher: syncer,
		actions:   actions,
		health: func(ctx context.Context) error {
			if _, err := client.BlockNumber(ctx); err != nil {
				return fmt.Errorf("chain rpc: %w", err)
			}
			return indexerService.EnsureReady(ctx)
		},
		listen: cfg.HTTP.Listen,
		limits: rateLimits(cfg.HTTP.RateLimitPerMin),
		auth: middleware.AuthConfig{
			HMACSecret: cfg.HTTP.AuthSecret,
			Issuer:     cfg.HTTP.AuthIssuer,
			Audience:   cfg.HTTP.AuthAudience,
		},
		background: []func(ctx context.Context) error{
			syncer.Run,
			func(ctx context.Context) error {
				resolver.Watch(ctx, poll)
				return nil
			},
			func(ctx context.Context) error {
				if err := syncer.RefreshAll(ctx); err != nil && !errors.Is(err, portfolio.ErrDisconnected) {
					logger.Warn("initial refresh failed", "error", err)
				}
				return nil
			},
		},
		close: func(ctx context.Context) error {
			resolver.Close()
			if err := connector.Close(); err != nil {
				logger.Debug("close signer", "error", err)
			}
			return closeAll(ctx)
		},
	}, nil
}

func checkChainID(ctx context.Context, client *ethclient.Client, want uint64) error {
	got, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("query chain id: %w", err)
	}
	if !got.IsUint64() || got.Uint64() != want {
		return fmt.Errorf("node reports chain id %s, configured %d", got, want)
	}
	return nil
}

// rateLimits gives reads four times the action budget. Zero disables limits.
func rateLimits(actionsPerMinute int) map[string]middleware.RateLimit {
	if actionsPerMinute <= 0 {
		return nil
	}
	burst := func(perMinute int) int {
		return int(math.Max(1, math.Ceil(float64(perMinute)/10)))
	}
	return map[string]middleware.RateLimit{
		routes.GroupActions: {RequestsPerMinute: float64(actionsPerMinute), Burst: burst(actionsPerMinute)},
		routes.GroupReads:   {RequestsPerMinute: float64(actionsPerMinute * 4), Burst: burst(actionsPerMinute * 4)},
	}
}

package cmd

import (
	"context"
	"fmt"

	"FlowCash/config"
	"FlowCash/core/ledger"
	"FlowCash/core/token"
	"FlowCash/db"
	"FlowCash/logger"
	"FlowCash/model"
)

// initLogging 按配置初始化日志；配置了级别文件时监听其变化
func initLogging(ctx context.Context, cfg *config.Config) {
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   true,
	})
	if cfg.LogLevelFile == "" {
		return
	}
	if err := logger.WatchLevelFile(ctx, cfg.LogLevelFile); err != nil {
		logger.Warn("[Logger] level file watch disabled", logger.ErrorField(err))
	}
}

// ledgerConfig 从环境配置构造账本配置，价格区间为十进制字符串
func ledgerConfig(cfg *config.Config) (ledger.Config, error) {
	lc := ledger.DefaultConfig(cfg.AdminAddress, cfg.LedgerAddress)
	lc.FeeBasisPoints = cfg.PlatformFeeBps

	var err error
	if lc.MinPrice, err = model.ParseAmount(cfg.MinPricePerStream); err != nil {
		return lc, fmt.Errorf("MIN_PRICE_PER_STREAM: %w", err)
	}
	if lc.MaxPrice, err = model.ParseAmount(cfg.MaxPricePerStream); err != nil {
		return lc, fmt.Errorf("MAX_PRICE_PER_STREAM: %w", err)
	}
	if err := lc.Validate(); err != nil {
		return lc, err
	}
	return lc, nil
}

// openToken 按 TOKEN_BACKEND 选择代币实现
func openToken(cfg *config.Config) (token.Token, func(), error) {
	switch cfg.TokenBackend {
	case "memory", "":
		logger.Warn("[Token] using in-memory token; balances are lost on restart")
		return token.NewMemory(cfg.TokenSymbol), func() {}, nil
	case "redis":
		client, err := db.ConnectTokenRedis(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("[Token] using Redis token",
			logger.String("host", cfg.RedisHost), logger.Int("db", cfg.RedisDB))
		return token.NewRedisToken(client, cfg.TokenSymbol), func() {
			if err := db.CloseTokenRedis(); err != nil {
				logger.Warn("[Token] failed to close Redis", logger.ErrorField(err))
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown TOKEN_BACKEND %q (want memory or redis)", cfg.TokenBackend)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FlowCash/cache"
	"FlowCash/config"
	"FlowCash/core/auth"
	"FlowCash/core/feed"
	"FlowCash/core/ledger"
	"FlowCash/db"
	"FlowCash/logger"
	"FlowCash/model"
	"FlowCash/repository"
	"FlowCash/server"
	"FlowCash/storage"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 FlowCash 服务器",
	Long:  `启动账本 HTTP/WebSocket 服务：恢复日志中的账本状态，连接代币后端、MinIO 与 Redis 事件总线。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	initLogging(ctx, cfg)
	defer logger.Sync()

	lc, err := ledgerConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid ledger config: %w", err)
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return err
	}

	// 数据库：账号与账本日志
	if err := db.ConnectGormDB(cfg); err != nil {
		return err
	}
	defer db.CloseGormDB()
	if err := db.Migrate(db.GormDB); err != nil {
		return err
	}
	accounts := repository.NewGormAccountRepository(db.GormDB)
	events := repository.NewGormEventRepository(db.GormDB)

	tok, closeToken, err := openToken(cfg)
	if err != nil {
		return err
	}
	defer closeToken()

	hub := feed.NewHub()
	go hub.Run()
	defer hub.Stop()

	opts := []ledger.Option{
		ledger.WithNotifier(hub),
		ledger.WithLogger(logger.Named("ledger")),
	}
	if cfg.JournalEnabled {
		opts = append(opts, ledger.WithJournal(events))
	} else {
		logger.Warn("[Ledger] journal disabled; state will not survive a restart")
	}

	// Redis 事件总线与单写者租约，不可用时按单实例运行
	var bus *cache.EventBus
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("[EventBus] Redis unavailable, running as the only writer", logger.ErrorField(err))
	} else {
		defer cache.CloseRedis()
		bus = cache.NewEventBus(cache.RedisClient, cfg.EventChannel)
		opts = append(opts, ledger.WithNotifier(bus))
	}

	l, err := ledger.New(lc, tok, opts...)
	if err != nil {
		return err
	}

	var rep *replica
	switch {
	case !cfg.JournalEnabled:
	case bus != nil:
		lock := cache.NewWriterLock(cache.RedisClient, cfg.WriterLockKey, cfg.WriterLockTTL)
		rep = newReplica(l, events, lock, cfg.WriterLockTTL/3)
		if err := rep.start(ctx); err != nil {
			return fmt.Errorf("failed to join journal: %w", err)
		}
	default:
		if err := replayJournal(ctx, l, events); err != nil {
			return err
		}
	}
	if cfg.JournalEnabled && cfg.TokenBackend != "redis" && l.Seq() > 0 {
		logger.Warn("[Ledger] journal replayed against in-memory token; balances start empty")
	}

	if bus != nil {
		relay := hub.Notify
		if rep != nil {
			relay = func(ev model.LedgerEvent) {
				hub.Notify(ev)
				rep.Nudge()
			}
		}
		if err := bus.Subscribe(ctx, relay); err != nil {
			logger.Warn("[EventBus] subscribe failed", logger.ErrorField(err))
		}
		go bus.Run(ctx)
	}
	if rep != nil {
		// 退出前释放租约，需在关闭 Redis 之前完成
		done := make(chan struct{})
		go func() {
			defer close(done)
			rep.run(ctx)
		}()
		defer func() {
			stop()
			<-done
		}()
	}

	var content storage.ContentStore
	if store, err := storage.NewMinioStore(ctx, cfg); err != nil {
		logger.Warn("[Storage] MinIO unavailable, uploads disabled", logger.ErrorField(err))
	} else {
		content = store
	}

	srv := server.New(server.Deps{
		Ledger:        l,
		Token:         tok,
		Accounts:      accounts,
		Events:        events,
		Tokens:        tokens,
		Content:       content,
		Hub:           hub,
		AuthRateLimit: cfg.AuthRateLimit,
		AuthRateBurst: cfg.AuthRateBurst,
		MaxUploadSize: cfg.MaxUploadSize,
	})

	info := l.Info()
	logger.Info("[Server] ledger ready",
		logger.String("admin", info.Admin),
		logger.String("ledgerAccount", info.LedgerAccount),
		logger.Uint64("feeBps", info.FeeBasisPoints),
		logger.Uint64("tracks", info.CurrentTrackID),
		logger.Uint64("seq", l.Seq()),
		logger.Bool("readOnly", l.ReadOnly()))
	return srv.Run(ctx, cfg.ServerAddr)
}

// replayJournal 从数据库日志恢复账本状态
func replayJournal(ctx context.Context, l *ledger.Ledger, events repository.EventRepository) error {
	journal, err := events.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load journal: %w", err)
	}
	if len(journal) == 0 {
		return nil
	}
	if err := l.Replay(journal); err != nil {
		return fmt.Errorf("failed to replay journal: %w", err)
	}
	return nil
}

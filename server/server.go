package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"FlowCash/core/auth"
	"FlowCash/core/feed"
	"FlowCash/core/ledger"
	"FlowCash/core/token"
	"FlowCash/logger"
	"FlowCash/repository"
	"FlowCash/storage"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"golang.org/x/time/rate"
)

// Deps 服务依赖，Events/Content 可为 nil
type Deps struct {
	Ledger   *ledger.Ledger
	Token    token.Token
	Accounts repository.AccountRepository
	Events   repository.EventRepository
	Tokens   *auth.TokenManager
	Content  storage.ContentStore
	Hub      *feed.Hub

	AuthRateLimit float64 // requests per second per client IP
	AuthRateBurst int
	MaxUploadSize int64
}

// Server exposes the ledger over HTTP and WebSocket.
type Server struct {
	ledger    *ledger.Ledger
	token     token.Token
	accounts  repository.AccountRepository
	events    repository.EventRepository
	tokens    *auth.TokenManager
	content   storage.ContentStore
	hub       *feed.Hub
	limiter   *ipLimiter
	maxUpload int64
}

func New(d Deps) *Server {
	if d.AuthRateLimit <= 0 {
		d.AuthRateLimit = 1
	}
	if d.AuthRateBurst <= 0 {
		d.AuthRateBurst = 5
	}
	if d.MaxUploadSize <= 0 {
		d.MaxUploadSize = 50 << 20
	}
	return &Server{
		ledger:    d.Ledger,
		token:     d.Token,
		accounts:  d.Accounts,
		events:    d.Events,
		tokens:    d.Tokens,
		content:   d.Content,
		hub:       d.Hub,
		limiter:   newIPLimiter(rate.Limit(d.AuthRateLimit), d.AuthRateBurst),
		maxUpload: d.MaxUploadSize,
	}
}

// Routes 注册全部路由
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	public := alice.New(s.identify)
	protected := public.Append(requireCaller)
	limited := alice.New(s.rateLimit)

	// 认证
	api.Handle("/auth/register", limited.ThenFunc(s.RegisterHandler)).Methods(http.MethodPost)
	api.Handle("/auth/login", limited.ThenFunc(s.LoginHandler)).Methods(http.MethodPost)

	api.Handle("/info", public.ThenFunc(s.InfoHandler)).Methods(http.MethodGet)

	// 曲目
	api.Handle("/tracks", protected.ThenFunc(s.MintTrackHandler)).Methods(http.MethodPost)
	api.Handle("/tracks/{id:[0-9]+}", public.ThenFunc(s.GetTrackHandler)).Methods(http.MethodGet)
	api.Handle("/tracks/{id:[0-9]+}/price", protected.ThenFunc(s.UpdatePriceHandler)).Methods(http.MethodPut)
	api.Handle("/tracks/{id:[0-9]+}/toggle", protected.ThenFunc(s.ToggleStatusHandler)).Methods(http.MethodPost)
	api.Handle("/tracks/{id:[0-9]+}/like", protected.ThenFunc(s.LikeHandler)).Methods(http.MethodPost)
	api.Handle("/tracks/{id:[0-9]+}/like", protected.ThenFunc(s.UnlikeHandler)).Methods(http.MethodDelete)
	api.Handle("/tracks/{id:[0-9]+}/streams", protected.ThenFunc(s.PurchaseStreamsHandler)).Methods(http.MethodPost)
	api.Handle("/tracks/{id:[0-9]+}/history", public.ThenFunc(s.StreamHistoryHandler)).Methods(http.MethodGet)
	api.Handle("/tracks/{id:[0-9]+}/events", public.ThenFunc(s.TrackEventsHandler)).Methods(http.MethodGet)

	// 艺人与平台
	api.Handle("/artists/{address}/stats", public.ThenFunc(s.ArtistStatsHandler)).Methods(http.MethodGet)
	api.Handle("/artists/{address}/tracks", public.ThenFunc(s.ArtistTracksHandler)).Methods(http.MethodGet)
	api.Handle("/artists/{address}/verified", protected.ThenFunc(s.VerifyArtistHandler)).Methods(http.MethodPut)
	api.Handle("/platform/stats", public.ThenFunc(s.PlatformStatsHandler)).Methods(http.MethodGet)
	api.Handle("/platform/withdraw", protected.ThenFunc(s.WithdrawHandler)).Methods(http.MethodPost)

	// 支付代币
	api.Handle("/token/balance/{address}", public.ThenFunc(s.BalanceHandler)).Methods(http.MethodGet)
	api.Handle("/token/approve", protected.ThenFunc(s.ApproveHandler)).Methods(http.MethodPost)
	api.Handle("/token/mint", protected.ThenFunc(s.TokenMintHandler)).Methods(http.MethodPost)

	// 内容上传
	api.Handle("/content/{kind}", protected.ThenFunc(s.UploadContentHandler)).Methods(http.MethodPost)

	// 实时事件
	router.HandleFunc("/ws/events", s.EventsWebSocketHandler).Methods(http.MethodGet)

	return alice.New(recoverPanic, logRequest, cors).Then(router)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] listening", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("[Server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("[Server] stopped")
	return nil
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"FlowCash/core/auth"
	"FlowCash/core/feed"
	"FlowCash/core/ledger"
	"FlowCash/core/token"
	"FlowCash/db"
	"FlowCash/model"
	"FlowCash/repository"
	"FlowCash/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	adminAddr  = "0xadmin"
	ledgerAddr = "0xledger"
)

type memoryContent struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryContent) Put(_ context.Context, kind storage.ContentKind, data []byte, _ string) (string, error) {
	hash, err := storage.ContentHash(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[string(kind)+"/"+hash] = data
	return hash, nil
}

type testEnv struct {
	srv     *httptest.Server
	ledger  *ledger.Ledger
	token   *token.Memory
	tokens  *auth.TokenManager
	events  repository.EventRepository
	content *memoryContent
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	events := repository.NewGormEventRepository(gdb)
	hub := feed.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	tok := token.NewMemory("USDT")
	l, err := ledger.New(ledger.DefaultConfig(adminAddr, ledgerAddr), tok,
		ledger.WithJournal(events),
		ledger.WithNotifier(hub),
		ledger.WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)

	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	content := &memoryContent{objects: make(map[string][]byte)}
	deps := Deps{
		Ledger:        l,
		Token:         tok,
		Accounts:      repository.NewGormAccountRepository(gdb),
		Events:        events,
		Tokens:        tokens,
		Content:       content,
		Hub:           hub,
		AuthRateLimit: 1000,
		AuthRateBurst: 1000,
		MaxUploadSize: 1 << 20,
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv := httptest.NewServer(New(deps).Routes())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, ledger: l, token: tok, tokens: tokens, events: events, content: content}
}

// do 发送 JSON 请求并解码响应，out 为 nil 时忽略响应体
func (e *testEnv) do(t *testing.T, method, path, bearer string, body, out interface{}) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) register(t *testing.T, username string) AuthResponse {
	t.Helper()
	var resp AuthResponse
	status := e.do(t, http.MethodPost, "/api/auth/register", "",
		CredentialsRequest{Username: username, Password: "correct-horse"}, &resp)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, resp.Token)
	return resp
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	tok, err := e.tokens.GenerateToken("admin", "admin", adminAddr)
	require.NoError(t, err)
	return tok
}

func mintBody(price string) map[string]interface{} {
	return map[string]interface{}{
		"title":          "Test Song",
		"audioHash":      "QmTestAudioHash123",
		"coverArtHash":   "QmTestCoverHash123",
		"metadataUri":    "ipfs://QmTestMetadata123",
		"pricePerStream": price,
		"duration":       180,
		"genre":          "Electronic",
	}
}

func TestStreamingFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	artist := env.register(t, "artist")
	fan := env.register(t, "fan")
	admin := env.adminToken(t)

	// 充值并授权
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/token/mint", admin,
		map[string]string{"to": fan.Account.Address, "amount": "1000"}, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/token/approve", fan.Token,
		map[string]string{"amount": "10"}, nil))

	var track model.Track
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/tracks", artist.Token, mintBody("0.05"), &track))
	require.Equal(t, uint64(1), track.ID)
	require.Equal(t, artist.Account.Address, track.Artist)
	require.True(t, track.IsActive)

	var receipt model.Receipt
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tracks/1/streams", fan.Token,
		map[string]uint64{"streamCount": 10}, &receipt))
	assert.Equal(t, model.MustParseAmount("0.5"), receipt.TotalCost)
	assert.Equal(t, model.MustParseAmount("0.4875"), receipt.ArtistShare)
	assert.Equal(t, model.MustParseAmount("0.0125"), receipt.PlatformShare)

	var balance struct {
		Balance   model.Amount `json:"balance"`
		Allowance model.Amount `json:"allowance"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/token/balance/"+artist.Account.Address, "", nil, &balance))
	assert.Equal(t, model.MustParseAmount("0.4875"), balance.Balance)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/token/balance/"+fan.Account.Address, "", nil, &balance))
	assert.Equal(t, model.MustParseAmount("999.5"), balance.Balance)
	assert.Equal(t, model.MustParseAmount("9.5"), balance.Allowance)

	var stats model.ArtistStats
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/artists/"+artist.Account.Address+"/stats", "", nil, &stats))
	assert.Equal(t, uint64(1), stats.TotalTracks)
	assert.Equal(t, uint64(10), stats.TotalStreams)
	assert.Equal(t, model.MustParseAmount("0.4875"), stats.TotalEarnings)

	var history struct {
		Total   int                    `json:"total"`
		Entries []model.StreamPurchase `json:"entries"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tracks/1/history", "", nil, &history))
	require.Equal(t, 1, history.Total)
	require.Len(t, history.Entries, 1)
	assert.Equal(t, fan.Account.Address, history.Entries[0].Listener)

	var platform model.PlatformStats
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/platform/stats", "", nil, &platform))
	assert.Equal(t, model.MustParseAmount("0.0125"), platform.PlatformBalance)
	assert.Equal(t, model.MustParseAmount("0.5"), platform.TotalEarnings)

	var withdrawn struct {
		Withdrawn model.Amount `json:"withdrawn"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/platform/withdraw", admin, nil, &withdrawn))
	assert.Equal(t, model.MustParseAmount("0.0125"), withdrawn.Withdrawn)
	got, err := env.token.BalanceOf(context.Background(), adminAddr)
	require.NoError(t, err)
	assert.Equal(t, model.MustParseAmount("0.0125"), got)

	// 每次状态变更都写入日志
	last, err := env.events.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, env.ledger.Seq(), last)

	var trackEvents struct {
		Events []model.LedgerEvent `json:"events"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tracks/1/events", "", nil, &trackEvents))
	require.Len(t, trackEvents.Events, 2)
	assert.Equal(t, model.EventTrackMinted, trackEvents.Events[0].Type)
	assert.Equal(t, model.EventStreamsPurchased, trackEvents.Events[1].Type)
}

func TestTrackLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	artist := env.register(t, "artist")
	fan := env.register(t, "fan")

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/tracks", artist.Token, mintBody("0.05"), nil))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/tracks/1/price", artist.Token,
		map[string]string{"pricePerStream": "0.1"}, nil))

	var toggled struct {
		IsActive bool `json:"isActive"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tracks/1/toggle", artist.Token, nil, &toggled))
	assert.False(t, toggled.IsActive)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tracks/1/like", fan.Token, nil, nil))

	var detail TrackResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tracks/1", fan.Token, nil, &detail))
	assert.True(t, detail.Liked)
	assert.Equal(t, uint64(1), detail.Likes)
	assert.Equal(t, model.MustParseAmount("0.1"), detail.PricePerStream)
	assert.False(t, detail.IsActive)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/tracks/1/like", fan.Token, nil, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tracks/1", fan.Token, nil, &detail))
	assert.False(t, detail.Liked)
	assert.Equal(t, uint64(0), detail.Likes)

	var tracks struct {
		TrackIDs []uint64 `json:"trackIds"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/artists/"+artist.Account.Address+"/tracks", "", nil, &tracks))
	assert.Equal(t, []uint64{1}, tracks.TrackIDs)

	var stats model.ArtistStats
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/artists/"+artist.Account.Address+"/verified",
		env.adminToken(t), map[string]bool{"verified": true}, &stats))
	assert.True(t, stats.IsVerified)
}

func TestErrorStatusMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	artist := env.register(t, "artist")
	fan := env.register(t, "fan")
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/tracks", artist.Token, mintBody("0.05"), nil))

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		body   interface{}
		status int
	}{
		{"missing token", http.MethodPost, "/api/tracks/1/like", "", nil, http.StatusUnauthorized},
		{"garbage token", http.MethodPost, "/api/tracks/1/like", "not-a-jwt", nil, http.StatusUnauthorized},
		{"not owner", http.MethodPut, "/api/tracks/1/price", fan.Token, map[string]string{"pricePerStream": "0.1"}, http.StatusForbidden},
		{"not admin", http.MethodPost, "/api/platform/withdraw", fan.Token, nil, http.StatusForbidden},
		{"not admin mint", http.MethodPost, "/api/token/mint", fan.Token, map[string]string{"to": "0xfan", "amount": "1"}, http.StatusForbidden},
		{"unknown track", http.MethodGet, "/api/tracks/99", "", nil, http.StatusNotFound},
		{"price too low", http.MethodPost, "/api/tracks", artist.Token, mintBody("0.0001"), http.StatusBadRequest},
		{"bad amount", http.MethodPost, "/api/tracks", artist.Token, mintBody("abc"), http.StatusBadRequest},
		{"zero streams", http.MethodPost, "/api/tracks/1/streams", fan.Token, map[string]uint64{"streamCount": 0}, http.StatusBadRequest},
		{"no allowance", http.MethodPost, "/api/tracks/1/streams", fan.Token, map[string]uint64{"streamCount": 1}, http.StatusPaymentRequired},
		{"not liked", http.MethodDelete, "/api/tracks/1/like", fan.Token, nil, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/tracks/1/streams", fan.Token, map[string]uint64{"streams": 1}, http.StatusBadRequest},
		{"duplicate username", http.MethodPost, "/api/auth/register", "", CredentialsRequest{Username: "fan", Password: "correct-horse"}, http.StatusConflict},
		{"short password", http.MethodPost, "/api/auth/register", "", CredentialsRequest{Username: "new", Password: "short"}, http.StatusBadRequest},
		{"wrong password", http.MethodPost, "/api/auth/login", "", CredentialsRequest{Username: "fan", Password: "wrong-horse"}, http.StatusUnauthorized},
		{"unknown user", http.MethodPost, "/api/auth/login", "", CredentialsRequest{Username: "ghost", Password: "correct-horse"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			status := env.do(t, tt.method, tt.path, tt.bearer, tt.body, &resp)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, resp.Error)
		})
	}

	// 重复点赞
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tracks/1/like", fan.Token, nil, nil))
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/tracks/1/like", fan.Token, nil, nil))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ledger.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", ledger.ErrUnauthorized), http.StatusForbidden},
		{ledger.ErrTrackInactive, http.StatusBadRequest},
		{ledger.ErrAlreadyLiked, http.StatusBadRequest},
		{ledger.ErrInsufficientAllowance, http.StatusPaymentRequired},
		{token.ErrInsufficientBalance, http.StatusPaymentRequired},
		{ledger.ErrOverflow, http.StatusUnprocessableEntity},
		{ledger.ErrTransferFailed, http.StatusBadGateway},
		{ledger.ErrReadOnly, http.StatusServiceUnavailable},
		{repository.ErrDuplicate, http.StatusConflict},
		{model.ErrInvalidAmount, http.StatusBadRequest},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestAuthRateLimit(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.AuthRateLimit = 0.001
		d.AuthRateBurst = 2
	})
	body := CredentialsRequest{Username: "nobody", Password: "correct-horse"}
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/auth/login", "", body, nil))
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/auth/login", "", body, nil))
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/api/auth/login", "", body, nil))
}

func TestIPLimiterPrunesIdleVisitors(t *testing.T) {
	l := newIPLimiter(1, 1)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i <= maxVisitors; i++ {
		require.True(t, l.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256)))
	}
	require.False(t, l.Allow("10.0.0.0"))

	now = now.Add(limiterIdleTTL + time.Minute)
	require.True(t, l.Allow("192.168.0.1"))
	assert.Len(t, l.visitors, 1)
}

func TestUploadContent(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.MaxUploadSize = 4 << 10 })
	artist := env.register(t, "artist")

	upload := func(kind string, payload []byte) (*http.Response, map[string]interface{}) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "track.mp3")
		require.NoError(t, err)
		_, err = fw.Write(payload)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/content/"+kind, &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+artist.Token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp, out
	}

	payload := []byte("ID3 fake audio payload")
	resp, out := upload("audio", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	hash, _ := out["hash"].(string)
	ok, err := storage.VerifyContentHash(hash, payload)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, env.content.objects, "audio/"+hash)

	resp, _ = upload("video", payload)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = upload("cover", bytes.Repeat([]byte("x"), 16<<10))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestEventsWebSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	artist := env.register(t, "artist")
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/tracks", artist.Token, mintBody("0.05"), nil))

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/events?since=0&trackId=1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() feed.WSMessage {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg feed.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	// 先补发历史事件
	msg := read()
	require.Equal(t, feed.MsgTypeEvent, msg.Type)
	require.Equal(t, model.EventTrackMinted, msg.Event.Type)

	// 再收到实时事件
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tracks/1/toggle", artist.Token, nil, nil))
	msg = read()
	require.Equal(t, model.EventStatusToggled, msg.Event.Type)
	assert.Equal(t, uint64(1), msg.Event.TrackID)
}

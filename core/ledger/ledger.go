// Package ledger implements the track registry and stream-payment ledger:
// minting tracks, settling stream purchases with a platform fee split,
// per-artist and platform statistics, and owner/admin access checks.
//
// All mutations are serialized by a single lock and either apply fully or
// not at all. Each committed mutation becomes a sequence-numbered
// model.LedgerEvent that is appended to the Journal before it is applied,
// so Replay can rebuild the same state after a restart.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FlowCash/core/token"
	"FlowCash/model"

	"go.uber.org/zap"
)

// Config is fixed when the ledger is created.
type Config struct {
	Admin          string       // 平台管理员身份
	LedgerAccount  string       // 账本在代币中的托管账户
	FeeBasisPoints uint64       // 平台费率（基点）
	MinPrice       model.Amount // 单次播放最低价格
	MaxPrice       model.Amount // 单次播放最高价格
}

// DefaultConfig returns the 2.5% fee and the 0.001 - 1.00 price bounds.
func DefaultConfig(admin, ledgerAccount string) Config {
	return Config{
		Admin:          admin,
		LedgerAccount:  ledgerAccount,
		FeeBasisPoints: 250,
		MinPrice:       1_000,
		MaxPrice:       1_000_000,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Admin == "":
		return fmt.Errorf("%w: admin identity is required", ErrInvalidInput)
	case c.LedgerAccount == "":
		return fmt.Errorf("%w: ledger account is required", ErrInvalidInput)
	case c.FeeBasisPoints > BasisPoints:
		return fmt.Errorf("%w: fee %d bps exceeds %d", ErrInvalidInput, c.FeeBasisPoints, BasisPoints)
	case c.MinPrice == 0:
		return fmt.Errorf("%w: min price must be positive", ErrInvalidPrice)
	case c.MinPrice > c.MaxPrice:
		return fmt.Errorf("%w: min price %s above max price %s", ErrInvalidPrice, c.MinPrice, c.MaxPrice)
	}
	return nil
}

// Journal persists committed events in sequence order.
type Journal interface {
	Append(ctx context.Context, ev *model.LedgerEvent) error
}

// Notifier receives every applied event. Notify is called with the ledger
// lock held and must not block.
type Notifier interface {
	Notify(ev model.LedgerEvent)
}

type Option func(*Ledger)

func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifiers = append(l.notifiers, n) }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

type likeKey struct {
	trackID uint64
	liker   string
}

type artistProfile struct {
	tracks   []uint64
	verified bool
}

// Ledger 账本主体
type Ledger struct {
	mu        sync.RWMutex
	cfg       Config
	token     token.Provider
	journal   Journal
	notifiers []Notifier
	now       func() time.Time
	log       *zap.Logger

	readOnly bool
	seq      uint64
	tracks   []*model.Track // tracks[id-1]
	artists  map[string]*artistProfile
	likes    map[likeKey]struct{}
	history  purchaseLog
	platform model.PlatformStats
}

// New creates an empty ledger settling in tok.
func New(cfg Config, tok token.Provider, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: token provider is required", ErrInvalidInput)
	}

	l := &Ledger{
		cfg:     cfg,
		token:   tok,
		now:     time.Now,
		log:     zap.NewNop(),
		artists: make(map[string]*artistProfile),
		likes:   make(map[likeKey]struct{}),
		history: newPurchaseLog(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the immutable configuration.
func (l *Ledger) Config() Config {
	return l.cfg
}

// Seq returns the sequence number of the last recorded event.
func (l *Ledger) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// SetReadOnly switches the instance between writer and follower. A
// follower rejects every mutation with ErrReadOnly and advances only
// through Replay or Sync.
func (l *Ledger) SetReadOnly(ro bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readOnly = ro
}

func (l *Ledger) ReadOnly() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.readOnly
}

// writable requires l.mu held.
func (l *Ledger) writable() error {
	if l.readOnly {
		return ErrReadOnly
	}
	return nil
}

// record assigns the next seq and appends ev to the journal. Requires l.mu held.
func (l *Ledger) record(ctx context.Context, ev *model.LedgerEvent) error {
	if err := l.writable(); err != nil {
		return err
	}
	ev.Seq = l.seq + 1
	ev.CreatedAt = l.now()
	if l.journal != nil {
		if err := l.journal.Append(ctx, ev); err != nil {
			return fmt.Errorf("journal append seq %d: %w", ev.Seq, err)
		}
	}
	l.seq = ev.Seq
	return nil
}

// commit records ev and then applies it. Requires l.mu held.
func (l *Ledger) commit(ctx context.Context, ev *model.LedgerEvent, apply func(*model.LedgerEvent)) error {
	if err := l.record(ctx, ev); err != nil {
		return err
	}
	apply(ev)
	l.notify(*ev)
	return nil
}

func (l *Ledger) notify(ev model.LedgerEvent) {
	for _, n := range l.notifiers {
		n.Notify(ev)
	}
}

// track requires l.mu held.
func (l *Ledger) track(id uint64) (*model.Track, error) {
	if id == 0 || id > uint64(len(l.tracks)) {
		return nil, fmt.Errorf("track %d: %w", id, ErrNotFound)
	}
	return l.tracks[id-1], nil
}

func (l *Ledger) artist(addr string) *artistProfile {
	p, ok := l.artists[addr]
	if !ok {
		p = &artistProfile{}
		l.artists[addr] = p
	}
	return p
}

func (l *Ledger) checkPrice(price model.Amount) error {
	if price < l.cfg.MinPrice || price > l.cfg.MaxPrice {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidPrice, price, l.cfg.MinPrice, l.cfg.MaxPrice)
	}
	return nil
}

package cmd

import (
	"context"
	"time"

	"FlowCash/core/ledger"
	"FlowCash/logger"
)

// lease 单写者租约，由 cache.WriterLock 实现
type lease interface {
	TryAcquire(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// replica keeps one writer per shared journal. The lease holder mutates
// the ledger; every other instance is a read-only follower that syncs
// from the journal and takes over once the lease expires.
type replica struct {
	ledger  *ledger.Ledger
	journal ledger.JournalReader
	lease   lease
	every   time.Duration
	nudge   chan struct{}
}

func newReplica(l *ledger.Ledger, journal ledger.JournalReader, ls lease, every time.Duration) *replica {
	return &replica{
		ledger:  l,
		journal: journal,
		lease:   ls,
		every:   every,
		nudge:   make(chan struct{}, 1),
	}
}

// Nudge asks a follower to sync now instead of waiting for the next tick.
func (r *replica) Nudge() {
	select {
	case r.nudge <- struct{}{}:
	default:
	}
}

// start picks the initial role and brings the ledger up to the journal.
func (r *replica) start(ctx context.Context) error {
	ok, err := r.lease.TryAcquire(ctx)
	if err != nil {
		return err
	}
	r.ledger.SetReadOnly(!ok)
	if _, err := r.ledger.Sync(ctx, r.journal, ok); err != nil {
		if ok {
			r.release()
		}
		return err
	}
	if ok {
		logger.Info("[Replica] writer lease acquired", logger.Uint64("seq", r.ledger.Seq()))
	} else {
		logger.Info("[Replica] another instance holds the writer lease; running read-only",
			logger.Uint64("seq", r.ledger.Seq()))
	}
	return nil
}

func (r *replica) run(ctx context.Context) {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if !r.ledger.ReadOnly() {
				r.ledger.SetReadOnly(true)
				r.release()
			}
			return
		case <-ticker.C:
		case <-r.nudge:
			if !r.ledger.ReadOnly() {
				continue
			}
		}
		r.step(ctx)
	}
}

// step refreshes the writer's lease or advances a follower, promoting it
// when the lease is free.
func (r *replica) step(ctx context.Context) {
	if !r.ledger.ReadOnly() {
		ok, err := r.lease.Refresh(ctx)
		if err == nil && ok {
			return
		}
		r.ledger.SetReadOnly(true)
		logger.Warn("[Replica] writer lease lost; switching to read-only",
			logger.Bool("expired", err == nil), logger.ErrorField(err))
		return
	}

	if _, err := r.ledger.Sync(ctx, r.journal, false); err != nil {
		logger.Error("[Replica] journal sync failed", logger.ErrorField(err))
		return
	}
	ok, err := r.lease.TryAcquire(ctx)
	if err != nil {
		logger.Warn("[Replica] lease check failed", logger.ErrorField(err))
		return
	}
	if !ok {
		return
	}
	// 持有租约后没有新的写入者，补齐日志尾部再接管写入
	if _, err := r.ledger.Sync(ctx, r.journal, true); err != nil {
		logger.Error("[Replica] final sync failed; giving the lease back", logger.ErrorField(err))
		r.release()
		return
	}
	r.ledger.SetReadOnly(false)
	logger.Info("[Replica] promoted to writer", logger.Uint64("seq", r.ledger.Seq()))
}

func (r *replica) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.lease.Release(ctx); err != nil {
		logger.Warn("[Replica] failed to release writer lease", logger.ErrorField(err))
	}
}

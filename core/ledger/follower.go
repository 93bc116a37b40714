package ledger

import (
	"context"
	"fmt"

	"FlowCash/model"
)

const syncBatch = 500

// JournalReader reads committed events after a seq, in seq order.
type JournalReader interface {
	ListAfter(ctx context.Context, seq uint64, limit int) ([]model.LedgerEvent, error)
}

// revertible reports whether a later event may still cancel ev.
func revertible(t model.EventType) bool {
	return t == model.EventStreamsPurchased || t == model.EventFeesWithdrawn
}

// Sync applies journal events written by another instance since the
// ledger's seq and returns how many seqs it advanced. A purchase or
// withdrawal at the end of the journal is held back until a later event
// shows whether it was reverted, unless complete is set; the writer
// records a revert immediately after the event it cancels.
func (l *Ledger) Sync(ctx context.Context, r JournalReader, complete bool) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.seq
	for {
		batch, err := r.ListAfter(ctx, l.seq, syncBatch)
		if err != nil {
			return int(l.seq - start), fmt.Errorf("sync after seq %d: %w", l.seq, err)
		}
		full := len(batch) == syncBatch
		if n := len(batch); n > 0 && revertible(batch[n-1].Type) && (full || !complete) {
			batch = batch[:n-1]
		}
		if len(batch) == 0 {
			return int(l.seq - start), nil
		}
		if err := l.replay(batch); err != nil {
			return int(l.seq - start), err
		}
		if !full {
			return int(l.seq - start), nil
		}
	}
}

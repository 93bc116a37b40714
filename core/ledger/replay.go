package ledger

import (
	"fmt"

	"FlowCash/model"

	"go.uber.org/zap"
)

// Replay applies journaled events in sequence order without touching the
// token provider or notifiers. Events cancelled by a later revert event are
// skipped. The first event must follow the ledger's current seq with no gaps.
func (l *Ledger) Replay(events []model.LedgerEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replay(events)
}

// replay requires l.mu held.
func (l *Ledger) replay(events []model.LedgerEvent) error {
	reverted := make(map[uint64]struct{})
	for _, ev := range events {
		if ev.Type.IsRevert() {
			reverted[ev.Reverts] = struct{}{}
		}
	}

	applied := 0
	for i := range events {
		ev := &events[i]
		if ev.Seq != l.seq+1 {
			return fmt.Errorf("replay: expected seq %d, got %d", l.seq+1, ev.Seq)
		}
		if _, ok := reverted[ev.Seq]; !ok && !ev.Type.IsRevert() {
			if err := l.replayOne(ev); err != nil {
				return fmt.Errorf("replay seq %d (%s): %w", ev.Seq, ev.Type, err)
			}
			applied++
		}
		l.seq = ev.Seq
	}

	l.log.Info("[Ledger] journal replayed",
		zap.Int("events", len(events)), zap.Int("applied", applied), zap.Uint64("seq", l.seq))
	return nil
}

func (l *Ledger) replayOne(ev *model.LedgerEvent) error {
	if ev.Type == model.EventTrackMinted {
		if ev.TrackID != uint64(len(l.tracks))+1 {
			return fmt.Errorf("mint of track %d out of order", ev.TrackID)
		}
		l.applyMint(ev)
		return nil
	}

	var apply func(*model.LedgerEvent)
	switch ev.Type {
	case model.EventPriceUpdated:
		apply = l.applyPrice
	case model.EventStatusToggled:
		apply = l.applyToggle
	case model.EventTrackLiked:
		if _, ok := l.likes[likeKey{ev.TrackID, ev.Account}]; ok {
			return fmt.Errorf("track %d by %q: %w", ev.TrackID, ev.Account, ErrAlreadyLiked)
		}
		apply = l.applyLike
	case model.EventTrackUnliked:
		if _, ok := l.likes[likeKey{ev.TrackID, ev.Account}]; !ok {
			return fmt.Errorf("track %d by %q: %w", ev.TrackID, ev.Account, ErrNotLiked)
		}
		apply = l.applyUnlike
	case model.EventStreamsPurchased:
		apply = l.applyPurchase
	case model.EventArtistVerified:
		l.applyVerify(ev)
		return nil
	case model.EventFeesWithdrawn:
		if ev.Amount > l.platform.PlatformBalance {
			return fmt.Errorf("withdraw %s exceeds balance %s", ev.Amount, l.platform.PlatformBalance)
		}
		l.applyWithdraw(ev)
		return nil
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	if _, err := l.track(ev.TrackID); err != nil {
		return err
	}
	apply(ev)
	return nil
}

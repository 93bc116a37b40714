package ledger

import (
	"context"
	"errors"
	"fmt"

	"FlowCash/core/token"
	"FlowCash/model"

	"go.uber.org/zap"
)

// PurchaseStreams buys count stream units of a track for caller.
//
// The total cost is pulled from the caller into the ledger account, the
// artist share is pushed on to the artist and the platform share stays in
// the ledger account as accrued fees. Any failure leaves balances,
// counters and history as they were.
func (l *Ledger) PurchaseStreams(ctx context.Context, caller string, id, count uint64) (*model.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writable(); err != nil {
		return nil, err
	}
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	t, err := l.track(id)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, fmt.Errorf("track %d: %w", id, ErrTrackInactive)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: zero stream count", ErrInvalidInput)
	}

	cost, err := mulChecked(uint64(t.PricePerStream), count)
	if err != nil {
		return nil, fmt.Errorf("cost of %d streams at %s: %w", count, t.PricePerStream, err)
	}
	total := model.Amount(cost)
	artistShare, platformShare := SplitFee(total, l.cfg.FeeBasisPoints)
	if err := l.checkAccumulators(t, count, total, platformShare); err != nil {
		return nil, err
	}

	if err := l.token.TransferFrom(ctx, l.cfg.LedgerAccount, caller, l.cfg.LedgerAccount, total); err != nil {
		return nil, mapPullError(err, caller, total)
	}

	ev := &model.LedgerEvent{
		Type:        model.EventStreamsPurchased,
		Caller:      caller,
		TrackID:     id,
		Account:     caller,
		Amount:      total,
		Fee:         platformShare,
		StreamCount: count,
	}
	if err := l.record(ctx, ev); err != nil {
		return nil, l.refund(ctx, caller, total, err)
	}

	if artistShare > 0 {
		if err := l.token.Transfer(ctx, l.cfg.LedgerAccount, t.Artist, artistShare); err != nil {
			err = fmt.Errorf("%w: pay artist %s: %w", ErrTransferFailed, t.Artist, err)
			err = l.refund(ctx, caller, total, err)
			revert := &model.LedgerEvent{
				Type:    model.EventPurchaseReverted,
				Caller:  caller,
				TrackID: id,
				Account: caller,
				Amount:  total,
				Reverts: ev.Seq,
			}
			if rerr := l.record(ctx, revert); rerr != nil {
				l.log.Error("[Ledger] failed to record purchase revert",
					zap.Uint64("seq", ev.Seq), zap.Error(rerr))
				err = errors.Join(err, rerr)
			}
			return nil, err
		}
	}

	l.applyPurchase(ev)
	l.notify(*ev)
	l.log.Info("[Ledger] streams purchased",
		zap.Uint64("trackId", id),
		zap.String("listener", caller),
		zap.Uint64("streams", count),
		zap.Stringer("total", total),
		zap.Stringer("artistShare", artistShare),
		zap.Stringer("platformShare", platformShare))

	return &model.Receipt{
		Seq:           ev.Seq,
		TrackID:       id,
		Listener:      caller,
		StreamCount:   count,
		TotalCost:     total,
		ArtistShare:   artistShare,
		PlatformShare: platformShare,
		Timestamp:     ev.CreatedAt,
	}, nil
}

// checkAccumulators fails if any counter the purchase adds to would wrap.
// Artist totals are sums over a subset of the platform totals and are covered by them.
func (l *Ledger) checkAccumulators(t *model.Track, count uint64, total, fee model.Amount) error {
	checks := [][2]uint64{
		{t.TotalStreams, count},
		{uint64(t.TotalEarnings), uint64(total)},
		{l.platform.TotalStreams, count},
		{uint64(l.platform.TotalEarnings), uint64(total)},
		{uint64(l.platform.PlatformBalance), uint64(fee)},
	}
	for _, c := range checks {
		if _, err := addChecked(c[0], c[1]); err != nil {
			return fmt.Errorf("track %d accumulators: %w", t.ID, err)
		}
	}
	return nil
}

// refund returns pulled funds and the consumed allowance to the buyer
// after a failed settlement step.
func (l *Ledger) refund(ctx context.Context, buyer string, amount model.Amount, cause error) error {
	if err := l.token.Refund(ctx, l.cfg.LedgerAccount, l.cfg.LedgerAccount, buyer, amount); err != nil {
		l.log.Error("[Ledger] refund failed",
			zap.String("buyer", buyer), zap.Stringer("amount", amount), zap.Error(err))
		return errors.Join(cause, fmt.Errorf("refund %s to %s: %w", amount, buyer, err))
	}
	return cause
}

func mapPullError(err error, buyer string, amount model.Amount) error {
	if errors.Is(err, token.ErrInsufficientAllowance) {
		return fmt.Errorf("%w: pull %s from %s: %w", ErrInsufficientAllowance, amount, buyer, err)
	}
	return fmt.Errorf("%w: pull %s from %s: %w", ErrTransferFailed, amount, buyer, err)
}

func (l *Ledger) applyPurchase(ev *model.LedgerEvent) {
	t := l.tracks[ev.TrackID-1]
	t.TotalStreams += ev.StreamCount
	t.TotalEarnings += ev.Amount

	l.platform.TotalStreams += ev.StreamCount
	l.platform.TotalEarnings += ev.Amount
	l.platform.PlatformBalance += ev.Fee

	l.history.append(ev.TrackID, model.StreamPurchase{
		Listener:    ev.Account,
		StreamCount: ev.StreamCount,
		Amount:      ev.Amount,
		Timestamp:   ev.CreatedAt,
	})
}

package ledger

import (
	"context"
	"errors"
	"fmt"

	"FlowCash/model"

	"go.uber.org/zap"
)

func requireCaller(caller string) error {
	if caller == "" {
		return fmt.Errorf("%w: empty caller", ErrUnauthorized)
	}
	return nil
}

func (l *Ledger) requireAdmin(caller string) error {
	if caller == "" || caller != l.cfg.Admin {
		return fmt.Errorf("%w: %q is not the admin", ErrUnauthorized, caller)
	}
	return nil
}

// requireOwner reads the track's artist at call time. Requires l.mu held.
func (l *Ledger) requireOwner(caller string, id uint64) (*model.Track, error) {
	t, err := l.track(id)
	if err != nil {
		return nil, err
	}
	if caller == "" || caller != t.Artist {
		return nil, fmt.Errorf("%w: %q does not own track %d", ErrUnauthorized, caller, id)
	}
	return t, nil
}

// VerifyArtist sets the artist's verified flag. Admin only; setting the
// current value again changes nothing and records no event.
func (l *Ledger) VerifyArtist(ctx context.Context, caller, artist string, verified bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireAdmin(caller); err != nil {
		return err
	}
	if artist == "" {
		return fmt.Errorf("%w: empty artist", ErrInvalidInput)
	}
	if p, ok := l.artists[artist]; (ok && p.verified == verified) || (!ok && !verified) {
		return nil
	}

	ev := &model.LedgerEvent{
		Type:    model.EventArtistVerified,
		Caller:  caller,
		Account: artist,
		Flag:    verified,
	}
	return l.commit(ctx, ev, l.applyVerify)
}

func (l *Ledger) applyVerify(ev *model.LedgerEvent) {
	l.artist(ev.Account).verified = ev.Flag
}

// WithdrawPlatformFees transfers the whole accrued fee balance to the admin
// and returns the amount. A zero balance is a no-op returning 0.
func (l *Ledger) WithdrawPlatformFees(ctx context.Context, caller string) (model.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writable(); err != nil {
		return 0, err
	}
	if err := l.requireAdmin(caller); err != nil {
		return 0, err
	}
	amount := l.platform.PlatformBalance
	if amount == 0 {
		return 0, nil
	}

	ev := &model.LedgerEvent{
		Type:    model.EventFeesWithdrawn,
		Caller:  caller,
		Account: l.cfg.Admin,
		Amount:  amount,
	}
	if err := l.record(ctx, ev); err != nil {
		return 0, err
	}

	if err := l.token.Transfer(ctx, l.cfg.LedgerAccount, l.cfg.Admin, amount); err != nil {
		err = fmt.Errorf("%w: withdraw %s to %s: %w", ErrTransferFailed, amount, l.cfg.Admin, err)
		revert := &model.LedgerEvent{
			Type:    model.EventWithdrawReverted,
			Caller:  caller,
			Account: l.cfg.Admin,
			Amount:  amount,
			Reverts: ev.Seq,
		}
		if rerr := l.record(ctx, revert); rerr != nil {
			l.log.Error("[Ledger] failed to record withdraw revert",
				zap.Uint64("seq", ev.Seq), zap.Error(rerr))
			err = errors.Join(err, rerr)
		}
		return 0, err
	}

	l.applyWithdraw(ev)
	l.notify(*ev)
	l.log.Info("[Ledger] platform fees withdrawn",
		zap.String("admin", l.cfg.Admin), zap.Stringer("amount", amount), zap.Uint64("seq", ev.Seq))
	return amount, nil
}

func (l *Ledger) applyWithdraw(ev *model.LedgerEvent) {
	l.platform.PlatformBalance -= ev.Amount
}

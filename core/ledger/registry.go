package ledger

import (
	"context"
	"fmt"

	"FlowCash/model"

	"go.uber.org/zap"
)

// MintParams 铸造曲目所需的参数
type MintParams struct {
	Artist         string // 为空时为调用者本人；代他人铸造仅限管理员
	Title          string
	AudioHash      string
	CoverArtHash   string
	MetadataURI    string
	PricePerStream model.Amount
	Duration       uint32
	Genre          string
}

func (p MintParams) validate() error {
	switch {
	case p.Title == "":
		return fmt.Errorf("%w: empty title", ErrInvalidInput)
	case p.AudioHash == "":
		return fmt.Errorf("%w: empty audio hash", ErrInvalidInput)
	case p.CoverArtHash == "":
		return fmt.Errorf("%w: empty cover art hash", ErrInvalidInput)
	case p.Duration == 0:
		return fmt.Errorf("%w: zero duration", ErrInvalidInput)
	}
	return nil
}

// MintTrack creates a new active track owned by the artist and returns its id.
func (l *Ledger) MintTrack(ctx context.Context, caller string, p MintParams) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	if p.Artist == "" {
		p.Artist = caller
	}
	if p.Artist != caller && caller != l.cfg.Admin {
		return 0, fmt.Errorf("%w: %q cannot mint for %q", ErrUnauthorized, caller, p.Artist)
	}
	if err := p.validate(); err != nil {
		return 0, err
	}
	if err := l.checkPrice(p.PricePerStream); err != nil {
		return 0, err
	}

	ev := &model.LedgerEvent{
		Type:    model.EventTrackMinted,
		Caller:  caller,
		TrackID: uint64(len(l.tracks)) + 1,
		Account: p.Artist,
		Amount:  p.PricePerStream,
		Meta: model.TrackMeta{
			Title:        p.Title,
			AudioHash:    p.AudioHash,
			CoverArtHash: p.CoverArtHash,
			MetadataURI:  p.MetadataURI,
			Duration:     p.Duration,
			Genre:        p.Genre,
		},
	}
	if err := l.commit(ctx, ev, l.applyMint); err != nil {
		return 0, err
	}

	l.log.Info("[Ledger] track minted",
		zap.Uint64("trackId", ev.TrackID), zap.String("artist", p.Artist), zap.Stringer("price", p.PricePerStream))
	return ev.TrackID, nil
}

func (l *Ledger) applyMint(ev *model.LedgerEvent) {
	l.tracks = append(l.tracks, &model.Track{
		ID:             ev.TrackID,
		Artist:         ev.Account,
		Title:          ev.Meta.Title,
		AudioHash:      ev.Meta.AudioHash,
		CoverArtHash:   ev.Meta.CoverArtHash,
		MetadataURI:    ev.Meta.MetadataURI,
		PricePerStream: ev.Amount,
		Duration:       ev.Meta.Duration,
		Genre:          ev.Meta.Genre,
		IsActive:       true,
		CreatedAt:      ev.CreatedAt,
	})
	p := l.artist(ev.Account)
	p.tracks = append(p.tracks, ev.TrackID)
	l.platform.TotalTracks++
}

// UpdateTrackPrice sets a new price. Owner only.
func (l *Ledger) UpdateTrackPrice(ctx context.Context, caller string, id uint64, newPrice model.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.requireOwner(caller, id); err != nil {
		return err
	}
	if err := l.checkPrice(newPrice); err != nil {
		return err
	}

	ev := &model.LedgerEvent{
		Type:    model.EventPriceUpdated,
		Caller:  caller,
		TrackID: id,
		Amount:  newPrice,
	}
	return l.commit(ctx, ev, l.applyPrice)
}

func (l *Ledger) applyPrice(ev *model.LedgerEvent) {
	l.tracks[ev.TrackID-1].PricePerStream = ev.Amount
}

// ToggleTrackStatus flips the track between active and paused. Owner only.
func (l *Ledger) ToggleTrackStatus(ctx context.Context, caller string, id uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, err := l.requireOwner(caller, id)
	if err != nil {
		return false, err
	}

	ev := &model.LedgerEvent{
		Type:    model.EventStatusToggled,
		Caller:  caller,
		TrackID: id,
		Flag:    !t.IsActive,
	}
	if err := l.commit(ctx, ev, l.applyToggle); err != nil {
		return t.IsActive, err
	}
	return ev.Flag, nil
}

func (l *Ledger) applyToggle(ev *model.LedgerEvent) {
	l.tracks[ev.TrackID-1].IsActive = ev.Flag
}

// LikeTrack records a like by caller. A second like by the same identity
// fails with ErrAlreadyLiked.
func (l *Ledger) LikeTrack(ctx context.Context, caller string, id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := requireCaller(caller); err != nil {
		return err
	}
	if _, err := l.track(id); err != nil {
		return err
	}
	if _, ok := l.likes[likeKey{id, caller}]; ok {
		return fmt.Errorf("track %d by %q: %w", id, caller, ErrAlreadyLiked)
	}

	ev := &model.LedgerEvent{
		Type:    model.EventTrackLiked,
		Caller:  caller,
		TrackID: id,
		Account: caller,
	}
	return l.commit(ctx, ev, l.applyLike)
}

func (l *Ledger) applyLike(ev *model.LedgerEvent) {
	l.likes[likeKey{ev.TrackID, ev.Account}] = struct{}{}
	l.tracks[ev.TrackID-1].Likes++
}

// UnlikeTrack removes caller's like.
func (l *Ledger) UnlikeTrack(ctx context.Context, caller string, id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := requireCaller(caller); err != nil {
		return err
	}
	if _, err := l.track(id); err != nil {
		return err
	}
	if _, ok := l.likes[likeKey{id, caller}]; !ok {
		return fmt.Errorf("track %d by %q: %w", id, caller, ErrNotLiked)
	}

	ev := &model.LedgerEvent{
		Type:    model.EventTrackUnliked,
		Caller:  caller,
		TrackID: id,
		Account: caller,
	}
	return l.commit(ctx, ev, l.applyUnlike)
}

func (l *Ledger) applyUnlike(ev *model.LedgerEvent) {
	delete(l.likes, likeKey{ev.TrackID, ev.Account})
	l.tracks[ev.TrackID-1].Likes--
}

// HasLiked reports whether liker currently likes the track.
func (l *Ledger) HasLiked(id uint64, liker string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.likes[likeKey{id, liker}]
	return ok
}

// GetTrack returns a copy of the track.
func (l *Ledger) GetTrack(id uint64) (model.Track, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, err := l.track(id)
	if err != nil {
		return model.Track{}, err
	}
	return *t, nil
}

// CurrentTrackID returns the id of the most recently minted track, 0 if none.
func (l *Ledger) CurrentTrackID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.tracks))
}

package ledger

import (
	"FlowCash/core/token"
	"FlowCash/model"
)

// GetArtistStats sums the artist's tracks at call time.
func (l *Ledger) GetArtistStats(artist string) model.ArtistStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s model.ArtistStats
	p, ok := l.artists[artist]
	if !ok {
		return s
	}
	s.IsVerified = p.verified
	s.TotalTracks = uint64(len(p.tracks))
	for _, id := range p.tracks {
		t := l.tracks[id-1]
		s.TotalStreams += t.TotalStreams
		s.TotalEarnings += t.TotalEarnings
		s.TotalLikes += t.Likes
	}
	return s
}

// GetArtistTracks returns the artist's track ids in minting order.
func (l *Ledger) GetArtistTracks(artist string) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.artists[artist]
	if !ok {
		return []uint64{}
	}
	return append([]uint64(nil), p.tracks...)
}

func (l *Ledger) GetPlatformStats() model.PlatformStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.platform
}

// Info 账本基础信息
type Info struct {
	FeeBasisPoints uint64       `json:"feeBasisPoints"`
	MinPrice       model.Amount `json:"minPricePerStream"`
	MaxPrice       model.Amount `json:"maxPricePerStream"`
	CurrentTrackID uint64       `json:"currentTrackId"`
	Admin          string       `json:"admin"`
	LedgerAccount  string       `json:"ledgerAccount"`
	Token          token.Info   `json:"token"`
}

func (l *Ledger) Info() Info {
	info := Info{
		FeeBasisPoints: l.cfg.FeeBasisPoints,
		MinPrice:       l.cfg.MinPrice,
		MaxPrice:       l.cfg.MaxPrice,
		CurrentTrackID: l.CurrentTrackID(),
		Admin:          l.cfg.Admin,
		LedgerAccount:  l.cfg.LedgerAccount,
		Token:          token.Info{Decimals: model.AmountDecimals},
	}
	if ti, ok := l.token.(interface{ Info() token.Info }); ok {
		info.Token = ti.Info()
	}
	return info
}

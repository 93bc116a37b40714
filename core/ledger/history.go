package ledger

import "FlowCash/model"

// purchaseLog 购买记录：全局只追加数组 + 按曲目的下标索引
type purchaseLog struct {
	entries []model.StreamPurchase
	byTrack map[uint64][]int
}

func newPurchaseLog() purchaseLog {
	return purchaseLog{byTrack: make(map[uint64][]int)}
}

func (p *purchaseLog) append(trackID uint64, e model.StreamPurchase) {
	p.entries = append(p.entries, e)
	p.byTrack[trackID] = append(p.byTrack[trackID], len(p.entries)-1)
}

// GetTrackStreamHistory returns the track's purchases in purchase order.
func (l *Ledger) GetTrackStreamHistory(id uint64) ([]model.StreamPurchase, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.track(id); err != nil {
		return nil, err
	}
	idx := l.history.byTrack[id]
	out := make([]model.StreamPurchase, len(idx))
	for i, n := range idx {
		out[i] = l.history.entries[n]
	}
	return out, nil
}

// HistoryIterator walks the purchases a track had when the iterator was
// created. It can be restarted with Reset and never modifies the log.
type HistoryIterator struct {
	l   *Ledger
	idx []int
	pos int
}

// StreamHistoryIterator returns an iterator over the track's purchases.
func (l *Ledger) StreamHistoryIterator(id uint64) (*HistoryIterator, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.track(id); err != nil {
		return nil, err
	}
	idx := l.history.byTrack[id]
	// 截断容量，后续追加不会影响快照
	return &HistoryIterator{l: l, idx: idx[:len(idx):len(idx)]}, nil
}

// Next returns the next entry, or false once the snapshot is exhausted.
func (it *HistoryIterator) Next() (model.StreamPurchase, bool) {
	if it.pos >= len(it.idx) {
		return model.StreamPurchase{}, false
	}
	it.l.mu.RLock()
	e := it.l.history.entries[it.idx[it.pos]]
	it.l.mu.RUnlock()
	it.pos++
	return e, true
}

func (it *HistoryIterator) Reset() {
	it.pos = 0
}

// Len is the number of entries in the snapshot.
func (it *HistoryIterator) Len() int {
	return len(it.idx)
}

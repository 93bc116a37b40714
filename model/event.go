package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// EventType 账本事件类型
type EventType string

const (
	EventTrackMinted      EventType = "track_minted"
	EventPriceUpdated     EventType = "price_updated"
	EventStatusToggled    EventType = "status_toggled"
	EventTrackLiked       EventType = "track_liked"
	EventTrackUnliked     EventType = "track_unliked"
	EventStreamsPurchased EventType = "streams_purchased"
	EventPurchaseReverted EventType = "purchase_reverted"
	EventArtistVerified   EventType = "artist_verified"
	EventFeesWithdrawn    EventType = "fees_withdrawn"
	EventWithdrawReverted EventType = "withdraw_reverted"
)

// IsRevert reports whether the event cancels an earlier one.
func (t EventType) IsRevert() bool {
	return t == EventPurchaseReverted || t == EventWithdrawReverted
}

// TrackMeta 铸造事件携带的曲目元数据，以 JSON 存储
type TrackMeta struct {
	Title        string `json:"title"`
	AudioHash    string `json:"audioHash"`
	CoverArtHash string `json:"coverArtHash"`
	MetadataURI  string `json:"metadataUri"`
	Duration     uint32 `json:"duration"`
	Genre        string `json:"genre"`
}

// Scan 实现 sql.Scanner 接口
func (m *TrackMeta) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*m = TrackMeta{}
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*m = TrackMeta{}
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*m = TrackMeta{}
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Value 实现 driver.Valuer 接口
func (m TrackMeta) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// LedgerEvent 账本日志中的一条记录，按 Seq 严格递增
type LedgerEvent struct {
	Seq         uint64    `json:"seq" gorm:"primaryKey;autoIncrement:false"`
	Type        EventType `json:"type" gorm:"size:32;not null;index"`
	Caller      string    `json:"caller" gorm:"size:128;not null"`
	TrackID     uint64    `json:"trackId,omitempty" gorm:"index"`
	Account     string    `json:"account,omitempty" gorm:"size:128;index"` // artist / listener / admin
	Amount      Amount    `json:"amount,omitempty"`
	Fee         Amount    `json:"fee,omitempty"` // platform share of a purchase
	StreamCount uint64    `json:"streamCount,omitempty"`
	Flag        bool      `json:"flag,omitempty"`
	Reverts     uint64    `json:"reverts,omitempty"` // seq of the event cancelled by this one
	Meta        TrackMeta `json:"meta,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName 指定表名
func (LedgerEvent) TableName() string {
	return "ledger_events"
}

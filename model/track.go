package model

import "time"

// Track represents a minted track record in the ledger.
type Track struct {
	ID             uint64    `json:"id"`
	Artist         string    `json:"artist"`
	Title          string    `json:"title"`
	AudioHash      string    `json:"audioHash"`    // content hash of the audio payload
	CoverArtHash   string    `json:"coverArtHash"` // content hash of the cover art
	MetadataURI    string    `json:"metadataUri"`
	PricePerStream Amount    `json:"pricePerStream"`
	Duration       uint32    `json:"duration"` // Duration in seconds
	Genre          string    `json:"genre"`
	TotalStreams   uint64    `json:"totalStreams"`
	TotalEarnings  Amount    `json:"totalEarnings"`
	IsActive       bool      `json:"isActive"`
	Likes          uint64    `json:"likes"`
	CreatedAt      time.Time `json:"createdAt"`
}

// StreamPurchase is one entry of a track's purchase history.
type StreamPurchase struct {
	Listener    string    `json:"listener"`
	StreamCount uint64    `json:"streamCount"`
	Amount      Amount    `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

// ArtistStats 艺人维度的汇总数据，读取时按其名下曲目实时求和
type ArtistStats struct {
	TotalTracks   uint64 `json:"totalTracks"`
	TotalStreams  uint64 `json:"totalStreams"`
	TotalEarnings Amount `json:"totalEarnings"`
	TotalLikes    uint64 `json:"totalLikes"`
	IsVerified    bool   `json:"isVerified"`
}

// PlatformStats 平台维度的累计数据
type PlatformStats struct {
	TotalTracks     uint64 `json:"totalTracks"`
	TotalStreams    uint64 `json:"totalStreams"`
	TotalEarnings   Amount `json:"totalEarnings"`   // 累计交易总额（分账前）
	PlatformBalance Amount `json:"platformBalance"` // 当前可提取的平台手续费
}

// Receipt is returned by a successful stream purchase.
type Receipt struct {
	Seq           uint64    `json:"seq"`
	TrackID       uint64    `json:"trackId"`
	Listener      string    `json:"listener"`
	StreamCount   uint64    `json:"streamCount"`
	TotalCost     Amount    `json:"totalCost"`
	ArtistShare   Amount    `json:"artistShare"`
	PlatformShare Amount    `json:"platformShare"`
	Timestamp     time.Time `json:"timestamp"`
}

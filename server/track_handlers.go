package server

import (
	"net/http"
	"strconv"

	"FlowCash/core/ledger"
	"FlowCash/logger"
	"FlowCash/model"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// MintTrackRequest 铸造曲目请求
type MintTrackRequest struct {
	Artist         string       `json:"artist,omitempty"` // 仅管理员可代他人铸造
	Title          string       `json:"title"`
	AudioHash      string       `json:"audioHash"`
	CoverArtHash   string       `json:"coverArtHash"`
	MetadataURI    string       `json:"metadataUri"`
	PricePerStream model.Amount `json:"pricePerStream"`
	Duration       uint32       `json:"duration"`
	Genre          string       `json:"genre"`
}

// TrackResponse 曲目详情，附带当前调用者是否已点赞
type TrackResponse struct {
	model.Track
	Liked bool `json:"liked"`
}

type priceRequest struct {
	PricePerStream model.Amount `json:"pricePerStream"`
}

type purchaseRequest struct {
	StreamCount uint64 `json:"streamCount"`
}

// MintTrackHandler POST /api/tracks
func (s *Server) MintTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req MintTrackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.ledger.MintTrack(r.Context(), caller(r), ledger.MintParams{
		Artist:         req.Artist,
		Title:          req.Title,
		AudioHash:      req.AudioHash,
		CoverArtHash:   req.CoverArtHash,
		MetadataURI:    req.MetadataURI,
		PricePerStream: req.PricePerStream,
		Duration:       req.Duration,
		Genre:          req.Genre,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	track, err := s.ledger.GetTrack(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

// GetTrackHandler GET /api/tracks/{id}
func (s *Server) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, err := trackID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	track, err := s.ledger.GetTrack(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := TrackResponse{Track: track}
	if c := caller(r); c != "" {
		resp.Liked = s.ledger.HasLiked(id, c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdatePriceHandler PUT /api/tracks/{id}/price
func (s *Server) UpdatePriceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := trackID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req priceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.UpdateTrackPrice(r.Context(), caller(r), id, req.PricePerStream); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "pricePerStream": req.PricePerStream})
}

// ToggleStatusHandler POST /api/tracks/{id}/toggle
func (s *Server) ToggleStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := trackID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	active, err := s.ledger.ToggleTrackStatus(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "isActive": active})
}

// LikeHandler POST /api/tracks/{id}/like
func (s *Server) LikeHandler(w http.ResponseWriter, r *http.Request) {
	s.setLike(w, r, true)
}

// UnlikeHandler DELETE /api/tracks/{id}/like
func (s *Server) UnlikeHandler(w http.ResponseWriter, r *http.Request) {
	s.setLike(w, r, false)
}

func (s *Server) setLike(w http.ResponseWriter, r *http.Request, like bool) {
	id, err := trackID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if like {
		err = s.ledger.LikeTrack(r.Context(), caller(r), id)
	} else {
		err = s.ledger.UnlikeTrack(r.Context(), caller(r), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	track, err := s.ledger.GetTrack(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "liked": like, "likes": track.Likes})
}

// PurchaseStreamsHandler POST /api/tracks/{id}/streams
func (s *Server) PurchaseStreamsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := trackID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req purchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := s.ledger.PurchaseStreams(r.Context(), caller(r), id, req.StreamCount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("[Streams] 购买成功",
		logger.Uint64("track", id),
		logger.String("listener", receipt.Listener),
		logger.Uint64("count", receipt.StreamCount),
		logger.Stringer("cost", receipt.TotalCost))
	writeJSON(w, http.StatusOK, receipt)
}

// StreamHistoryHandler GET /api/tracks/{id}/history?offset=&limit=
func (s *Server) StreamHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := trackID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	it, err := s.ledger.StreamHistoryIterator(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total := it.Len()
	entries := make([]model.StreamPurchase, 0, min(limit, max(total-offset, 0)))
	for i := 0; len(entries) < limit; i++ {
		entry, ok := it.Next()
		if !ok {
			break
		}
		if i >= offset {
			entries = append(entries, entry)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trackId": id,
		"total":   total,
		"offset":  offset,
		"entries": entries,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badQuery(key)
	}
	return n, nil
}

package server

import (
	"net/http"

	"FlowCash/logger"
	"FlowCash/model"

	"github.com/gorilla/mux"
)

type verifyRequest struct {
	Verified bool `json:"verified"`
}

// InfoHandler 返回账本配置与代币信息
func (s *Server) InfoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Info())
}

// ArtistStatsHandler GET /api/artists/{address}/stats
func (s *Server) ArtistStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.GetArtistStats(mux.Vars(r)["address"]))
}

// ArtistTracksHandler GET /api/artists/{address}/tracks
func (s *Server) ArtistTracksHandler(w http.ResponseWriter, r *http.Request) {
	artist := mux.Vars(r)["address"]
	ids := s.ledger.GetArtistTracks(artist)
	tracks := make([]model.Track, 0, len(ids))
	for _, id := range ids {
		t, err := s.ledger.GetTrack(id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tracks = append(tracks, t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"artist": artist, "trackIds": ids, "tracks": tracks})
}

// VerifyArtistHandler PUT /api/artists/{address}/verified（管理员）
func (s *Server) VerifyArtistHandler(w http.ResponseWriter, r *http.Request) {
	artist := mux.Vars(r)["address"]
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.VerifyArtist(r.Context(), caller(r), artist, req.Verified); err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("[Artist] 认证状态已更新", logger.String("artist", artist), logger.Bool("verified", req.Verified))
	writeJSON(w, http.StatusOK, s.ledger.GetArtistStats(artist))
}

// PlatformStatsHandler GET /api/platform/stats
func (s *Server) PlatformStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.GetPlatformStats())
}

// WithdrawHandler POST /api/platform/withdraw（管理员）
func (s *Server) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	amount, err := s.ledger.WithdrawPlatformFees(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"withdrawn": amount, "to": s.ledger.Config().Admin})
}

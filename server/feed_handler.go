package server

import (
	"net/http"
	"strconv"

	"FlowCash/core/feed"
	"FlowCash/logger"
	"FlowCash/model"

	"github.com/gorilla/websocket"
)

const maxBacklog = 200

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 与 CORS 策略一致，允许所有来源
	},
}

// EventsWebSocketHandler GET /ws/events?trackId=&account=&since=
// since 为最后收到的 seq，连接建立后先补发之后的事件
func (s *Server) EventsWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "event feed is not enabled")
		return
	}

	q := r.URL.Query()
	var filter feed.Filter
	if v := q.Get("trackId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, r, badQuery("trackId"))
			return
		}
		filter.TrackID = id
	}
	filter.Account = q.Get("account")

	var load func() ([]model.LedgerEvent, error)
	if v := q.Get("since"); v != "" {
		since, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, r, badQuery("since"))
			return
		}
		if s.events != nil {
			ctx := r.Context()
			load = func() ([]model.LedgerEvent, error) {
				return s.events.ListAfter(ctx, since, maxBacklog)
			}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[Feed] WebSocket 升级失败", logger.ErrorField(err))
		return
	}
	// 先注册再读取补发事件，期间提交的事件按 seq 去重后送达
	if _, err := s.hub.Attach(conn, filter, load); err != nil {
		logger.Warn("[Feed] 补发事件读取失败", logger.ErrorField(err))
		return
	}
	logger.Debug("[Feed] 客户端已连接",
		logger.Uint64("trackId", filter.TrackID),
		logger.String("account", filter.Account))
}

// TrackEventsHandler GET /api/tracks/{id}/events
func (s *Server) TrackEventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "journal is not enabled")
		return
	}
	id, err := trackID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.ledger.GetTrack(id); err != nil {
		writeError(w, r, err)
		return
	}
	events, err := s.events.ListByTrack(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trackId": id, "events": events})
}

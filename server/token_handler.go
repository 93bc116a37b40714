package server

import (
	"fmt"
	"net/http"

	"FlowCash/core/ledger"
	"FlowCash/logger"
	"FlowCash/model"

	"github.com/gorilla/mux"
)

// ApproveRequest 授权额度请求，spender 为空时授权给账本账户
type ApproveRequest struct {
	Spender string       `json:"spender,omitempty"`
	Amount  model.Amount `json:"amount"`
}

// TokenMintRequest 管理员为账户发放测试代币
type TokenMintRequest struct {
	To     string       `json:"to"`
	Amount model.Amount `json:"amount"`
}

// BalanceHandler GET /api/token/balance/{address}
func (s *Server) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["address"]
	balance, err := s.token.BalanceOf(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	allowance, err := s.token.Allowance(r.Context(), owner, s.ledger.Config().LedgerAccount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":   owner,
		"balance":   balance,
		"allowance": allowance,
		"symbol":    s.token.Info().Symbol,
	})
}

// ApproveHandler POST /api/token/approve
func (s *Server) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Spender == "" {
		req.Spender = s.ledger.Config().LedgerAccount
	}
	owner := caller(r)
	if err := s.token.Approve(r.Context(), owner, req.Spender, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("[Token] 授权额度已设置",
		logger.String("owner", owner), logger.String("spender", req.Spender), logger.Stringer("amount", req.Amount))
	writeJSON(w, http.StatusOK, map[string]interface{}{"owner": owner, "spender": req.Spender, "allowance": req.Amount})
}

// TokenMintHandler POST /api/token/mint（管理员，开发环境充值）
func (s *Server) TokenMintHandler(w http.ResponseWriter, r *http.Request) {
	if c := caller(r); c != s.ledger.Config().Admin {
		writeError(w, r, fmt.Errorf("%w: %q is not admin", ledger.ErrUnauthorized, c))
		return
	}
	var req TokenMintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.token.Mint(r.Context(), req.To, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := s.token.BalanceOf(r.Context(), req.To)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("[Token] 已发放代币", logger.String("to", req.To), logger.Stringer("amount", req.Amount))
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": req.To, "balance": balance})
}

package server

import (
	"net/http"
	"strings"

	"FlowCash/core/auth"
	"FlowCash/logger"
	"FlowCash/model"
)

// CredentialsRequest 注册与登录共用的请求体
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse 认证成功后返回 token 与账号信息
type AuthResponse struct {
	Token   string         `json:"token"`
	Account *model.Account `json:"account"`
}

// RegisterHandler 创建账号并分配账本地址
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeErrorMessage(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := model.NewAccount(req.Username, hash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.accounts.Create(r.Context(), account); err != nil {
		logger.Warn("[Register] 创建账号失败", logger.String("username", req.Username), logger.ErrorField(err))
		writeError(w, r, err)
		return
	}

	s.respondWithToken(w, r, http.StatusCreated, account)
	logger.Info("[Register] 注册成功",
		logger.String("username", account.Username), logger.String("address", account.Address))
}

// LoginHandler 校验密码并签发 token
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeErrorMessage(w, http.StatusBadRequest, "username and password are required")
		return
	}

	account, err := s.accounts.GetByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if account == nil || !auth.VerifyPassword(req.Password, account.PasswordHash) {
		logger.Warn("[Login] 用户名或密码错误", logger.String("username", req.Username))
		writeErrorMessage(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	s.respondWithToken(w, r, http.StatusOK, account)
	logger.Info("[Login] 登录成功", logger.String("username", account.Username))
}

func (s *Server) respondWithToken(w http.ResponseWriter, r *http.Request, status int, account *model.Account) {
	token, err := s.tokens.GenerateToken(account.ID, account.Username, account.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, Account: account})
}

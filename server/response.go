package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"FlowCash/core/ledger"
	"FlowCash/core/token"
	"FlowCash/logger"
	"FlowCash/model"
	"FlowCash/repository"

	"github.com/gorilla/mux"
)

const maxJSONBody = 1 << 20

// errorResponse 统一错误响应体
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[Server] failed to encode response", logger.ErrorField(err))
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor 账本/代币错误到 HTTP 状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInvalidPrice),
		errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, ledger.ErrAlreadyLiked),
		errors.Is(err, ledger.ErrNotLiked),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrInvalidAccount),
		errors.Is(err, model.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientAllowance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, ledger.ErrReadOnly):
		return http.StatusServiceUnavailable
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError 按错误类型写响应；5xx 不向客户端暴露内部细节
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("[Server] request failed",
			logger.String("path", r.URL.Path), logger.Int("status", status), logger.ErrorField(err))
		if status == http.StatusInternalServerError {
			writeErrorMessage(w, status, "internal server error")
			return
		}
	} else {
		logger.Debug("[Server] request rejected",
			logger.String("path", r.URL.Path), logger.Int("status", status), logger.ErrorField(err))
	}
	writeErrorMessage(w, status, err.Error())
}

// decodeJSON 解析请求体，拒绝未知字段
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", ledger.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", ledger.ErrInvalidInput, err)
	}
	return nil
}

func trackID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid track id", ledger.ErrInvalidInput)
	}
	return id, nil
}

func caller(r *http.Request) string {
	c, _ := CallerFromContext(r.Context())
	return c
}

func badQuery(key string) error {
	return fmt.Errorf("%w: invalid query parameter %q", ledger.ErrInvalidInput, key)
}

package ledger

import (
	"errors"
	"fmt"
)

// 账本错误类型，调用方通过 errors.Is 判断
var (
	ErrNotFound              = errors.New("track not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrInvalidInput          = errors.New("invalid input")
	ErrAlreadyLiked          = errors.New("already liked")
	ErrNotLiked              = errors.New("not liked")
	ErrOverflow              = errors.New("arithmetic overflow")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrTransferFailed        = errors.New("transfer failed")
	// ErrReadOnly 当前实例是只读跟随者，写操作由持有写锁的实例处理
	ErrReadOnly = errors.New("ledger is read-only on this instance")

	// ErrTrackInactive is an ErrInvalidInput: purchases against a paused track.
	ErrTrackInactive = fmt.Errorf("track inactive: %w", ErrInvalidInput)
)

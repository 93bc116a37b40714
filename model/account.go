package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account 平台账号，每个账号持有一个账本身份（地址）
type Account struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Username     string    `json:"username" gorm:"size:64;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"` // Not exposed in API responses
	Address      string    `json:"address" gorm:"size:42;uniqueIndex;not null"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Account) TableName() string {
	return "accounts"
}

// NewAccount builds an account with a fresh id and ledger address.
func NewAccount(username, passwordHash string) (*Account, error) {
	addr, err := NewAddress()
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Address:      addr,
	}, nil
}

// NewAddress 生成 0x 开头的 40 位十六进制地址
func NewAddress() (string, error) {
	var b [20]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate address: %w", err)
	}
	return "0x" + hex.EncodeToString(b[:]), nil
}

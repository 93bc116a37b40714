package repository

import (
	"context"
	"errors"
	"fmt"

	"FlowCash/model"

	"gorm.io/gorm"
)

// AccountRepository 账号数据访问接口
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	GetByAddress(ctx context.Context, address string) (*model.Account, error)
}

// gormAccountRepository GORM 实现
type gormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository 创建 GORM 账号仓库
func NewGormAccountRepository(db *gorm.DB) AccountRepository {
	return &gormAccountRepository{db: db}
}

// Create 创建账号，用户名或地址已存在时返回 ErrDuplicate
func (r *gormAccountRepository) Create(ctx context.Context, account *model.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("account %q: %w", account.Username, ErrDuplicate)
		}
		return err
	}
	return nil
}

// GetByUsername 不存在时返回 nil, nil
func (r *gormAccountRepository) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *gormAccountRepository) GetByAddress(ctx context.Context, address string) (*model.Account, error) {
	return r.first(ctx, "address = ?", address)
}

func (r *gormAccountRepository) first(ctx context.Context, query string, arg interface{}) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where(query, arg).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

package repository

import (
	"context"
	"fmt"

	"FlowCash/model"

	"gorm.io/gorm"
)

// EventRepository 账本事件日志，只追加
type EventRepository interface {
	Append(ctx context.Context, ev *model.LedgerEvent) error
	List(ctx context.Context) ([]model.LedgerEvent, error)
	ListAfter(ctx context.Context, seq uint64, limit int) ([]model.LedgerEvent, error)
	ListByTrack(ctx context.Context, trackID uint64) ([]model.LedgerEvent, error)
	LastSeq(ctx context.Context) (uint64, error)
}

// gormEventRepository GORM 实现
type gormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository 创建 GORM 事件仓库
func NewGormEventRepository(db *gorm.DB) EventRepository {
	return &gormEventRepository{db: db}
}

// Append 写入一条事件，seq 重复时返回 ErrDuplicate
func (r *gormEventRepository) Append(ctx context.Context, ev *model.LedgerEvent) error {
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("event seq %d: %w", ev.Seq, ErrDuplicate)
		}
		return err
	}
	return nil
}

// List 按 seq 顺序返回全部事件
func (r *gormEventRepository) List(ctx context.Context) ([]model.LedgerEvent, error) {
	var events []model.LedgerEvent
	err := r.db.WithContext(ctx).Order("seq ASC").Find(&events).Error
	return events, err
}

// ListAfter 分页读取 seq 之后的事件，用于 WebSocket 补发
func (r *gormEventRepository) ListAfter(ctx context.Context, seq uint64, limit int) ([]model.LedgerEvent, error) {
	var events []model.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("seq > ?", seq).
		Order("seq ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormEventRepository) ListByTrack(ctx context.Context, trackID uint64) ([]model.LedgerEvent, error) {
	var events []model.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("seq ASC").
		Find(&events).Error
	return events, err
}

func (r *gormEventRepository) LastSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	err := r.db.WithContext(ctx).Model(&model.LedgerEvent{}).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&seq).Error
	return seq, err
}

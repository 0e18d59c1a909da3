package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// AccountRepo 池化账号凭据读写
type AccountRepo interface {
	ListPooledAccounts(ctx context.Context) ([]Account, error)
	UpdateAccessToken(ctx context.Context, uid, token string) error
}

// PushRepo 推送订阅查询
type PushRepo interface {
	FindByTarget(ctx context.Context, targetUID string) (*PushSubscription, error)
}

// GameLogRepo 对局索引
type GameLogRepo interface {
	Exists(ctx context.Context, uuid string) (bool, error)
	Insert(ctx context.Context, entry *GameLogIndex) error
}

// Data 持久层句柄集合
type Data struct {
	db *gorm.DB
}

// NewData 连接postgres并建表
func NewData(dsn string) (*Data, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Data{db: db}, nil
}

func NewDataWithDB(db *gorm.DB) *Data { return &Data{db: db} }

func (d *Data) Accounts() AccountRepo { return &accountRepo{db: d.db} }
func (d *Data) Pushes() PushRepo      { return &pushRepo{db: d.db} }
func (d *Data) GameLogs() GameLogRepo { return &gameLogRepo{db: d.db} }

type accountRepo struct {
	db *gorm.DB
}

func (r *accountRepo) ListPooledAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := r.db.WithContext(ctx).Order("id").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("store: list accounts: %w", err)
	}
	return accounts, nil
}

func (r *accountRepo) UpdateAccessToken(ctx context.Context, uid, token string) error {
	res := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("uid = ?", uid).
		Update("access_token", token)
	if res.Error != nil {
		return fmt.Errorf("store: update access token: %w", res.Error)
	}
	return nil
}

type pushRepo struct {
	db *gorm.DB
}

func (r *pushRepo) FindByTarget(ctx context.Context, targetUID string) (*PushSubscription, error) {
	var sub PushSubscription
	err := r.db.WithContext(ctx).Where("target_uid = ?", targetUID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find push subscription: %w", err)
	}
	return &sub, nil
}

type gameLogRepo struct {
	db *gorm.DB
}

func (r *gameLogRepo) Exists(ctx context.Context, uuid string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&GameLogIndex{}).Where("uuid = ?", uuid).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: game log exists: %w", err)
	}
	return count > 0, nil
}

func (r *gameLogRepo) Insert(ctx context.Context, entry *GameLogIndex) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "uuid"}}, DoNothing: true}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("store: insert game log: %w", err)
	}
	return nil
}

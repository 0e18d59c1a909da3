package store

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RecordArchive 对局详情档案 取谱前先查这里 避免重复拉取上游
type RecordArchive interface {
	Exists(ctx context.Context, gameID string) (bool, error)
	Store(ctx context.Context, gameID string, record []byte) error
	Load(ctx context.Context, gameID string) ([]byte, error)
}

const (
	archiveKeyPrefix = "majs:paipu:"

	defaultRedisHost = "127.0.0.1"
	defaultRedisPort = 6379
	defaultPoolSize  = 10
	defaultMinIdle   = 5
	defaultMaxIdle   = 10
)

// RedisOption redis客户端配置函数
type RedisOption func(*redis.Options)

func WithAddress(addr string) RedisOption {
	return func(o *redis.Options) {
		if _, _, err := net.SplitHostPort(addr); err == nil {
			o.Addr = addr
		}
	}
}

func WithPassword(pass string) RedisOption {
	return func(o *redis.Options) { o.Password = pass }
}

func WithDB(db int) RedisOption {
	return func(o *redis.Options) {
		if db >= 0 {
			o.DB = db
		}
	}
}

// NewRedisClient 创建redis客户端
func NewRedisClient(opts ...RedisOption) *redis.Client {
	options := &redis.Options{
		Addr:            net.JoinHostPort(defaultRedisHost, strconv.Itoa(defaultRedisPort)),
		PoolSize:        defaultPoolSize,
		MinIdleConns:    defaultMinIdle,
		MaxIdleConns:    defaultMaxIdle,
		ConnMaxLifetime: 2 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(options)
	}
	return redis.NewClient(options)
}

type redisArchive struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRecordArchive redis实现 ttl<=0表示永久保留
func NewRecordArchive(rdb *redis.Client, ttl time.Duration) RecordArchive {
	return &redisArchive{rdb: rdb, ttl: ttl}
}

func (a *redisArchive) key(gameID string) string {
	return archiveKeyPrefix + gameID
}

func (a *redisArchive) Exists(ctx context.Context, gameID string) (bool, error) {
	n, err := a.rdb.Exists(ctx, a.key(gameID)).Result()
	if err != nil {
		return false, fmt.Errorf("store: archive exists: %w", err)
	}
	return n > 0, nil
}

func (a *redisArchive) Store(ctx context.Context, gameID string, record []byte) error {
	if err := a.rdb.Set(ctx, a.key(gameID), record, a.ttl).Err(); err != nil {
		return fmt.Errorf("store: archive store: %w", err)
	}
	return nil
}

func (a *redisArchive) Load(ctx context.Context, gameID string) ([]byte, error) {
	data, err := a.rdb.Get(ctx, a.key(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: archive load: %w", err)
	}
	return data, nil
}

// Package store holds the bridge's persistence collaborators: the pooled
// account / push subscription / game-log tables (postgres via gorm) and the
// fetched-record archive (redis).
package store

import (
	"time"

	"gorm.io/gorm"
)

// 登录方式
const (
	LoginTypePassword = 0 // 账密(或其派生的access token)
	LoginTypeYostar   = 7 // Yostar第三方OAuth
)

// Account 池化账号凭据
type Account struct {
	ID          uint   `gorm:"primarykey"`
	UID         string `gorm:"uniqueIndex;size:32"` // 平台account_id
	Username    string `gorm:"size:128"`
	Password    string `gorm:"size:128"` // HMAC处理后的密文
	AccessToken string `gorm:"size:256"`
	LoginType   int
	Token       string `gorm:"size:256"` // Yostar渠道token
	Lang        string `gorm:"size:8"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// 推送开关取值 PushID还可以是群组id
const (
	PushOff    = "off"
	PushDirect = "on"
)

// PushSubscription 某个游戏账号的事件推送目标
type PushSubscription struct {
	ID        uint   `gorm:"primarykey"`
	TargetUID string `gorm:"uniqueIndex;size:32"` // 游戏侧account_id
	BotID     string `gorm:"size:64"`
	UserID    string `gorm:"size:64"`
	PushID    string `gorm:"size:64"` // off/on/<group id>
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GameLogIndex 已记录的对局索引
type GameLogIndex struct {
	ID           uint   `gorm:"primarykey"`
	UUID         string `gorm:"uniqueIndex;size:64"`
	AccountID    string `gorm:"size:32"`
	Category     int
	CategoryName string `gorm:"size:32"`
	CreatedAt    time.Time
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &PushSubscription{}, &GameLogIndex{})
}

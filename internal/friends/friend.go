// Package friends keeps the in-memory projection of one account's friend
// list: who is online and which game they are in. It is mutated only by
// presence/profile notifications; request traffic never writes here.
package friends

import (
	"fmt"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/rank"
)

// GameRef 一局进行中对局的引用
type GameRef struct {
	Category int64 // 1歹人场 2段位场 4比赛场
	ModeID   int64
	UUID     string
}

// FriendState 单个好友的投影
type FriendState struct {
	AccountID  int64
	Nickname   string
	Level      rank.Level // 四麻段位
	Level3     rank.Level // 三麻段位
	IsOnline   bool
	LoginTime  int64
	LogoutTime int64
	Playing    *GameRef // nil表示不在对局中
}

// Presence 状态增量 对应AccountActiveState
type Presence struct {
	IsOnline   bool
	LoginTime  int64
	LogoutTime int64
	Playing    *GameRef
}

// Profile 资料增量 对应PlayerBaseView 总是整体替换
type Profile struct {
	Nickname string
	Level    rank.Level
	Level3   rank.Level
}

// FromProto 把解码后的Friend消息映射成FriendState
// 在边界处整体校验 上游数据畸形时立刻失败 不让半初始化对象扩散
func FromProto(m *protocol.Message) (*FriendState, error) {
	base := m.Msg("base")
	accountID := base.Int("account_id")
	if accountID == 0 {
		return nil, fmt.Errorf("friends: friend proto missing base.account_id")
	}

	state := m.Msg("state")
	return &FriendState{
		AccountID:  accountID,
		Nickname:   base.String("nickname"),
		Level:      levelFromProto(base.Msg("level")),
		Level3:     levelFromProto(base.Msg("level3")),
		IsOnline:   state.Bool("is_online"),
		LoginTime:  state.Int("login_time"),
		LogoutTime: state.Int("logout_time"),
		Playing:    gameRefFromProto(state.Msg("playing")),
	}, nil
}

// PresenceFromProto 映射AccountActiveState
func PresenceFromProto(m *protocol.Message) Presence {
	return Presence{
		IsOnline:   m.Bool("is_online"),
		LoginTime:  m.Int("login_time"),
		LogoutTime: m.Int("logout_time"),
		Playing:    gameRefFromProto(m.Msg("playing")),
	}
}

// ProfileFromProto 映射PlayerBaseView
func ProfileFromProto(m *protocol.Message) Profile {
	return Profile{
		Nickname: m.String("nickname"),
		Level:    levelFromProto(m.Msg("level")),
		Level3:   levelFromProto(m.Msg("level3")),
	}
}

func levelFromProto(m *protocol.Message) rank.Level {
	return rank.NewLevel(int(m.Int("id")), int(m.Int("score")))
}

func gameRefFromProto(m *protocol.Message) *GameRef {
	uuid := m.String("game_uuid")
	if uuid == "" {
		return nil
	}
	ref := &GameRef{
		Category: m.Int("category"),
		UUID:     uuid,
	}
	ref.ModeID = m.Msg("meta").Int("mode_id")
	return ref
}

// CategoryName 牌谱类型名
func CategoryName(category int64) string {
	switch category {
	case 1:
		return "歹人场"
	case 2:
		return "段位场"
	case 4:
		return "比赛场"
	default:
		return "未知牌谱类型"
	}
}

package lobby

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/friends"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/rank"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/store"
	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
)

const recordFetchRetryDelay = time.Second

// handleNotify 服务器通知入口 已在任务池协程内
func (c *Connection) handleNotify(name string, msg *protocol.Message) {
	switch name {
	case ".lq.NotifyFriendStateChange":
		c.onFriendStateChange(msg)
	case ".lq.NotifyFriendViewChange":
		c.onFriendViewChange(msg)
	case ".lq.NotifyFriendChange":
		c.onFriendChange(msg)
	case ".lq.NotifyNewFriendApply":
		c.onNewFriendApply(msg)
	case ".lq.NotifyAnotherLogin", ".lq.NotifyAccountLogout":
		c.meta(fmt.Sprintf("账号%d被踢下线(%s)", c.AccountID(), name))
		c.teardown(fmt.Errorf("lobby: kicked by server: %s", name))
	default:
		log.Debugf("[conn:%s] notify %s ignored", c.id, name)
	}
}

// onFriendStateChange 在线状态/对局状态变化
// 对局结束的增量必须产出结果 取谱成功或降级事件 不允许无声吞掉
func (c *Connection) onFriendStateChange(msg *protocol.Message) {
	targetID := msg.Int("target_id")
	presence := friends.PresenceFromProto(msg.Msg("active_state"))

	tr, ok := c.roster.ApplyPresence(targetID, presence)
	if !ok {
		log.Warnf("[conn:%s] presence for unknown friend %d", c.id, targetID)
		return
	}

	name := tr.Friend.Nickname
	switch {
	case tr.WentOnline:
		c.pushEvent(fmt.Sprintf("好友 %s 上线了", name))
	case tr.WentOffline:
		c.pushEvent(fmt.Sprintf("好友 %s 下线了", name))
	}

	if tr.StartedGame != nil {
		c.pushEvent(fmt.Sprintf("好友 %s 开始了在%s的对局", name, gameVenue(tr.StartedGame)))
	}
	if tr.EndedGame != nil {
		c.pushEvent(fmt.Sprintf("好友 %s 结束了在%s的对局", name, gameVenue(tr.EndedGame)))
		c.fetchEndedGameRecord(tr.Friend, *tr.EndedGame, 0)
	}
}

// gameVenue 段位场报房间名 其他场次报类型名
func gameVenue(ref *friends.GameRef) string {
	if name := RoomName(ref.ModeID); name != "" {
		return name
	}
	return friends.CategoryName(ref.Category)
}

// onFriendViewChange 资料变化 昵称和段位整体替换
func (c *Connection) onFriendViewChange(msg *protocol.Message) {
	targetID := msg.Int("target_id")
	profile := friends.ProfileFromProto(msg.Msg("base"))
	if !c.roster.ApplyProfile(targetID, profile) {
		log.Warnf("[conn:%s] profile for unknown friend %d", c.id, targetID)
	}
}

// onFriendChange 好友增删 带friend载荷为新增 否则为删除
func (c *Connection) onFriendChange(msg *protocol.Message) {
	if msg.Has("friend") {
		f, err := friends.FromProto(msg.Msg("friend"))
		if err != nil {
			log.Errorf("[conn:%s] friend change: %v", c.id, err)
			return
		}
		if c.roster.Merge(f) {
			c.meta(fmt.Sprintf("账号%d新增好友 %s(%d)", c.AccountID(), f.Nickname, f.AccountID))
		}
		return
	}

	accountID := msg.Int("account_id")
	if removed := c.roster.Remove(accountID); removed != nil {
		c.meta(fmt.Sprintf("账号%d移除好友 %s(%d)", c.AccountID(), removed.Nickname, accountID))
	}
}

func (c *Connection) onNewFriendApply(msg *protocol.Message) {
	applyID := msg.Int("account_id")
	if !c.roster.AddApply(applyID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if brief, err := c.FetchAccountBrief(ctx, applyID); err != nil {
		log.Errorf("[conn:%s] resolve friend apply %d: %v", c.id, applyID, err)
		c.meta(fmt.Sprintf("账号%d收到好友申请 来自%d", c.AccountID(), applyID))
	} else {
		c.meta(fmt.Sprintf("账号%d收到来自 %s 的好友申请", c.AccountID(), brief.String("nickname")))
	}

	if c.conf.autoAccept {
		if err := c.AcceptFriendApply(ctx, applyID); err != nil {
			log.Errorf("[conn:%s] auto accept apply %d: %v", c.id, applyID, err)
			return
		}
		c.meta(fmt.Sprintf("账号%d已自动通过%d的好友申请", c.AccountID(), applyID))
	}
}

// fetchEndedGameRecord 对局结束后取谱 失败重试一次 再失败发降级事件
func (c *Connection) fetchEndedGameRecord(f friends.FriendState, ref friends.GameRef, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	res, err := c.Call(ctx, ".lq.Lobby.fetchGameRecord", map[string]any{
		"game_uuid":             ref.UUID,
		"client_version_string": c.endpoint.ClientVersionString,
	})
	if err != nil {
		if attempt == 0 {
			// 对局刚结束时牌谱可能还没落地 等一秒再试
			c.conf.sched.Once(recordFetchRetryDelay, func() {
				c.fetchEndedGameRecord(f, ref, attempt+1)
			})
			return
		}
		log.Errorf("[conn:%s] fetch record %s: %v", c.id, ref.UUID, err)
		c.markDegraded("record fetch failed twice")
		c.pushEvent(fmt.Sprintf(
			"好友 %s 的对局 %s 已结束 但牌谱获取失败\n对局牌谱:%s",
			f.Nickname, ref.UUID, RecordURL(ref.UUID, f.AccountID)))
		return
	}

	c.archiveRecord(ctx, f, ref, res)
	c.pushEvent(c.formatRecordSummary(f, ref, res.Msg("head")))
}

// archiveRecord 牌谱数据进档案 索引入库 失败只记日志
func (c *Connection) archiveRecord(ctx context.Context, f friends.FriendState, ref friends.GameRef, res *protocol.Message) {
	if c.conf.archive != nil {
		if data := res.Bytes("data"); len(data) > 0 {
			if err := c.conf.archive.Store(ctx, ref.UUID, data); err != nil {
				log.Errorf("[conn:%s] archive record %s: %v", c.id, ref.UUID, err)
			}
		}
	}
	if c.conf.logs != nil {
		entry := &store.GameLogIndex{
			UUID:         ref.UUID,
			AccountID:    strconv.FormatInt(f.AccountID, 10),
			Category:     int(ref.Category),
			CategoryName: friends.CategoryName(ref.Category),
		}
		if err := c.conf.logs.Insert(ctx, entry); err != nil {
			log.Errorf("[conn:%s] index record %s: %v", c.id, ref.UUID, err)
		}
	}
}

// formatRecordSummary 按终局得分排名生成战报
// 段位场附带好友的升降段后段位 末尾带回放链接
func (c *Connection) formatRecordSummary(f friends.FriendState, ref friends.GameRef, head *protocol.Message) string {
	type standing struct {
		seat    int64
		name    string
		point   int64
		grading int64
	}

	sanma := strings.Contains(RoomName(ref.ModeID), "三")

	friendSeat := int64(-1)
	var friendLevel rank.Level
	names := map[int64]string{}
	for _, acc := range head.Msgs("accounts") {
		seat := acc.Int("seat")
		names[seat] = acc.String("nickname")
		if acc.Int("account_id") == f.AccountID {
			friendSeat = seat
			lv := acc.Msg("level")
			if sanma {
				lv = acc.Msg("level3")
			}
			friendLevel = rank.NewLevel(int(lv.Int("id")), int(lv.Int("score")))
		}
	}

	var table []standing
	for _, p := range head.Msg("result").Msgs("players") {
		seat := p.Int("seat")
		name, ok := names[seat]
		if !ok {
			name = "电脑"
		}
		table = append(table, standing{
			seat:    seat,
			name:    name,
			point:   p.Int("total_point"),
			grading: p.Int("grading_score"),
		})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].point > table[j].point })

	out := fmt.Sprintf("好友 %s 的%s对局战绩:", f.Nickname, friends.CategoryName(ref.Category))
	for i, s := range table {
		out += fmt.Sprintf("\n%d位 %s %+.1f", i+1, s.name, float64(s.point)/1000)
		if s.seat == friendSeat && ref.Category == 2 && friendLevel.ID != 0 {
			out += fmt.Sprintf("\n当前段位:%s", friendLevel.FormatWithTag(int(s.grading)))
		}
	}
	out += "\n对局牌谱:" + RecordURL(ref.UUID, f.AccountID)
	return out
}

// pushEvent 投递给订阅了本账号的用户
func (c *Connection) pushEvent(message string) {
	if c.conf.router == nil {
		log.Infof("[conn:%s] event (no router): %s", c.id, message)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.conf.router.ToUser(ctx, strconv.FormatInt(c.AccountID(), 10), message)
}

// meta 运维事件
func (c *Connection) meta(message string) {
	if c.conf.router == nil {
		log.Infof("[conn:%s] meta (no router): %s", c.id, message)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.conf.router.Meta(ctx, message)
}

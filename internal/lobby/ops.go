package lobby

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/friends"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
)

// RoomName 段位场mode_id对应的房间名
func RoomName(modeID int64) string {
	names := map[int64]string{
		1: "铜之间", 2: "铜之间 · 四人东", 3: "铜之间", 17: "铜之间", 18: "铜之间",
		4: "银之间", 5: "银之间 · 四人东", 6: "银之间", 19: "银之间", 20: "银之间",
		7: "金之间", 8: "金之间 · 四人东", 9: "金之间 · 四人南",
		21: "金之间 · 三人东", 22: "金之间 · 三人南",
		10: "玉之间", 11: "玉之间 · 四人东", 12: "玉之间 · 四人南",
		23: "玉之间 · 三人东", 24: "玉之间 · 三人南",
		15: "王座间 · 四人东", 16: "王座间 · 四人南",
		25: "王座间 · 三人东", 26: "王座间 · 三人南",
	}
	return names[modeID]
}

// 段位场观战列表的过滤器id 金/玉/王座
var liveListFilters = []int{216, 209, 212}

// FetchInfo 登录后的全量状态 好友名单和待处理申请从这里重建
func (c *Connection) FetchInfo(ctx context.Context) error {
	res, err := c.Call(ctx, ".lq.Lobby.fetchInfo", nil)
	if err != nil {
		return err
	}

	list := make([]*friends.FriendState, 0)
	for _, m := range res.Msg("friend_list").Msgs("friends") {
		f, err := friends.FromProto(m)
		if err != nil {
			log.Warnf("[conn:%s] skip malformed friend entry: %v", c.id, err)
			continue
		}
		list = append(list, f)
	}
	c.roster.Reset(list)

	for _, apply := range res.Msg("friend_apply_list").Msgs("applies") {
		c.roster.AddApply(apply.Int("account_id"))
	}
	return nil
}

// FetchLiveGames 拉取高段位场的进行中对局 三个过滤器并发取再拼接
func (c *Connection) FetchLiveGames(ctx context.Context) ([]*protocol.Message, error) {
	g, ctx := errgroup.WithContext(ctx)
	lists := make([][]*protocol.Message, len(liveListFilters))
	for i, filter := range liveListFilters {
		g.Go(func() error {
			res, err := c.Call(ctx, ".lq.Lobby.fetchGameLiveList", map[string]any{
				"filter_id": filter,
			})
			if err != nil {
				return fmt.Errorf("lobby: live list filter %d: %w", filter, err)
			}
			lists[i] = res.Msgs("live_list")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var games []*protocol.Message
	for _, list := range lists {
		games = append(games, list...)
	}
	return games, nil
}

// AcceptFriendApply 通过好友申请并清掉本地记录
func (c *Connection) AcceptFriendApply(ctx context.Context, accountID int64) error {
	_, err := c.Call(ctx, ".lq.Lobby.handleFriendApply", map[string]any{
		"method":    1,
		"target_id": accountID,
	})
	if err != nil {
		return err
	}
	c.roster.RemoveApply(accountID)
	return nil
}

// FetchAccountBrief 按账号id取简要资料 申请人昵称靠这个解析
func (c *Connection) FetchAccountBrief(ctx context.Context, accountID int64) (*protocol.Message, error) {
	res, err := c.Call(ctx, ".lq.Lobby.fetchMultiAccountBrief", map[string]any{
		"account_id_list": []int64{accountID},
	})
	if err != nil {
		return nil, err
	}
	players := res.Msgs("players")
	if len(players) == 0 {
		return nil, fmt.Errorf("lobby: no brief for account %d", accountID)
	}
	return players[0], nil
}

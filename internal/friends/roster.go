package friends

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Transition 一次presence增量产生的可观察变化
// EndedGame非nil时调用方必须跟进取谱 成功或降级二选一 不允许无声吞掉
type Transition struct {
	Friend      FriendState // 应用增量之后的快照
	WentOnline  bool
	WentOffline bool
	StartedGame *GameRef
	EndedGame   *GameRef // 离开对局前所在的那局
}

// Roster 好友名单与待处理申请的纯归约器
// 只做状态变换 不发请求不推消息 副作用由调用方根据Transition驱动
type Roster struct {
	mu      sync.RWMutex
	friends map[int64]*FriendState
	applies []int64
}

func NewRoster() *Roster {
	return &Roster{friends: make(map[int64]*FriendState)}
}

// Reset 用全量列表重建名单 登录成功后调用
func (r *Roster) Reset(list []*FriendState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.friends = make(map[int64]*FriendState, len(list))
	for _, f := range list {
		cp := *f
		r.friends[f.AccountID] = &cp
	}
}

// Merge 合并一个好友 已存在时整体替换 重复通知幂等
func (r *Roster) Merge(f *FriendState) (added bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.friends[f.AccountID]
	cp := *f
	r.friends[f.AccountID] = &cp
	return !exists
}

// Remove 移除好友 返回移除前的快照 不存在时返回nil
func (r *Roster) Remove(accountID int64) *FriendState {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.friends[accountID]
	if !ok {
		return nil
	}
	delete(r.friends, accountID)
	cp := *f
	return &cp
}

// Get 按账号查快照
func (r *Roster) Get(accountID int64) (FriendState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.friends[accountID]
	if !ok {
		return FriendState{}, false
	}
	return *f, true
}

// Len 好友数量
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.friends)
}

// Snapshot 按账号id排序的全量快照
func (r *Roster) Snapshot() []FriendState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := lo.MapToSlice(r.friends, func(_ int64, f *FriendState) FriendState { return *f })
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// ApplyPresence 应用状态增量并报告变化
// 未知账号的增量直接丢弃 返回ok=false
func (r *Roster) ApplyPresence(accountID int64, p Presence) (Transition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.friends[accountID]
	if !ok {
		return Transition{}, false
	}

	var tr Transition
	if p.IsOnline && !f.IsOnline {
		tr.WentOnline = true
	}
	if !p.IsOnline && f.IsOnline {
		tr.WentOffline = true
	}
	if p.Playing != nil && f.Playing == nil {
		ref := *p.Playing
		tr.StartedGame = &ref
	}
	if p.Playing == nil && f.Playing != nil {
		ref := *f.Playing
		tr.EndedGame = &ref
	}

	f.IsOnline = p.IsOnline
	f.LoginTime = p.LoginTime
	f.LogoutTime = p.LogoutTime
	f.Playing = nil
	if p.Playing != nil {
		ref := *p.Playing
		f.Playing = &ref
	}

	tr.Friend = *f
	return tr, true
}

// ApplyProfile 应用资料增量 整体替换昵称与段位
func (r *Roster) ApplyProfile(accountID int64, p Profile) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.friends[accountID]
	if !ok {
		return false
	}
	f.Nickname = p.Nickname
	f.Level = p.Level
	f.Level3 = p.Level3
	return true
}

// AddApply 记录一条好友申请 重复申请幂等
func (r *Roster) AddApply(accountID int64) (added bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lo.Contains(r.applies, accountID) {
		return false
	}
	r.applies = append(r.applies, accountID)
	return true
}

// RemoveApply 处理完一条申请后移除
func (r *Roster) RemoveApply(accountID int64) (removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.applies)
	r.applies = lo.Without(r.applies, accountID)
	return len(r.applies) != before
}

// Applies 待处理申请快照
func (r *Roster) Applies() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int64(nil), r.applies...)
}

package lobby

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
)

/*
	牌谱id与账号id的混淆编解码
	分享链接里的log id和好友码都是混淆后的值
*/

// DecodeLogID 还原混淆过的牌谱id 每位按位置做36进制轮转
func DecodeLogID(logID string) string {
	var sb strings.Builder
	sb.Grow(len(logID))
	for i, ch := range logID {
		var o int
		switch {
		case ch >= '0' && ch <= '9':
			o = int(ch - '0')
		case ch >= 'a' && ch <= 'z':
			o = int(ch-'a') + 10
		default:
			sb.WriteRune(ch)
			continue
		}
		o = (o + 55 - i) % 36
		if o < 10 {
			sb.WriteByte(byte(o) + '0')
		} else {
			sb.WriteByte(byte(o-10) + 'a')
		}
	}
	return sb.String()
}

// EncodeAccountID 牌谱链接后缀里的账号混淆
func EncodeAccountID(accountID int64) int64 {
	return 1358437 + ((7*accountID + 1117113) ^ 86216345)
}

const recordViewerURL = "https://game.maj-soul.com/1/?paipu="

// RecordURL 指定账号视角的牌谱回放链接
func RecordURL(uuid string, accountID int64) string {
	return recordViewerURL + uuid + "_a" + strconv.FormatInt(EncodeAccountID(accountID), 10)
}

// DecodeAccountID EncodeAccountID的逆变换
func DecodeAccountID(encoded int64) int64 {
	return (((encoded - 1358437) ^ 86216345) - 1117113) / 7
}

const (
	accountID2Mask = 67108863 // 低26位
	accountID2XOR  = 6139246
	accountID2Bias = 10000000
)

// EncodeAccountID2 好友码编码 低26位做5轮循环移位
func EncodeAccountID2(accountID int64) int64 {
	p := accountID2XOR ^ accountID
	s := p &^ accountID2Mask
	z := p & accountID2Mask
	for i := 0; i < 5; i++ {
		z = ((511 & z) << 17) | (z >> 9)
	}
	return z + s + accountID2Bias
}

// DecodeAccountID2 好友码还原
func DecodeAccountID2(code int64) int64 {
	p := code - accountID2Bias
	s := p &^ accountID2Mask
	z := p & accountID2Mask
	for i := 0; i < 5; i++ {
		z = ((z & ((1 << 17) - 1)) << 9) | (z >> 17)
	}
	return (z | s) ^ accountID2XOR
}

// GameLogEntry 一条对局动作记录
type GameLogEntry struct {
	Name string // 短名 如RecordNewRound
	Msg  *protocol.Message
}

// GameLog 解码后的完整对局记录
type GameLog struct {
	GameID     string
	LogID      string
	TargetID   int64 // 分享链接指定的视角账号 0为未指定
	TargetSeat int64 // 视角账号的座位 -1为未知
	Head       *protocol.Message
	Entries    []GameLogEntry
}

// FetchGameLog 按分享id拉取并解码整局记录
//
//	id形如 {log_id}[_a{encoded_account}][_2]
//	后缀2表示log_id本身被混淆过
func (c *Connection) FetchGameLog(ctx context.Context, gameID string) (*GameLog, error) {
	seps := strings.Split(gameID, "_")
	logID := seps[0]
	if len(seps) >= 3 && seps[2] == "2" {
		logID = DecodeLogID(logID)
	}

	var targetID int64
	if len(seps) >= 2 && seps[1] != "" {
		if seps[1][0] == 'a' {
			if encoded, err := strconv.ParseInt(seps[1][1:], 10, 64); err == nil {
				targetID = DecodeAccountID2(encoded)
			}
		} else if id, err := strconv.ParseInt(seps[1], 10, 64); err == nil {
			targetID = id
		}
	}

	var head *protocol.Message
	data := c.loadArchived(ctx, logID)
	if data == nil {
		res, err := c.Call(ctx, ".lq.Lobby.fetchGameRecord", map[string]any{
			"game_uuid":             logID,
			"client_version_string": c.endpoint.ClientVersionString,
		})
		if err != nil {
			return nil, err
		}
		head = res.Msg("head")
		data = res.Bytes("data")
		if len(data) > 0 && c.conf.archive != nil {
			if err := c.conf.archive.Store(ctx, logID, data); err != nil {
				log.Warnf("[conn:%s] archive record %s: %v", c.id, logID, err)
			}
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("lobby: record %s has no detail data", logID)
	}

	entries, err := c.decodeDetailRecords(data)
	if err != nil {
		return nil, err
	}

	gl := &GameLog{
		GameID:     gameID,
		LogID:      logID,
		TargetID:   targetID,
		TargetSeat: -1,
		Head:       head,
		Entries:    entries,
	}
	if targetID != 0 && head != nil {
		for _, acc := range head.Msgs("accounts") {
			if acc.Int("account_id") == targetID {
				gl.TargetSeat = acc.Int("seat")
				break
			}
		}
	}
	return gl, nil
}

// loadArchived 取谱前先查档案 命中就不再打上游
func (c *Connection) loadArchived(ctx context.Context, logID string) []byte {
	if c.conf.archive == nil {
		return nil
	}
	ok, err := c.conf.archive.Exists(ctx, logID)
	if err != nil || !ok {
		return nil
	}
	data, err := c.conf.archive.Load(ctx, logID)
	if err != nil {
		log.Warnf("[conn:%s] load archived record %s: %v", c.id, logID, err)
		return nil
	}
	return data
}

// decodeDetailRecords 解开GameDetailRecords
// 旧版(version<210715)动作在records 新版在actions[].result
func (c *Connection) decodeDetailRecords(data []byte) ([]GameLogEntry, error) {
	name, payload, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	desc, err := c.registry.Notify(name)
	if err != nil {
		return nil, err
	}
	records, err := desc.Unmarshal(payload)
	if err != nil {
		return nil, err
	}

	var raws [][]byte
	if records.Int("version") < 210715 {
		raws = records.ByteSlices("records")
	}
	if len(raws) == 0 {
		for _, action := range records.Msgs("actions") {
			if b := action.Bytes("result"); len(b) > 0 {
				raws = append(raws, b)
			}
		}
	}

	entries := make([]GameLogEntry, 0, len(raws))
	for _, raw := range raws {
		entryName, entryData, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			return nil, err
		}
		entryDesc, err := c.registry.Notify(entryName)
		if err != nil {
			log.Warnf("[conn:%s] skip unknown record entry %s", c.id, entryName)
			continue
		}
		msg, err := entryDesc.Unmarshal(entryData)
		if err != nil {
			return nil, err
		}
		parts := strings.Split(entryName, ".")
		entries = append(entries, GameLogEntry{Name: parts[len(parts)-1], Msg: msg})
	}
	return entries, nil
}

package lobby

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
)

// obfuscateLogID DecodeLogID的逆变换 只在测试里用来造分享id
func obfuscateLogID(logID string) string {
	var sb strings.Builder
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
		o = (o + i + 17) % 36
		if o < 10 {
			sb.WriteByte(byte(o) + '0')
		} else {
			sb.WriteByte(byte(o-10) + 'a')
		}
	}
	return sb.String()
}

func TestDecodeLogID(t *testing.T) {
	// 逐位轮转 同一个字符在不同位置解出不同值
	assert.Equal(t, "ji", DecodeLogID("00"))
	assert.Equal(t, "t", DecodeLogID("a"))

	// 连字符原样保留
	assert.Equal(t, "ji-q", DecodeLogID("00-a"))

	plain := "230601-abc123de-f456-7890"
	assert.Equal(t, plain, DecodeLogID(obfuscateLogID(plain)))
}

func TestAccountIDCodec(t *testing.T) {
	for _, id := range []int64{1, 101, 123456789, 2674} {
		enc := EncodeAccountID(id)
		assert.NotEqual(t, id, enc)
		assert.Equal(t, id, DecodeAccountID(enc))
	}
}

func TestAccountID2Codec(t *testing.T) {
	for _, id := range []int64{1, 101, 123456, 67108862, 123456789} {
		enc := EncodeAccountID2(id)
		assert.NotEqual(t, id, enc)
		assert.Equal(t, id, DecodeAccountID2(enc))
	}
	// 好友码始终带基准偏移
	assert.GreaterOrEqual(t, EncodeAccountID2(1), int64(10000000))
}

func TestRecordURL(t *testing.T) {
	url := RecordURL("230601-abc", 101)
	require.True(t, strings.HasPrefix(url, "https://game.maj-soul.com/1/?paipu=230601-abc_a"))

	// 链接后缀是混淆过的账号id
	enc := strings.TrimPrefix(url, "https://game.maj-soul.com/1/?paipu=230601-abc_a")
	id, err := strconv.ParseInt(enc, 10, 64)
	require.NoError(t, err)
	assert.Equal(t, int64(101), DecodeAccountID(id))
}

// recordPayload 造一段GameDetailRecords信封
func recordPayload(t *testing.T, reg *protocol.Registry, version int64, rounds []map[string]any) []byte {
	t.Helper()
	roundDesc, err := reg.Notify(".lq.RecordNewRound")
	require.NoError(t, err)

	var raws [][]byte
	for _, round := range rounds {
		b, err := roundDesc.Marshal(round)
		require.NoError(t, err)
		raws = append(raws, protocol.EncodeEnvelope(".lq.RecordNewRound", b))
	}

	values := map[string]any{"version": version}
	if version < 210715 {
		values["records"] = raws
	} else {
		actions := make([]map[string]any, 0, len(raws))
		for _, raw := range raws {
			actions = append(actions, map[string]any{"result": raw})
		}
		values["actions"] = actions
	}

	detailDesc, err := reg.Notify(".lq.GameDetailRecords")
	require.NoError(t, err)
	payload, err := detailDesc.Marshal(values)
	require.NoError(t, err)
	return protocol.EncodeEnvelope(".lq.GameDetailRecords", payload)
}

func stubGameRecord(g *fakeGateway, uuid string, data []byte) {
	g.handle(".lq.Lobby.fetchGameRecord", func(params *protocol.Message) map[string]any {
		res := map[string]any{
			"head": map[string]any{
				"uuid": params.String("game_uuid"),
				"accounts": []map[string]any{
					{"account_id": int64(101), "seat": int64(0), "nickname": "akagi"},
					{"account_id": int64(202), "seat": int64(2), "nickname": "saki"},
				},
			},
		}
		if params.String("game_uuid") == uuid && len(data) > 0 {
			res["data"] = data
		}
		return res
	})
}

func TestFetchGameLogLegacyRecords(t *testing.T) {
	g := newFakeGateway(t)
	g.stubLoginFlow(900, "pool", "tok")
	rounds := []map[string]any{
		{"chang": int64(0), "ju": int64(0)},
		{"chang": int64(0), "ju": int64(1)},
	}
	stubGameRecord(g, "uuid-legacy", recordPayload(t, g.reg, 210714, rounds))
	conn := dialTestConn(t, g)
	_, err := conn.LoginPassword(context.Background(), "user", "pw")
	require.NoError(t, err)

	gl, err := conn.FetchGameLog(context.Background(), "uuid-legacy")
	require.NoError(t, err)
	assert.Equal(t, "uuid-legacy", gl.LogID)
	assert.Equal(t, int64(0), gl.TargetID)
	assert.Equal(t, int64(-1), gl.TargetSeat)
	require.Len(t, gl.Entries, 2)
	assert.Equal(t, "RecordNewRound", gl.Entries[0].Name)
	assert.Equal(t, int64(1), gl.Entries[1].Msg.Int("ju"))
}

func TestFetchGameLogActions(t *testing.T) {
	g := newFakeGateway(t)
	g.stubLoginFlow(900, "pool", "tok")
	rounds := []map[string]any{{"chang": int64(1), "ju": int64(3)}}
	stubGameRecord(g, "uuid-new", recordPayload(t, g.reg, 210715, rounds))
	conn := dialTestConn(t, g)
	_, err := conn.LoginPassword(context.Background(), "user", "pw")
	require.NoError(t, err)

	gl, err := conn.FetchGameLog(context.Background(), "uuid-new")
	require.NoError(t, err)
	require.Len(t, gl.Entries, 1)
	assert.Equal(t, "RecordNewRound", gl.Entries[0].Name)
	assert.Equal(t, int64(1), gl.Entries[0].Msg.Int("chang"))
}

func TestFetchGameLogShareID(t *testing.T) {
	g := newFakeGateway(t)
	g.stubLoginFlow(900, "pool", "tok")
	rounds := []map[string]any{{"chang": int64(0), "ju": int64(0)}}
	stubGameRecord(g, "uuid-shared", recordPayload(t, g.reg, 210715, rounds))
	conn := dialTestConn(t, g)
	_, err := conn.LoginPassword(context.Background(), "user", "pw")
	require.NoError(t, err)

	// 分享id 混淆过的log id + 好友码视角 + 混淆标记
	shareID := obfuscateLogID("uuid-shared") + "_a" +
		strconv.FormatInt(EncodeAccountID2(202), 10) + "_2"
	gl, err := conn.FetchGameLog(context.Background(), shareID)
	require.NoError(t, err)
	assert.Equal(t, shareID, gl.GameID)
	assert.Equal(t, "uuid-shared", gl.LogID)
	assert.Equal(t, int64(202), gl.TargetID)
	assert.Equal(t, int64(2), gl.TargetSeat)
}

func TestFetchGameLogArchiveFirst(t *testing.T) {
	g := newFakeGateway(t)
	g.stubLoginFlow(900, "pool", "tok")
	stubGameRecord(g, "uuid-cached", nil)
	archive := &memArchive{records: map[string][]byte{
		"uuid-cached": recordPayload(t, g.reg, 210715, []map[string]any{{"chang": int64(2), "ju": int64(0)}}),
	}}
	conn := dialTestConn(t, g, WithRecordArchive(archive))
	_, err := conn.LoginPassword(context.Background(), "user", "pw")
	require.NoError(t, err)

	// 档案命中 不打上游
	gl, err := conn.FetchGameLog(context.Background(), "uuid-cached")
	require.NoError(t, err)
	require.Len(t, gl.Entries, 1)
	assert.Equal(t, int64(2), gl.Entries[0].Msg.Int("chang"))
	assert.Equal(t, 0, g.callCount(".lq.Lobby.fetchGameRecord"))

	// 档案没有 上游也不回data 明确报错
	_, err = conn.FetchGameLog(context.Background(), "uuid-missing")
	assert.ErrorContains(t, err, "no detail data")
	assert.Equal(t, 1, g.callCount(".lq.Lobby.fetchGameRecord"))
}

func TestFetchGameLogCachesFetchedRecord(t *testing.T) {
	g := newFakeGateway(t)
	g.stubLoginFlow(900, "pool", "tok")
	rounds := []map[string]any{{"chang": int64(0), "ju": int64(2)}}
	stubGameRecord(g, "uuid-fresh", recordPayload(t, g.reg, 210715, rounds))
	archive := &memArchive{records: map[string][]byte{}}
	conn := dialTestConn(t, g, WithRecordArchive(archive))
	_, err := conn.LoginPassword(context.Background(), "user", "pw")
	require.NoError(t, err)

	_, err = conn.FetchGameLog(context.Background(), "uuid-fresh")
	require.NoError(t, err)
	require.Equal(t, 1, g.callCount(".lq.Lobby.fetchGameRecord"))

	// 取回的data落档案 再取不再打上游
	_, err = conn.FetchGameLog(context.Background(), "uuid-fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, g.callCount(".lq.Lobby.fetchGameRecord"))
}

// memArchive 内存档案替身
type memArchive struct {
	mu      sync.Mutex
	records map[string][]byte
}

func (a *memArchive) Exists(_ context.Context, gameID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.records[gameID]
	return ok, nil
}

func (a *memArchive) Store(_ context.Context, gameID string, record []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[gameID] = record
	return nil
}

func (a *memArchive) Load(_ context.Context, gameID string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	record, ok := a.records[gameID]
	if !ok {
		return nil, errors.New("archive: record not found")
	}
	return record, nil
}

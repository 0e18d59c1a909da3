package friends

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
)

const friendTestDefinition = `{
  "nested": {
    "lq": {
      "nested": {
        "AccountLevel": {
          "fields": {
            "id": {"type": "uint32", "id": 1},
            "score": {"type": "uint32", "id": 2}
          }
        },
        "PlayerBaseView": {
          "fields": {
            "account_id": {"type": "uint32", "id": 1},
            "nickname": {"type": "string", "id": 2},
            "level": {"type": "AccountLevel", "id": 3},
            "level3": {"type": "AccountLevel", "id": 4}
          }
        },
        "GameMetaData": {
          "fields": {
            "room_id": {"type": "uint32", "id": 1},
            "mode_id": {"type": "uint32", "id": 2}
          }
        },
        "AccountPlayingGame": {
          "fields": {
            "game_uuid": {"type": "string", "id": 1},
            "category": {"type": "uint32", "id": 2},
            "meta": {"type": "GameMetaData", "id": 3}
          }
        },
        "AccountActiveState": {
          "fields": {
            "login_time": {"type": "uint32", "id": 2},
            "logout_time": {"type": "uint32", "id": 3},
            "is_online": {"type": "bool", "id": 4},
            "playing": {"type": "AccountPlayingGame", "id": 5}
          }
        },
        "Friend": {
          "fields": {
            "base": {"type": "PlayerBaseView", "id": 1},
            "state": {"type": "AccountActiveState", "id": 2}
          }
        }
      }
    }
  }
}`

func newFriendTestRegistry(t *testing.T) *protocol.Registry {
	t.Helper()
	doc, err := protocol.ParseDocument([]byte(friendTestDefinition))
	require.NoError(t, err)
	return protocol.NewRegistry(doc)
}

func TestPresenceFromProto(t *testing.T) {
	reg := newFriendTestRegistry(t)
	desc, err := reg.Message("lq", "AccountActiveState")
	require.NoError(t, err)

	data, err := desc.Marshal(map[string]any{
		"is_online":   true,
		"logout_time": int64(1700000100),
		"playing": map[string]any{
			"game_uuid": "230101-ffff",
			"category":  int64(1),
			"meta":      map[string]any{"mode_id": int64(3)},
		},
	})
	require.NoError(t, err)
	msg, err := desc.Unmarshal(data)
	require.NoError(t, err)

	p := PresenceFromProto(msg)
	require.True(t, p.IsOnline)
	require.Equal(t, int64(1700000100), p.LogoutTime)
	require.NotNil(t, p.Playing)
	require.Equal(t, int64(1), p.Playing.Category)
	require.Equal(t, int64(3), p.Playing.ModeID)
}

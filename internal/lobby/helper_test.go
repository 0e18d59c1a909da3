package lobby

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
	"github.com/KimigaiiWuyi/MajsoulUID/library/work"
)

// 测试用协议定义 覆盖登录/心跳/好友/牌谱全链路
const lobbyTestDefinition = `{
  "nested": {
    "lq": {
      "nested": {
        "Lobby": {
          "methods": {
            "heatbeat": {"requestType": "ReqHeatBeat", "responseType": "ResCommon"},
            "fetchServerTime": {"requestType": "ReqCommon", "responseType": "ResServerTime"},
            "login": {"requestType": "ReqLogin", "responseType": "ResLogin"},
            "loginBeat": {"requestType": "ReqLoginBeat", "responseType": "ResCommon"},
            "oauth2Auth": {"requestType": "ReqOauth2Auth", "responseType": "ResOauth2Auth"},
            "oauth2Check": {"requestType": "ReqOauth2Check", "responseType": "ResOauth2Check"},
            "oauth2Login": {"requestType": "ReqOauth2Login", "responseType": "ResLogin"},
            "fetchInfo": {"requestType": "ReqCommon", "responseType": "ResFetchInfo"},
            "fetchGameLiveList": {"requestType": "ReqGameLiveList", "responseType": "ResGameLiveList"},
            "handleFriendApply": {"requestType": "ReqHandleFriendApply", "responseType": "ResCommon"},
            "fetchMultiAccountBrief": {"requestType": "ReqMultiAccountId", "responseType": "ResMultiAccountBrief"},
            "fetchGameRecord": {"requestType": "ReqGameRecord", "responseType": "ResGameRecord"}
          }
        },
        "Error": {
          "fields": {
            "code": {"type": "uint32", "id": 1}
          }
        },
        "ReqCommon": {"fields": {}},
        "ResCommon": {
          "fields": {
            "error": {"type": "Error", "id": 1}
          }
        },
        "ReqHeatBeat": {
          "fields": {
            "no_operation_counter": {"type": "uint32", "id": 1}
          }
        },
        "ResServerTime": {
          "fields": {
            "error": {"type": "Error", "id": 1},
            "server_time": {"type": "uint32", "id": 2}
          }
        },
        "ClientDeviceInfo": {
          "fields": {
            "platform": {"type": "string", "id": 1},
            "hardware": {"type": "string", "id": 2},
            "os": {"type": "string", "id": 3},
            "os_version": {"type": "string", "id": 4},
            "is_browser": {"type": "bool", "id": 5},
            "software": {"type": "string", "id": 6},
            "sale_platform": {"type": "string", "id": 7}
          }
        },
        "ClientVersionInfo": {
          "fields": {
            "resource": {"type": "string", "id": 1}
          }
        },
        "ReqLogin": {
          "fields": {
            "account": {"type": "string", "id": 1},
            "password": {"type": "string", "id": 2},
            "reconnect": {"type": "bool", "id": 3},
            "device": {"type": "ClientDeviceInfo", "id": 4},
            "random_key": {"type": "string", "id": 5},
            "client_version": {"type": "ClientVersionInfo", "id": 6},
            "gen_access_token": {"type": "bool", "id": 7},
            "currency_platforms": {"rule": "repeated", "type": "uint32", "id": 8},
            "type": {"type": "uint32", "id": 9},
            "version": {"type": "uint32", "id": 10},
            "client_version_string": {"type": "string", "id": 11}
          }
        },
        "Account": {
          "fields": {
            "account_id": {"type": "uint32", "id": 1},
            "nickname": {"type": "string", "id": 2}
          }
        },
        "ResLogin": {
          "fields": {
            "error": {"type": "Error", "id": 1},
            "account_id": {"type": "uint32", "id": 2},
            "account": {"type": "Account", "id": 3},
            "access_token": {"type": "string", "id": 4}
          }
        },
        "ReqLoginBeat": {
          "fields": {
            "contract": {"type": "string", "id": 1}
          }
        },
        "ReqOauth2Auth": {
          "fields": {
            "type": {"type": "uint32", "id": 1},
            "code": {"type": "string", "id": 2},
            "uid": {"type": "string", "id": 3},
            "client_version_string": {"type": "string", "id": 4}
          }
        },
        "ResOauth2Auth": {
          "fields": {
            "error": {"type": "Error", "id": 1},
            "access_token": {"type": "string", "id": 2}
          }
        },
        "ReqOauth2Check": {
          "fields": {
            "type": {"type": "uint32", "id": 1},
            "access_token": {"type": "string", "id": 2}
          }
        },
        "ResOauth2Check": {
          "fields": {
            "error": {"type": "Error", "id": 1},
            "has_account": {"type": "bool", "id": 2}
          }
        },
        "ReqOauth2Login": {
          "fields": {
            "type": {"type": "uint32", "id": 1},
            "access_token": {"type": "string", "id": 2},
            "reconnect": {"type": "bool", "id": 3},
            "device": {"type": "ClientDeviceInfo", "id": 4},
            "random_key": {"type": "string", "id": 5},
            "client_version": {"type": "ClientVersionInfo", "id": 6},
            "gen_access_token": {"type": "bool", "id": 7},
            "currency_platforms": {"rule": "repeated", "type": "uint32", "id": 8},
            "client_version_string": {"type": "string", "id": 9}
          }
        },
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
        },
        "FriendList": {
          "fields": {
            "friends": {"rule": "repeated", "type": "Friend", "id": 1}
          }
        },
        "FriendApply": {
          "fields": {
            "account_id": {"type": "uint32", "id": 1}
          }
        },
        "FriendApplyList": {
          "fields": {
            "applies": {"rule": "repeated", "type": "FriendApply", "id": 1}
          }
        },
        "ResFetchInfo": {
          "fields": {
            "error": {"type": "Error", "id": 1},
            "friend_list": {"type": "FriendList", "id": 2},
            "friend_apply_list": {"type": "FriendApplyList", "id": 3}
          }
        },
        "ReqGameLiveList": {
          "fields": {
            "filter_id": {"type": "uint32", "id": 1}
          }
        },
        "GameLiveHead": {
          "fields": {
            "uuid": {"type": "string", "id": 1}
          }
        },
        "ResGameLiveList": {
          "fields": {
            "error": {"type": "Error", "id": 1},
            "live_list": {"rule": "repeated", "type": "GameLiveHead", "id": 2}
          }
        },
        "ReqHandleFriendApply": {
          "fields": {
            "method": {"type": "uint32", "id": 1},
            "target_id": {"type": "uint32", "id": 2}
          }
        },
        "ReqMultiAccountId": {
          "fields": {
            "account_id_list": {"rule": "repeated", "type": "uint32", "id": 1}
          }
        },
        "ResMultiAccountBrief": {
          "fields": {
            "error": {"type": "Error", "id": 1},
            "players": {"rule": "repeated", "type": "PlayerBaseView", "id": 2}
          }
        },
        "ReqGameRecord": {
          "fields": {
            "game_uuid": {"type": "string", "id": 1},
            "client_version_string": {"type": "string", "id": 2}
          }
        },
        "GameRecordAccount": {
          "fields": {
            "account_id": {"type": "uint32", "id": 1},
            "seat": {"type": "uint32", "id": 2},
            "nickname": {"type": "string", "id": 3},
            "level": {"type": "AccountLevel", "id": 4},
            "level3": {"type": "AccountLevel", "id": 5}
          }
        },
        "GameEndPlayer": {
          "fields": {
            "seat": {"type": "uint32", "id": 1},
            "total_point": {"type": "int32", "id": 2},
            "part_point_1": {"type": "uint32", "id": 3},
            "grading_score": {"type": "int32", "id": 4}
          }
        },
        "GameEndResult": {
          "fields": {
            "players": {"rule": "repeated", "type": "GameEndPlayer", "id": 1}
          }
        },
        "GameRecordHead": {
          "fields": {
            "uuid": {"type": "string", "id": 1},
            "accounts": {"rule": "repeated", "type": "GameRecordAccount", "id": 2},
            "result": {"type": "GameEndResult", "id": 3}
          }
        },
        "ResGameRecord": {
          "fields": {
            "error": {"type": "Error", "id": 1},
            "head": {"type": "GameRecordHead", "id": 2},
            "data": {"type": "bytes", "id": 3}
          }
        },
        "GameAction": {
          "fields": {
            "passed": {"type": "uint32", "id": 1},
            "result": {"type": "bytes", "id": 2}
          }
        },
        "GameDetailRecords": {
          "fields": {
            "records": {"rule": "repeated", "type": "bytes", "id": 1},
            "version": {"type": "uint32", "id": 2},
            "actions": {"rule": "repeated", "type": "GameAction", "id": 3}
          }
        },
        "RecordNewRound": {
          "fields": {
            "chang": {"type": "uint32", "id": 1},
            "ju": {"type": "uint32", "id": 2}
          }
        },
        "NotifyAccountLogout": {"fields": {}},
        "NotifyAnotherLogin": {"fields": {}},
        "NotifyFriendStateChange": {
          "fields": {
            "target_id": {"type": "uint32", "id": 1},
            "active_state": {"type": "AccountActiveState", "id": 2}
          }
        },
        "NotifyFriendViewChange": {
          "fields": {
            "target_id": {"type": "uint32", "id": 1},
            "base": {"type": "PlayerBaseView", "id": 2}
          }
        },
        "NotifyFriendChange": {
          "fields": {
            "account_id": {"type": "uint32", "id": 1},
            "type": {"type": "uint32", "id": 2},
            "friend": {"type": "Friend", "id": 3}
          }
        },
        "NotifyNewFriendApply": {
          "fields": {
            "account_id": {"type": "uint32", "id": 1},
            "apply_time": {"type": "uint32", "id": 2}
          }
        }
      }
    }
  }
}`

func newTestRegistry(t *testing.T) *protocol.Registry {
	t.Helper()
	doc, err := protocol.ParseDocument([]byte(lobbyTestDefinition))
	require.NoError(t, err)
	return protocol.NewRegistry(doc)
}

// inlineLoop 同步执行的任务池替身
type inlineLoop struct{}

func (inlineLoop) Start() error                          { return nil }
func (inlineLoop) Stop()                                 {}
func (inlineLoop) Status() work.LoopStatus               { return work.LoopStatus{} }
func (inlineLoop) Post(job func())                       { job() }
func (inlineLoop) PostCtx(_ context.Context, job func()) { job() }

// encodeResponse 构造一条响应帧
func encodeResponse(t *testing.T, reg *protocol.Registry, method string, index uint16, values map[string]any) []byte {
	t.Helper()
	_, res, err := reg.Method(method)
	require.NoError(t, err)
	payload, err := res.Marshal(values)
	require.NoError(t, err)
	frame, err := protocol.EncodeFrame(protocol.KindResponse, index, "", payload)
	require.NoError(t, err)
	return frame
}

package lobby

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/protocol"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/store"
	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
)

/*
	登录握手 三条通道最终都收敛到loginBeat
	密码通道 login
	令牌通道 oauth2Check -> oauth2Login
	Yostar通道 oauth2Auth -> oauth2Check -> oauth2Login
*/

const (
	passwordHMACKey   = "lailai"
	loginBeatContract = "DF2vkXCnfeXp4WoGSBGNcJBufZiMN3UP"

	// oauth2Check偶发慢半拍 复检前等一等
	oauth2RecheckDelay = 2 * time.Second
)

var currencyPlatforms = []int{2, 6, 8, 10, 11}

// LoginResult 握手完成后的账号信息
type LoginResult struct {
	AccountID   int64
	Nickname    string
	AccessToken string
}

// authErr 只把应用层错误码判成凭据问题
// 超时/链路错误原样透出 不触发调用方的账密兜底
func authErr(stage string, err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s: %v", ErrAuthentication, stage, err)
	}
	return fmt.Errorf("lobby: %s: %w", stage, err)
}

// HashPassword 密码上行前的HMAC处理 库里只存处理后的值
func HashPassword(password string) string {
	mac := hmac.New(sha256.New, []byte(passwordHMACKey))
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

func deviceInfo() map[string]any {
	return map[string]any{
		"platform":      "pc",
		"hardware":      "pc",
		"os":            "windows",
		"os_version":    "win10",
		"is_browser":    true,
		"software":      "Chrome",
		"sale_platform": "web",
	}
}

// LoginPassword 账密登录 password应为HashPassword后的值
func (c *Connection) LoginPassword(ctx context.Context, account, password string) (*LoginResult, error) {
	res, err := c.Call(ctx, ".lq.Lobby.login", map[string]any{
		"account":    account,
		"password":   password,
		"reconnect":  false,
		"device":     deviceInfo(),
		"random_key": uuid.NewString(),
		"client_version": map[string]any{
			"resource": c.endpoint.Version,
		},
		"gen_access_token":      true,
		"currency_platforms":    currencyPlatforms,
		"type":                  0,
		"version":               0,
		"client_version_string": c.endpoint.ClientVersionString,
	})
	if err != nil {
		return nil, authErr("login", err)
	}
	return c.finishLogin(ctx, res)
}

// LoginToken 用上次下发的access token免密登录
func (c *Connection) LoginToken(ctx context.Context, accessToken string) (*LoginResult, error) {
	ok, err := c.oauth2Check(ctx, store.LoginTypePassword, accessToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 账号状态可能尚未就绪 等一拍复检
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(oauth2RecheckDelay):
		}
		if ok, err = c.oauth2Check(ctx, store.LoginTypePassword, accessToken); err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: access token rejected", ErrAuthentication)
		}
	}
	return c.oauth2Login(ctx, store.LoginTypePassword, accessToken)
}

// LoginYostar Yostar渠道登录 先用渠道token换access token
func (c *Connection) LoginYostar(ctx context.Context, uid, token string) (*LoginResult, error) {
	res, err := c.Call(ctx, ".lq.Lobby.oauth2Auth", map[string]any{
		"type":                  store.LoginTypeYostar,
		"code":                  token,
		"uid":                   uid,
		"client_version_string": c.endpoint.ClientVersionString,
	})
	if err != nil {
		return nil, authErr("oauth2Auth", err)
	}
	accessToken := res.String("access_token")
	if accessToken == "" {
		return nil, fmt.Errorf("%w: oauth2Auth returned no access token", ErrAuthentication)
	}

	ok, err := c.oauth2Check(ctx, store.LoginTypeYostar, accessToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: yostar access token rejected", ErrAuthentication)
	}
	return c.oauth2Login(ctx, store.LoginTypeYostar, accessToken)
}

func (c *Connection) oauth2Check(ctx context.Context, loginType int, accessToken string) (bool, error) {
	res, err := c.Call(ctx, ".lq.Lobby.oauth2Check", map[string]any{
		"type":         loginType,
		"access_token": accessToken,
	})
	if err != nil {
		return false, authErr("oauth2Check", err)
	}
	return res.Bool("has_account"), nil
}

func (c *Connection) oauth2Login(ctx context.Context, loginType int, accessToken string) (*LoginResult, error) {
	res, err := c.Call(ctx, ".lq.Lobby.oauth2Login", map[string]any{
		"type":         loginType,
		"access_token": accessToken,
		"reconnect":    false,
		"device":       deviceInfo(),
		"random_key":   uuid.NewString(),
		"client_version": map[string]any{
			"resource": c.endpoint.Version,
		},
		"gen_access_token":      true,
		"currency_platforms":    currencyPlatforms,
		"client_version_string": c.endpoint.ClientVersionString,
	})
	if err != nil {
		return nil, authErr("oauth2Login", err)
	}
	return c.finishLogin(ctx, res)
}

// finishLogin 校验登录响应 重建好友名单 发loginBeat 进入Ready
func (c *Connection) finishLogin(ctx context.Context, res *protocol.Message) (*LoginResult, error) {
	accountID := res.Msg("account").Int("account_id")
	if accountID == 0 {
		accountID = res.Int("account_id")
	}
	if accountID == 0 {
		return nil, fmt.Errorf("%w: login response has no account id", ErrAuthentication)
	}

	result := &LoginResult{
		AccountID:   accountID,
		Nickname:    res.Msg("account").String("nickname"),
		AccessToken: res.String("access_token"),
	}

	// 好友名单重建失败不阻断登录 名单靠后续通知补齐
	if err := c.FetchInfo(ctx); err != nil {
		log.Warnf("[conn:%s] fetch info: %v", c.id, err)
	}

	if _, err := c.Call(ctx, ".lq.Lobby.loginBeat", map[string]any{
		"contract": loginBeatContract,
	}); err != nil {
		return nil, authErr("loginBeat", err)
	}

	c.markReady(accountID)
	return result, nil
}

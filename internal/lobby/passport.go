package lobby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

/*
	Yostar渠道登录的前置换码
	渠道下发的uid/token先到passport换一次性登录code 再交给oauth2Auth
*/

const (
	defaultPassportURL = "https://passport.mahjongsoul.com/user/login"
	passportUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.88 Safari/537.36"
)

// passportOrigin 按账号语言选门户 决定Referer/Origin
func passportOrigin(lang string) string {
	if lang == "jp" {
		return "https://game.mahjongsoul.com/"
	}
	return "https://mahjongsoul.game.yo-star.com/"
}

// PassportClient passport换码客户端
type PassportClient struct {
	url    string
	client *http.Client
}

// PassportOption passport客户端配置函数
type PassportOption func(*PassportClient)

// WithPassportURL 覆盖换码地址
func WithPassportURL(url string) PassportOption {
	return func(p *PassportClient) { p.url = url }
}

func NewPassportClient(opts ...PassportOption) *PassportClient {
	p := &PassportClient{
		url:    defaultPassportURL,
		client: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Exchange 用渠道token换登录code token被拒时报ErrAuthentication
func (p *PassportClient) Exchange(ctx context.Context, uid, token, lang string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"uid":      uid,
		"token":    token,
		"deviceId": "web|" + uid,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	origin := passportOrigin(lang)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", passportUserAgent)
	req.Header.Set("Referer", origin)
	req.Header.Set("Origin", origin)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("lobby: passport login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lobby: passport login: status %d", resp.StatusCode)
	}

	var out struct {
		Result      int    `json:"result"`
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("lobby: passport login: %w", err)
	}
	if out.Result != 0 || out.AccessToken == "" {
		return "", fmt.Errorf("%w: passport rejected token for %s (result=%d)", ErrAuthentication, uid, out.Result)
	}
	return out.AccessToken, nil
}

package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KimigaiiWuyi/MajsoulUID/library/ext"
	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
)

/*
	服务发现链
	version.json -> resversion -> liqi.json -> config.json -> 区服网关列表
	每一跳失败都带上阶段名包进ErrDiscovery
*/

const liqiResourceKey = "res/proto/liqi.json"

// Endpoint 一次发现得到的接入点
type Endpoint struct {
	GatewayURL          string // wss网关地址
	Version             string // 平台版本 形如0.10.113.w
	ClientVersionString string // 登录用 形如web-0.10.113
}

// Discovery 接入点发现器
type Discovery struct {
	base   string // 形如 https://game.maj-soul.com/1
	client *http.Client
}

func NewDiscovery(base string) *Discovery {
	return &Discovery{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Discover 走完整条发现链 返回接入点和当前版本的协议定义文档
// 区服维护中返回*MaintenanceError 调用方可与凭据错误区分
func (d *Discovery) Discover(ctx context.Context) (*Endpoint, []byte, error) {
	version, err := d.fetchVersion(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: version: %v", ErrDiscovery, err)
	}

	prefix, err := d.fetchResVersion(ctx, version)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: resversion: %v", ErrDiscovery, err)
	}

	liqi, err := d.get(ctx, fmt.Sprintf("%s/%s/%s", d.base, prefix, liqiResourceKey))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: liqi document: %v", ErrDiscovery, err)
	}

	regionURL, err := d.fetchRegionURL(ctx, prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: config: %v", ErrDiscovery, err)
	}

	gateway, err := d.fetchGateway(ctx, regionURL)
	if err != nil {
		var maint *MaintenanceError
		if errors.As(err, &maint) {
			return nil, nil, maint
		}
		return nil, nil, fmt.Errorf("%w: server list: %v", ErrDiscovery, err)
	}

	ep := &Endpoint{
		GatewayURL:          gateway,
		Version:             version,
		ClientVersionString: "web-" + strings.TrimSuffix(version, ".w"),
	}
	log.Infof("[discovery] endpoint resolved version=%s gateway=%s", ep.Version, ep.GatewayURL)
	return ep, liqi, nil
}

func (d *Discovery) fetchVersion(ctx context.Context) (string, error) {
	var v struct {
		Version string `json:"version"`
	}
	if err := d.getJSON(ctx, d.base+"/version.json", &v); err != nil {
		return "", err
	}
	if v.Version == "" {
		return "", fmt.Errorf("empty version")
	}
	return v.Version, nil
}

// fetchResVersion 资源清单里带着协议文档的版本化路径前缀
func (d *Discovery) fetchResVersion(ctx context.Context, version string) (string, error) {
	var rv struct {
		Res map[string]struct {
			Prefix string `json:"prefix"`
		} `json:"res"`
	}
	url := fmt.Sprintf("%s/resversion%s.json", d.base, version)
	if err := d.getJSON(ctx, url, &rv); err != nil {
		return "", err
	}
	entry, ok := rv.Res[liqiResourceKey]
	if !ok || entry.Prefix == "" {
		return "", fmt.Errorf("resource %q not in manifest", liqiResourceKey)
	}
	return entry.Prefix, nil
}

// fetchRegionURL 解析config.json 线上存在两种形态
//
//	新版: ip[].region_urls[] 为 {"url": "..."} 对象
//	旧版: ip[].region_urls 为 {"name": "url"} 映射
func (d *Discovery) fetchRegionURL(ctx context.Context, prefix string) (string, error) {
	raw, err := d.get(ctx, fmt.Sprintf("%s/%s/config.json", d.base, prefix))
	if err != nil {
		return "", err
	}

	var cfg struct {
		IP []struct {
			Name       string            `json:"name"`
			RegionURLs []json.RawMessage `json:"region_urls"`
		} `json:"ip"`
	}
	if err := json.Unmarshal(raw, &cfg); err == nil && len(cfg.IP) > 0 && len(cfg.IP[0].RegionURLs) > 0 {
		first := cfg.IP[0].RegionURLs[0]

		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(first, &obj); err == nil && obj.URL != "" {
			return obj.URL, nil
		}
		var plain string
		if err := json.Unmarshal(first, &plain); err == nil && plain != "" {
			return plain, nil
		}
	}

	var legacy struct {
		IP []struct {
			RegionURLs map[string]string `json:"region_urls"`
		} `json:"ip"`
	}
	if err := json.Unmarshal(raw, &legacy); err == nil && len(legacy.IP) > 0 {
		for _, url := range legacy.IP[0].RegionURLs {
			if url != "" {
				return url, nil
			}
		}
	}
	return "", fmt.Errorf("no region url in config")
}

// fetchGateway 拉区服网关列表并随机挑一个
func (d *Discovery) fetchGateway(ctx context.Context, regionURL string) (string, error) {
	url := regionURL
	if !strings.Contains(url, "?") {
		url += "?service=ws-gateway&protocol=ws&ssl=true"
	}

	var list struct {
		Maintenance json.RawMessage `json:"maintenance"`
		Servers     []string        `json:"servers"`
	}
	if err := d.getJSON(ctx, url, &list); err != nil {
		return "", err
	}
	if len(list.Maintenance) > 0 {
		return "", &MaintenanceError{Message: string(list.Maintenance)}
	}
	if len(list.Servers) == 0 {
		return "", fmt.Errorf("empty server list")
	}

	server := ext.Pick(list.Servers)
	if !strings.Contains(server, "/") {
		server += "/gateway"
	}
	return "wss://" + server, nil
}

func (d *Discovery) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (d *Discovery) getJSON(ctx context.Context, url string, out any) error {
	raw, err := d.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	return nil
}

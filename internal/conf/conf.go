// Package conf loads the bridge's bootstrap configuration from a YAML file
// over built-in defaults.
package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const Name = "majsoul-bridge"
const Version = "v0.1.0"

// Duration 让yaml里能写"300s"这类时长
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("conf: bad duration %q: %v", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Bootstrap 进程启动配置
type Bootstrap struct {
	Log     Log     `yaml:"log"`
	Data    Data    `yaml:"data"`
	Redis   Redis   `yaml:"redis"`
	Push    Push    `yaml:"push"`
	Majsoul Majsoul `yaml:"majsoul"`
}

type Log struct {
	Level      string `yaml:"level"`
	Directory  string `yaml:"directory"`
	FormatJson bool   `yaml:"formatJson"`
	ErrorFile  bool   `yaml:"errorFile"`
}

type Data struct {
	DSN string `yaml:"dsn"` // postgres连接串
}

type Redis struct {
	Addr       string   `yaml:"addr"`
	Password   string   `yaml:"password"`
	DB         int      `yaml:"db"`
	ArchiveTTL Duration `yaml:"archiveTtl"` // 牌谱档案保留时长 0为永久
}

type Push struct {
	MetaBotID    string `yaml:"metaBotId"`
	MetaTarget   string `yaml:"metaTarget"` // 运维广播目标 为空则只打日志
	MirrorToMeta bool   `yaml:"mirrorToMeta"`
}

type Majsoul struct {
	BaseURL           string   `yaml:"baseUrl"`
	CheckInterval     Duration `yaml:"checkInterval"` // 连接巡检周期
	HeartbeatMin      Duration `yaml:"heartbeatMin"`
	HeartbeatMax      Duration `yaml:"heartbeatMax"`
	AutoAcceptApplies bool     `yaml:"autoAcceptApplies"`
}

// Default 内置默认值 配置文件按字段覆盖
func Default() *Bootstrap {
	return &Bootstrap{
		Log: Log{
			Level:     "info",
			Directory: "./logs",
			ErrorFile: true,
		},
		Redis: Redis{
			Addr: "127.0.0.1:6379",
		},
		Majsoul: Majsoul{
			BaseURL:       "https://game.maj-soul.com/1",
			CheckInterval: Duration(2 * time.Minute),
			HeartbeatMin:  Duration(300 * time.Second),
			HeartbeatMax:  Duration(360 * time.Second),
		},
	}
}

// Load 读取path并叠加到默认值上 path为空只回默认值
func Load(path string) (*Bootstrap, error) {
	bc := Default()
	if path == "" {
		return bc, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conf: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, bc); err != nil {
		return nil, fmt.Errorf("conf: parse %s: %w", path, err)
	}
	return bc, bc.validate()
}

func (bc *Bootstrap) validate() error {
	if bc.Majsoul.BaseURL == "" {
		return fmt.Errorf("conf: majsoul.baseUrl is required")
	}
	if bc.Majsoul.HeartbeatMin <= 0 || bc.Majsoul.HeartbeatMax < bc.Majsoul.HeartbeatMin {
		return fmt.Errorf("conf: invalid heartbeat range [%s, %s]",
			bc.Majsoul.HeartbeatMin.Std(), bc.Majsoul.HeartbeatMax.Std())
	}
	return nil
}

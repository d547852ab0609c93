package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	DevTools struct {
		URL              string `yaml:"url"`
		CommandTimeoutMS int    `yaml:"commandTimeoutMS"`
	} `yaml:"devtools"`

	Capture struct {
		MarkerAttribute   string `yaml:"markerAttribute"`
		SettleDelayMS     int    `yaml:"settleDelayMS"`
		Concurrency       int    `yaml:"concurrency"`
		TruncateThreshold int    `yaml:"truncateThreshold"`
		TruncateKeep      int    `yaml:"truncateKeep"`
		CleanupRetries    int    `yaml:"cleanupRetries"`
		FreezeStyleID     string `yaml:"freezeStyleID"`
	} `yaml:"capture"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level      string   `yaml:"level"`
		Writer     []string `yaml:"writer"`
		File       string   `yaml:"file"`
		MaxSizeMB  int      `yaml:"maxSizeMB"`
		MaxBackups int      `yaml:"maxBackups"`
		MaxAgeDays int      `yaml:"maxAgeDays"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.DevTools.URL = "http://127.0.0.1:9222"
	c.DevTools.CommandTimeoutMS = 5000

	c.Capture.MarkerAttribute = "data-cdpsnap-id"
	c.Capture.SettleDelayMS = 50
	c.Capture.Concurrency = 16
	c.Capture.TruncateThreshold = 500
	c.Capture.TruncateKeep = 30
	c.Capture.CleanupRetries = 2
	c.Capture.FreezeStyleID = "cdpsnap-disable-transitions"

	c.Sqlite.Dsn = "cdpsnap.sqlite3"
	c.Sqlite.Prefix = "cdpsnap_"

	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	c.Log.File = "cdpsnap.log"
	c.Log.MaxSizeMB = 20
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 14
	return c
}

// Load 读取 YAML 配置，文件不存在时使用默认值；随后应用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CDPSNAP_DEVTOOLS_URL"); v != "" {
		c.DevTools.URL = v
	}
	if v := os.Getenv("CDPSNAP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CDPSNAP_SQLITE_DSN"); v != "" {
		c.Sqlite.Dsn = v
	}
}

// normalize 把非法的数值恢复为默认值
func (c *Config) normalize() {
	d := NewConfig()
	if c.DevTools.CommandTimeoutMS <= 0 {
		c.DevTools.CommandTimeoutMS = d.DevTools.CommandTimeoutMS
	}
	if c.Capture.MarkerAttribute == "" {
		c.Capture.MarkerAttribute = d.Capture.MarkerAttribute
	}
	if c.Capture.SettleDelayMS < 0 {
		c.Capture.SettleDelayMS = d.Capture.SettleDelayMS
	}
	if c.Capture.Concurrency <= 0 {
		c.Capture.Concurrency = d.Capture.Concurrency
	}
	if c.Capture.TruncateThreshold <= 0 {
		c.Capture.TruncateThreshold = d.Capture.TruncateThreshold
	}
	if c.Capture.TruncateKeep <= 0 || c.Capture.TruncateKeep >= c.Capture.TruncateThreshold {
		c.Capture.TruncateKeep = d.Capture.TruncateKeep
	}
	if c.Capture.CleanupRetries < 0 {
		c.Capture.CleanupRetries = 0
	}
	if c.Capture.FreezeStyleID == "" {
		c.Capture.FreezeStyleID = d.Capture.FreezeStyleID
	}
}

// CommandTimeout 单条协议命令的超时
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.DevTools.CommandTimeoutMS) * time.Millisecond
}

// SettleDelay 强制 hover 后读取样式前的等待时间
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Capture.SettleDelayMS) * time.Millisecond
}

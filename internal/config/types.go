package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述全局运行时行为，所有 App 共享同一份参数。
type GlobalConfig struct {
	ListenPort        int      `mapstructure:"ListenPort"`
	LogLevel          string   `mapstructure:"LogLevel"`
	LogFormat         string   `mapstructure:"LogFormat"`
	LogFilePath       string   `mapstructure:"LogFilePath"`
	LogMaxSize        int      `mapstructure:"LogMaxSize"`
	LogMaxBackups     int      `mapstructure:"LogMaxBackups"`
	LogCompress       bool     `mapstructure:"LogCompress"`
	StoragePath       string   `mapstructure:"StoragePath"`
	StorageBackend    string   `mapstructure:"StorageBackend"`
	UpstreamTimeout   Duration `mapstructure:"UpstreamTimeout"`
	CacheWriteTimeout Duration `mapstructure:"CacheWriteTimeout"`
	MaxEntrySize      int64    `mapstructure:"MaxEntrySize"`
}

// AppConfig 描述一个被托管的前端应用：对外 Origin、回源地址与分类规则。
type AppConfig struct {
	Name              string   `mapstructure:"Name"`
	Origin            string   `mapstructure:"Origin"`
	Upstream          string   `mapstructure:"Upstream"`
	Proxy             string   `mapstructure:"Proxy"`
	Generation        string   `mapstructure:"Generation"`
	Preset            string   `mapstructure:"Preset"`
	Crate             string   `mapstructure:"Crate"`
	MutablePaths      []string `mapstructure:"MutablePaths"`
	ImmutablePatterns []string `mapstructure:"ImmutablePatterns"`
	Variants          []string `mapstructure:"Variants"`
	HashLength        int      `mapstructure:"HashLength"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Apps   []AppConfig  `mapstructure:"App"`
}

// Generations 返回所有 App 的当前缓存代摘要，例如 demo:v2，供启动日志使用。
func Generations(apps []AppConfig) []string {
	if len(apps) == 0 {
		return nil
	}
	result := make([]string, len(apps))
	for i, app := range apps {
		result[i] = fmt.Sprintf("%s:%s", app.Name, app.Generation)
	}
	return result
}

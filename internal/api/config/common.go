package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg
func LoadConfig() error {
	dir := os.Getenv("ROGER_CONFIG_DIR")
	if dir == "" {
		dir = "./configs"
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

// Default 返回仅包含默认值的配置，测试与无配置文件时使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 7313)
	v.SetDefault("backend.base_url", "https://api.rogertalk.com")
	v.SetDefault("backend.timeout", 15)
	v.SetDefault("backend.retry_queue_size", 64)
	v.SetDefault("cache.dir", os.TempDir()+"/roger/cache")
	v.SetDefault("cache.container_dir", os.TempDir()+"/roger/container")
	v.SetDefault("cache.temp_dir", os.TempDir()+"/roger/tmp")
	v.SetDefault("cache.retention_hours", 48)
	v.SetDefault("audio.release_delay_ms", 2000)
	v.SetDefault("audio.poll_interval_ms", 100)
	v.SetDefault("audio.rewind_seconds", 5)
	v.SetDefault("audio.download_concurrency", 4)
	v.SetDefault("audio.default_rate", 1.0)
	v.SetDefault("contacts.default_region", "")
	v.SetDefault("contacts.refresh_hours", 12)
	v.SetDefault("contacts.batch_size", 500)
	v.SetDefault("redis.pool_size", 4)
	v.SetDefault("log.level", "info")
}

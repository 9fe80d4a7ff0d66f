// Package config loads the broker's TOML configuration file.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/sublime-ycmd/sublime-ycmd/internal/launch"
	"github.com/sublime-ycmd/sublime-ycmd/internal/logger"
)

// FileConfig represents the top-level TOML structure.
//
//	[ycmd]
//	root = "/opt/ycmd"
//	interpreter = "/usr/bin/python3"
//	[server]
//	idle_suicide_seconds = 300
//	[broker]
//	background_threads = 10
//	listen = "127.0.0.1:8650"
type FileConfig struct {
	Ycmd   YcmdConfig   `toml:"ycmd" mapstructure:"ycmd"`
	Server ServerConfig `toml:"server" mapstructure:"server"`
	Broker BrokerConfig `toml:"broker" mapstructure:"broker"`
}

// YcmdConfig locates the backend checkout and its interpreter.
type YcmdConfig struct {
	Root        string `toml:"root" mapstructure:"root"`
	Settings    string `toml:"settings" mapstructure:"settings"`
	Interpreter string `toml:"interpreter" mapstructure:"interpreter"`
}

// ServerConfig tunes individual backend servers.
type ServerConfig struct {
	IdleSuicideSeconds   int    `toml:"idle_suicide_seconds" mapstructure:"idle_suicide_seconds"`
	CheckIntervalSeconds int    `toml:"check_interval_seconds" mapstructure:"check_interval_seconds"`
	LogLevel             string `toml:"log_level" mapstructure:"log_level"`
	KeepLogFiles         bool   `toml:"keep_logfiles" mapstructure:"keep_logfiles"`

	// Capture, when set, routes backend stdio into rotated files instead of
	// in-memory spools.
	Capture *logger.FileConfig `toml:"capture" mapstructure:"capture"`
}

// BrokerConfig tunes the broker process itself.
type BrokerConfig struct {
	BackgroundThreads int    `toml:"background_threads" mapstructure:"background_threads"`
	Listen            string `toml:"listen" mapstructure:"listen"`
	LogLevel          string `toml:"log_level" mapstructure:"log_level"`
	Store             string `toml:"store" mapstructure:"store"`
}

// DefaultListen is the daemon's debug API address when none is configured.
const DefaultListen = "127.0.0.1:8650"

// Load parses the TOML file at path.
func Load(path string) (FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return FileConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fc.withDefaults(), nil
}

func (c FileConfig) withDefaults() FileConfig {
	if c.Broker.Listen == "" {
		c.Broker.Listen = DefaultListen
	}
	return c
}

// Params converts the file configuration into a launch-parameter template.
// Omitted fields keep their zero value and get computed defaults at launch
// time.
func (c FileConfig) Params() launch.Params {
	p := launch.Params{
		RootDir:              c.Ycmd.Root,
		SettingsPath:         c.Ycmd.Settings,
		Interpreter:          c.Ycmd.Interpreter,
		IdleSuicideSeconds:   c.Server.IdleSuicideSeconds,
		CheckIntervalSeconds: c.Server.CheckIntervalSeconds,
		LogLevel:             c.Server.LogLevel,
		KeepLogFiles:         c.Server.KeepLogFiles,
	}
	if c.Server.Capture != nil {
		p.CaptureLog = *c.Server.Capture
	}
	return p
}

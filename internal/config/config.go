package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/pixelligue/zvonizvonu/internal/media"
)

type RateLimit struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type Media struct {
	NumWorkers             int    `mapstructure:"num_workers"`
	ListenIP               string `mapstructure:"listen_ip"`
	AnnouncedIP            string `mapstructure:"announced_ip"`
	RTCMinPort             uint16 `mapstructure:"rtc_min_port"`
	RTCMaxPort             uint16 `mapstructure:"rtc_max_port"`
	MaxIncomingBitrate     int    `mapstructure:"max_incoming_bitrate"`
	InitialOutgoingBitrate int    `mapstructure:"initial_outgoing_bitrate"`
}

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	StaticPath  string        `mapstructure:"static_path"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	WriteWait   time.Duration `mapstructure:"write_wait"`
	SendBuffer  int           `mapstructure:"send_buffer"`
	Secret      string        `mapstructure:"secret"`
	LogLevel    string        `mapstructure:"log_level"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	RateLimit   RateLimit     `mapstructure:"rate_limit"`
	SlowPeer    string        `mapstructure:"slow_peer"`
	Media       Media         `mapstructure:"media"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3001)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "25s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("rate_limit.messages", 50)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("slow_peer", "drop")

	v.SetDefault("media.num_workers", 0)
	v.SetDefault("media.listen_ip", "0.0.0.0")
	v.SetDefault("media.announced_ip", "")
	v.SetDefault("media.rtc_min_port", 10000)
	v.SetDefault("media.rtc_max_port", 10100)
	v.SetDefault("media.max_incoming_bitrate", 1500000)
	v.SetDefault("media.initial_outgoing_bitrate", 1000000)
}

// Load reads config/config.<CONFIG_ENV>.yaml; any key can be overridden by
// ZVONI_<KEY> with dots replaced by underscores.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("ZVONI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Msg("effective config")
	return &cfg, nil
}

// MediaConfig converts the media section into engine settings.
func (c *Config) MediaConfig() media.Config {
	return media.Config{
		NumWorkers:                      c.Media.NumWorkers,
		ListenIP:                        c.Media.ListenIP,
		AnnouncedIP:                     c.Media.AnnouncedIP,
		RTCMinPort:                      c.Media.RTCMinPort,
		RTCMaxPort:                      c.Media.RTCMaxPort,
		MaxIncomingBitrate:              c.Media.MaxIncomingBitrate,
		InitialAvailableOutgoingBitrate: c.Media.InitialOutgoingBitrate,
		LogLevel:                        c.LogLevel,
	}
}

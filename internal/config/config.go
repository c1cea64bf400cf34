package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/metrics"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RoomsConfig struct {
	// Policy is lazy (allocate on first use) or eager (only Preload ids exist).
	Policy  string   `mapstructure:"policy"`
	Preload []string `mapstructure:"preload"`
}

type EngineConfig struct {
	// Kind selects the media engine: ortc or loopback.
	Kind          string        `mapstructure:"kind"`
	PortMin       uint16        `mapstructure:"port_min"`
	PortMax       uint16        `mapstructure:"port_max"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ShutdownDelay time.Duration `mapstructure:"shutdown_delay"`
	ListenIP      string        `mapstructure:"listen_ip"`
	AnnouncedIP   string        `mapstructure:"announced_ip"`
}

type SignalConfig struct {
	SendBuffer   int     `mapstructure:"send_buffer"`
	RateLimit    float64 `mapstructure:"rate_limit"`
	RateBurst    int     `mapstructure:"rate_burst"`
	Backpressure string  `mapstructure:"backpressure"`
}

type EventsConfig struct {
	AMQPURL string `mapstructure:"amqp_url"`
	Queue   string `mapstructure:"queue"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Rooms  RoomsConfig  `mapstructure:"rooms"`
	Engine EngineConfig `mapstructure:"engine"`
	Signal SignalConfig `mapstructure:"signal"`
	Events EventsConfig `mapstructure:"events"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "voice-spaces")
	v.SetDefault("log_level", "info")

	v.SetDefault("rooms.policy", "lazy")
	v.SetDefault("rooms.preload", []string{})

	v.SetDefault("engine.kind", "ortc")
	v.SetDefault("engine.port_min", 2000)
	v.SetDefault("engine.port_max", 2020)
	v.SetDefault("engine.timeout", "10s")
	v.SetDefault("engine.shutdown_delay", "2s")
	v.SetDefault("engine.listen_ip", "0.0.0.0")
	v.SetDefault("engine.announced_ip", "")

	v.SetDefault("signal.send_buffer", 32)
	v.SetDefault("signal.rate_limit", 20)
	v.SetDefault("signal.rate_burst", 40)
	v.SetDefault("signal.backpressure", "drop")

	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.queue", "voice.spaces.membership")
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults.
// VOICE_ prefixed env vars override file values (VOICE_ENGINE_KIND=loopback).
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := newViper(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("engine", cfg.Engine.Kind).
		Str("rooms", cfg.Rooms.Policy).
		Msg("config ready")

	if v.ConfigFileUsed() != "" && fileExists(fileName) {
		watch(v)
	}
	return cfg, nil
}

func newViper(fileName string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Engine.PortMin > cfg.Engine.PortMax {
		return nil, fmt.Errorf("engine port range %d-%d is empty", cfg.Engine.PortMin, cfg.Engine.PortMax)
	}
	return &cfg, nil
}

// watch reapplies the log level when the file changes. Everything else
// needs a restart.
func watch(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		metrics.ConfigReloads.Inc()
		level := v.GetString("log_level")
		if err := ApplyLogLevel(level); err != nil {
			log.Warn().Err(err).Str("module", "config").Msg("ignoring log level change")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Str("log_level", level).Msg("config reloaded")
	})
	v.WatchConfig()
}

// ApplyLogLevel sets the zerolog global level. Empty keeps info.
func ApplyLogLevel(level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func fileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

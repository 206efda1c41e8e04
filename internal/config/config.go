package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode             string        `mapstructure:"mode"`
	Port             int           `mapstructure:"port"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	SendBuffer       int           `mapstructure:"send_buffer"`
	DuplicateRoom    string        `mapstructure:"duplicate_room"`
	StrictMembership bool          `mapstructure:"strict_membership"`
	CreateLimit      int           `mapstructure:"create_limit"`
	CreateInterval   time.Duration `mapstructure:"create_interval"`
	Backpressure     string        `mapstructure:"backpressure"`
}

const (
	DuplicateReject    = "reject"
	DuplicateOverwrite = "overwrite"
)

// OverwriteRooms reports whether create_room may replace a live room.
func (c *Config) OverwriteRooms() bool { return c.DuplicateRoom == DuplicateOverwrite }

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("read_limit must be positive: %d", c.ReadLimit))
	}
	if c.PingPeriod <= 0 {
		errs = append(errs, fmt.Errorf("ping_period must be positive: %s", c.PingPeriod))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send_buffer must be positive: %d", c.SendBuffer))
	}
	if c.DuplicateRoom != DuplicateReject && c.DuplicateRoom != DuplicateOverwrite {
		errs = append(errs, fmt.Errorf("duplicate_room must be %q or %q: %q", DuplicateReject, DuplicateOverwrite, c.DuplicateRoom))
	}
	if c.CreateLimit > 0 && c.CreateInterval <= 0 {
		errs = append(errs, fmt.Errorf("create_interval must be positive when create_limit is set"))
	}
	return errors.Join(errs...)
}

// Load reads config/config.<CONFIG_ENV>.yaml (or --config), then CALLHUB_*
// environment variables, then flags. A missing default file is not an error.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("callhub", pflag.ContinueOnError)
	file := flags.String("config", "", "path to a yaml config file")
	flags.Int("port", 8080, "listen port")
	flags.String("mode", "release", "release or debug")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("duplicate_room", DuplicateReject)
	v.SetDefault("strict_membership", true)
	v.SetDefault("create_limit", 10)
	v.SetDefault("create_interval", "1m")
	v.SetDefault("backpressure", "drop")

	v.SetEnvPrefix("CALLHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("port", flags.Lookup("port")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("mode", flags.Lookup("mode")); err != nil {
		return nil, err
	}

	fileName := *file
	explicit := fileName != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("duplicate_room", cfg.DuplicateRoom).Msg("config ready")
	return &cfg, nil
}

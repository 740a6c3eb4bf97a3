package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvOverrides are the settings that can come from the environment (or a
// .env file) instead of the config file. Set values win over the file.
type EnvOverrides struct {
	TelegramToken string  `env:"CASTBOT_TELEGRAM_TOKEN"`
	OwnerIDs      []int64 `env:"CASTBOT_OWNER_IDS" envSeparator:","`
	StorageDriver string  `env:"CASTBOT_STORAGE_DRIVER"`
	StoragePath   string  `env:"CASTBOT_STORAGE_PATH"`
	LogLevel      string  `env:"CASTBOT_LOG_LEVEL"`
}

// LoadDotEnv loads ./.env when present.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("load .env file: %w", err)
		}
	}
	return nil
}

func ReadEnv() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return o, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

func (o EnvOverrides) Apply(cfg *Config) {
	if v := strings.TrimSpace(o.TelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if len(o.OwnerIDs) > 0 {
		cfg.Telegram.OwnerIDs = append([]int64(nil), o.OwnerIDs...)
	}
	if v := strings.TrimSpace(o.StorageDriver); v != "" {
		cfg.Storage.Driver = v
	}
	if v := strings.TrimSpace(o.StoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

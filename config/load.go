package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

const ConfigPathEnv = "INCIDENTDESK_CONFIG"

// Load reads the YAML file at path when it exists and then applies
// environment overrides. An empty path falls back to INCIDENTDESK_CONFIG.
func Load(path string) (*AppConfig, error) {
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv(ConfigPathEnv))
	}
	var cfg AppConfig
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, cfg.Validate()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, cfg.Validate()
}

func (c *AppConfig) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	if c.IsProduction() && strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("jwt secret is required in production")
	}
	switch c.Uploads.Backend {
	case "", "disk":
	case "s3":
		if strings.TrimSpace(c.Uploads.S3.Bucket) == "" {
			return errors.New("s3 bucket is required for the s3 uploads backend")
		}
	default:
		return fmt.Errorf("unsupported uploads backend %q", c.Uploads.Backend)
	}
	switch c.Notify.Driver {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("unsupported notify driver %q", c.Notify.Driver)
	}
	return nil
}

// Usage renders the environment variable reference.
func Usage() string {
	var cfg AppConfig
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}

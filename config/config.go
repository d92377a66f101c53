package config

import (
	"fmt"
	"strings"
	"time"

	"gigs/entity"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	APIURL    string `envconfig:"API_URL" required:"true"`
	SocketURL string `envconfig:"SOCKET_URL" required:"true"`
	AuthToken string `envconfig:"AUTH_TOKEN" required:"true"`

	UserID   string `envconfig:"USER_ID" required:"true"`
	UserRole string `envconfig:"USER_ROLE" required:"true"`
	UserName string `envconfig:"USER_NAME"`

	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	TypingTimeout time.Duration `envconfig:"TYPING_TIMEOUT" default:"3s"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.User(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate rejects required variables that are set but blank; envconfig only
// checks that they are present.
func (c Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"API_URL", c.APIURL},
		{"SOCKET_URL", c.SocketURL},
		{"AUTH_TOKEN", c.AuthToken},
		{"USER_ID", c.UserID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("required key %s is empty", r.name)
		}
	}
	return nil
}

func (c Config) User() (entity.User, error) {
	role, err := entity.ParseRole(c.UserRole)
	if err != nil {
		return entity.User{}, fmt.Errorf("USER_ROLE: %w", err)
	}
	return entity.User{ID: c.UserID, Name: c.UserName, Role: role}, nil
}

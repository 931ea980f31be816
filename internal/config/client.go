package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/iudanet/gophtex/internal/session"
)

// Client настройки клиента
type Client struct {
	Logging   Logging `yaml:"logging"`
	ServerURL string  `yaml:"server_url"` // пустой адрес означает поиск сервера через mDNS
	DBPath    string  `yaml:"db"`
	// DiscoveryTimeout время поиска сервера в локальной сети
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	// Reconnect задержки переподключения к комнате
	Reconnect session.BackoffConfig `yaml:"reconnect"`
}

// DefaultClient возвращает настройки клиента по умолчанию
func DefaultClient() *Client {
	return &Client{
		DBPath:           "gophtex-client.db",
		Logging:          Logging{Level: "warn", Format: "text"},
		DiscoveryTimeout: 3 * time.Second,
		Reconnect:        session.DefaultBackoffConfig(),
	}
}

// LoadClient собирает настройки клиента из значений по умолчанию,
// файла path (если задан) и переменных окружения.
// Флаги применяет вызывающая сторона.
func LoadClient(path string, lookup LookupEnv) (*Client, error) {
	cfg := DefaultClient()

	if path == "" {
		path, _ = lookup(EnvPrefix + "CLIENT_CONFIG")
	}
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	env := &envReader{lookup: lookup}
	env.string("SERVER", &cfg.ServerURL)
	env.string("CLIENT_DB", &cfg.DBPath)
	env.string("LOG_LEVEL", &cfg.Logging.Level)
	env.string("LOG_FORMAT", &cfg.Logging.Format)
	env.duration("DISCOVERY_TIMEOUT", &cfg.DiscoveryTimeout)
	env.duration("RECONNECT_INITIAL", &cfg.Reconnect.Initial)
	env.duration("RECONNECT_MAX", &cfg.Reconnect.Max)
	if env.err != nil {
		return nil, env.err
	}

	return cfg, nil
}

// Validate проверяет настройки клиента
func (c *Client) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: empty database path", ErrInvalidConfig)
	}
	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: server url %q", ErrInvalidConfig, c.ServerURL)
		}
		switch u.Scheme {
		case "http", "https":
		default:
			return fmt.Errorf("%w: server url %q must use http or https", ErrInvalidConfig, c.ServerURL)
		}
	}
	if c.DiscoveryTimeout <= 0 {
		return fmt.Errorf("%w: discovery timeout must be positive", ErrInvalidConfig)
	}
	if c.Reconnect.Initial < 0 || c.Reconnect.Max < c.Reconnect.Initial {
		return fmt.Errorf("%w: reconnect delays", ErrInvalidConfig)
	}
	return nil
}

package config

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/iudanet/gophtex/internal/crypto"
)

// Драйверы хранилища проектов
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Storage настройки хранилища метаданных проектов
type Storage struct {
	Driver string `yaml:"driver"` // sqlite или postgres
	DSN    string `yaml:"dsn"`    // путь к файлу sqlite или строка подключения postgres
}

// Redis настройки шины между узлами. Пустой адрес означает один узел.
type Redis struct {
	Addr string `yaml:"addr"`
}

// RateLimit ограничения частоты запросов
type RateLimit struct {
	Window   time.Duration `yaml:"window"`
	Identity int           `yaml:"identity"` // выдача идентичности, по IP
	API      int           `yaml:"api"`      // остальные запросы, по участнику
}

// Rooms настройки комнат
type Rooms struct {
	GracePeriod      time.Duration `yaml:"grace_period"`      // задержка освобождения пустой комнаты
	AwarenessTimeout time.Duration `yaml:"awareness_timeout"` // срок жизни присутствия без обновлений
	JanitorInterval  time.Duration `yaml:"janitor_interval"`  // период очистки присутствия и tombstone
}

// Discovery объявление сервера в локальной сети через mDNS
type Discovery struct {
	Instance string `yaml:"instance"`
	Enabled  bool   `yaml:"enabled"`
}

// Server настройки сервера
type Server struct {
	Storage         Storage       `yaml:"storage"`
	Logging         Logging       `yaml:"logging"`
	Discovery       Discovery     `yaml:"discovery"`
	Redis           Redis         `yaml:"redis"`
	Addr            string        `yaml:"addr"`
	BaseURL         string        `yaml:"base_url"` // адрес, из которого строятся ссылки на файлы
	Secret          string        `yaml:"secret"`   // общий секрет узлов: подпись токенов и ссылок
	NodeID          string        `yaml:"node_id"`
	Rooms           Rooms         `yaml:"rooms"`
	RateLimit       RateLimit     `yaml:"rate_limit"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultServer возвращает настройки сервера по умолчанию
func DefaultServer() *Server {
	return &Server{
		Addr:    ":8080",
		BaseURL: "http://localhost:8080",
		Storage: Storage{
			Driver: DriverSQLite,
			DSN:    "gophtex.db",
		},
		Logging: Logging{Level: "info", Format: "text"},
		RateLimit: RateLimit{
			Window:   time.Minute,
			Identity: 10,
			API:      600,
		},
		Rooms: Rooms{
			GracePeriod:      30 * time.Second,
			AwarenessTimeout: 30 * time.Second,
			JanitorInterval:  10 * time.Second,
		},
		Discovery:       Discovery{Instance: "gophtex"},
		TokenTTL:        30 * 24 * time.Hour,
		ShutdownTimeout: 10 * time.Second,
	}
}

// ServerOptions результат разбора командной строки сервера
type ServerOptions struct {
	Config      *Server
	ShowVersion bool
}

// LoadServer собирает настройки сервера из всех источников.
// args - аргументы командной строки без имени программы.
func LoadServer(args []string, lookup LookupEnv, output io.Writer) (*ServerOptions, error) {
	fs := flag.NewFlagSet("gophtex-server", flag.ContinueOnError)
	fs.SetOutput(output)

	// Флаги разбираются первыми, но применяются последними
	var flags Server
	configPath := fs.String("config", "", "Path to YAML config file (env GOPHTEX_CONFIG)")
	showVersion := fs.Bool("version", false, "Show version information")
	fs.StringVar(&flags.Addr, "addr", "", "HTTP listen address")
	fs.StringVar(&flags.BaseURL, "base-url", "", "Public base URL used in share links")
	fs.StringVar(&flags.Secret, "secret", "", "Shared server secret (prefer GOPHTEX_SECRET)")
	fs.StringVar(&flags.NodeID, "node-id", "", "Node identifier on the bus")
	fs.StringVar(&flags.Storage.Driver, "db-driver", "", "Project store driver: sqlite or postgres")
	fs.StringVar(&flags.Storage.DSN, "db", "", "Project store DSN or sqlite path")
	fs.StringVar(&flags.Redis.Addr, "redis", "", "Redis address for multi-node fan-out")
	fs.StringVar(&flags.Logging.Level, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&flags.Logging.Format, "log-format", "", "Log format: text or json")
	fs.BoolVar(&flags.Discovery.Enabled, "mdns", false, "Advertise server via mDNS")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := DefaultServer()

	path := *configPath
	if path == "" {
		path, _ = lookup(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = flags.Addr
		case "base-url":
			cfg.BaseURL = flags.BaseURL
		case "secret":
			cfg.Secret = flags.Secret
		case "node-id":
			cfg.NodeID = flags.NodeID
		case "db-driver":
			cfg.Storage.Driver = flags.Storage.Driver
		case "db":
			cfg.Storage.DSN = flags.Storage.DSN
		case "redis":
			cfg.Redis.Addr = flags.Redis.Addr
		case "log-level":
			cfg.Logging.Level = flags.Logging.Level
		case "log-format":
			cfg.Logging.Format = flags.Logging.Format
		case "mdns":
			cfg.Discovery.Enabled = flags.Discovery.Enabled
		}
	})

	opts := &ServerOptions{Config: cfg, ShowVersion: *showVersion}
	if opts.ShowVersion {
		return opts, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (c *Server) applyEnv(lookup LookupEnv) error {
	env := &envReader{lookup: lookup}
	env.string("ADDR", &c.Addr)
	env.string("BASE_URL", &c.BaseURL)
	env.string("SECRET", &c.Secret)
	env.string("NODE_ID", &c.NodeID)
	env.string("DB_DRIVER", &c.Storage.Driver)
	env.string("DB_DSN", &c.Storage.DSN)
	env.string("REDIS_ADDR", &c.Redis.Addr)
	env.string("LOG_LEVEL", &c.Logging.Level)
	env.string("LOG_FORMAT", &c.Logging.Format)
	env.bool("MDNS", &c.Discovery.Enabled)
	env.string("MDNS_INSTANCE", &c.Discovery.Instance)
	env.int("RATE_LIMIT_IDENTITY", &c.RateLimit.Identity)
	env.int("RATE_LIMIT_API", &c.RateLimit.API)
	env.duration("RATE_LIMIT_WINDOW", &c.RateLimit.Window)
	env.duration("ROOM_GRACE_PERIOD", &c.Rooms.GracePeriod)
	env.duration("AWARENESS_TIMEOUT", &c.Rooms.AwarenessTimeout)
	env.duration("JANITOR_INTERVAL", &c.Rooms.JanitorInterval)
	env.duration("TOKEN_TTL", &c.TokenTTL)
	env.duration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	return env.err
}

// Validate проверяет согласованность настроек сервера
func (c *Server) Validate() error {
	if len(c.Secret) < crypto.MinSecretLen {
		return fmt.Errorf("%w: secret must be at least %d characters (set GOPHTEX_SECRET)", ErrInvalidConfig, crypto.MinSecretLen)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalidConfig)
	}

	base, err := url.Parse(c.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return fmt.Errorf("%w: base url %q must be absolute http(s) URL", ErrInvalidConfig, c.BaseURL)
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("%w: empty storage dsn", ErrInvalidConfig)
	}

	if c.RateLimit.Identity <= 0 || c.RateLimit.API <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("%w: rate limits must be positive", ErrInvalidConfig)
	}
	if c.Rooms.AwarenessTimeout <= 0 || c.Rooms.JanitorInterval <= 0 || c.Rooms.GracePeriod < 0 {
		return fmt.Errorf("%w: room timings must be positive", ErrInvalidConfig)
	}
	if c.TokenTTL <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: token ttl and shutdown timeout must be positive", ErrInvalidConfig)
	}

	if _, err := c.Logging.NewLogger(io.Discard); err != nil {
		return err
	}
	return nil
}

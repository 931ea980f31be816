// Package config собирает настройки сервера и клиента.
// Приоритет источников: значения по умолчанию, YAML-файл,
// переменные окружения GOPHTEX_*, флаги командной строки.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "GOPHTEX_"

// ErrInvalidConfig возвращается при некорректных значениях настроек
var ErrInvalidConfig = errors.New("invalid config")

// LookupEnv источник переменных окружения (os.LookupEnv в рабочем режиме)
type LookupEnv func(key string) (string, bool)

// Logging настройки журнала
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text или json
}

// NewLogger создает slog.Logger по настройкам журнала
func (l Logging) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("%w: log level %q", ErrInvalidConfig, l.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(l.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log format %q", ErrInvalidConfig, l.Format)
	}
}

// loadYAML читает файл настроек поверх cfg. Неизвестные поля считаются ошибкой.
func loadYAML(path string, cfg interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// envReader применяет переменные окружения и запоминает первую ошибку разбора
type envReader struct {
	lookup LookupEnv
	err    error
}

func (e *envReader) string(name string, dst *string) {
	if v, ok := e.lookup(EnvPrefix + name); ok {
		*dst = v
	}
}

func (e *envReader) bool(name string, dst *bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v)
		return
	}
	*dst = b
}

func (e *envReader) int(name string, dst *int) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v)
		return
	}
	*dst = n
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v)
		return
	}
	*dst = d
}

func (e *envReader) fail(name, value string) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s%s=%q", ErrInvalidConfig, EnvPrefix, name, value)
	}
}

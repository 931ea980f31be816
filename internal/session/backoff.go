package session

import (
	"time"

	"github.com/cenkalti/backoff"
)

// BackoffConfig параметры экспоненциальной задержки переподключения
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"` // доля случайного разброса, 0..1
}

// DefaultBackoffConfig значения по умолчанию
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.5,
	}
}

// NewBackOff строит политику задержек. Попытки не ограничены по времени:
// сессия переподключается, пока ее не закроют.
func (c BackoffConfig) NewBackOff() backoff.BackOff {
	defaults := DefaultBackoffConfig()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = pick(c.Initial, defaults.Initial)
	b.MaxInterval = pick(c.Max, defaults.Max)
	b.Multiplier = defaults.Multiplier
	if c.Multiplier >= 1 {
		b.Multiplier = c.Multiplier
	}
	b.RandomizationFactor = defaults.Jitter
	if c.Jitter >= 0 && c.Jitter <= 1 {
		b.RandomizationFactor = c.Jitter
	}
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}

func pick(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

package dlock

import (
	"errors"
	"fmt"
	"time"
)

// Backend names accepted by New.
const (
	BackendLocal  = "local"
	BackendFile   = "file"
	BackendRemote = "remote"
)

// Config selects and tunes a lock backend.
type Config struct {
	Backend        string        `yaml:"backend"`
	Dir            string        `yaml:"dir"`
	TTL            time.Duration `yaml:"ttl"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	DeadlineFactor int           `yaml:"deadline_factor"`
	KeyPrefix      string        `yaml:"key_prefix"`
}

// Options converts the tunables of cfg into backend options.
func (c Config) Options() []Option {
	opts := []Option{
		WithTTL(c.TTL),
		WithRetryDelay(c.RetryDelay),
		WithDeadlineFactor(c.DeadlineFactor),
	}
	if c.KeyPrefix != "" {
		opts = append(opts, WithKeyPrefix(c.KeyPrefix))
	}
	return opts
}

// New builds the backend named by cfg. client is only used by the remote backend.
func New(cfg Config, client Client, opts ...Option) (Locker, error) {
	opts = append(cfg.Options(), opts...)

	switch cfg.Backend {
	case "", BackendLocal:
		return NewLocal(opts...), nil
	case BackendFile:
		if cfg.Dir == "" {
			return nil, errors.New("dlock: file backend needs a directory")
		}
		f, err := NewFile(cfg.Dir, opts...)
		if err != nil {
			return nil, err
		}
		return f, nil
	case BackendRemote:
		if client == nil {
			return nil, errors.New("dlock: remote backend needs a coordination client")
		}
		return NewRemote(client, opts...), nil
	default:
		return nil, fmt.Errorf("dlock: unknown backend %q", cfg.Backend)
	}
}

// Package config loads raw entry credit settings from a YAML file and the
// process environment.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goliatone/go-entry-credits/core"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultEnvPrefix = "ENTRY_CREDITS_"
	// ConfigFileEnv names the YAML file to load when no path was given.
	ConfigFileEnv = DefaultEnvPrefix + "CONFIG"
)

var intKeys = map[string]bool{
	"ingest.max_attempts":     true,
	"ingest.retry_backoff_ms": true,
	"outbox.batch_size":       true,
	"outbox.max_attempts":     true,
}

var boolKeys = map[string]bool{
	"webhook.enforce_signature": true,
}

// KoanfLoader implements core.RawConfigLoader. Precedence (low to high):
// YAML file, then environment. Nested keys use a double underscore in env
// names, e.g. ENTRY_CREDITS_WEBHOOK__SIGNATURE_HEADER.
type KoanfLoader struct {
	path      string
	envPrefix string
}

type Option func(*KoanfLoader)

func WithFile(path string) Option {
	return func(l *KoanfLoader) {
		l.path = strings.TrimSpace(path)
	}
}

func WithEnvPrefix(prefix string) Option {
	return func(l *KoanfLoader) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			l.envPrefix = prefix
		}
	}
}

func NewKoanfLoader(opts ...Option) *KoanfLoader {
	loader := &KoanfLoader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(loader)
		}
	}
	return loader
}

func (l *KoanfLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := koanf.New(".")

	path := l.path
	if path == "" {
		path = strings.TrimSpace(os.Getenv(l.envPrefix + "CONFIG"))
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	var convErr error
	prefix := strings.ToLower(l.envPrefix)
	provider := env.ProviderWithValue(l.envPrefix, ".", func(key string, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), prefix)
		if key == "config" {
			return "", nil
		}
		key = strings.ReplaceAll(key, "__", ".")
		typed, err := coerce(key, value)
		if err != nil && convErr == nil {
			convErr = err
		}
		return key, typed
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}
	if convErr != nil {
		return nil, convErr
	}
	return k.Raw(), nil
}

func coerce(key string, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch {
	case intKeys[key]:
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidConfig, key)
		}
		return parsed, nil
	case boolKeys[key]:
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidConfig, key)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

// Load layers defaults, the file and env values, then runtime overrides, and
// validates the result.
func Load(ctx context.Context, runtime core.Config, opts ...Option) (core.Config, error) {
	defaults := core.DefaultConfig()
	loaded, err := core.NewCfgxConfigProvider(NewKoanfLoader(opts...)).Load(ctx, defaults)
	if err != nil {
		return core.Config{}, err
	}
	resolved, err := core.GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		return core.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return resolved, nil
}

var _ core.RawConfigLoader = (*KoanfLoader)(nil)

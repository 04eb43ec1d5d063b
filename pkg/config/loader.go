package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// cache keeps one parsed copy per configuration type.
type cache struct {
	mu     sync.RWMutex
	values map[reflect.Type]any
	onces  map[reflect.Type]*sync.Once
}

var (
	globalCache = newCache()

	dotenvOnce sync.Once
)

func newCache() *cache {
	return &cache{
		values: make(map[reflect.Type]any),
		onces:  make(map[reflect.Type]*sync.Once),
	}
}

// LoadEnv reads the given .env files into the process environment. Variables
// already set are not overwritten. Without arguments it reads ./.env.
// Call it before the first Load.
func LoadEnv(paths ...string) error {
	var err error
	dotenvOnce.Do(func() {
		err = godotenv.Load(paths...)
	})
	return err
}

// MustLoadEnv is LoadEnv that panics on failure.
func MustLoadEnv(paths ...string) {
	if err := LoadEnv(paths...); err != nil {
		panic(fmt.Sprintf("failed to load env files: %v", err))
	}
}

// Load parses environment variables into v using `env` struct tags. Each
// configuration type is parsed once per process; later calls return the
// cached copy. A missing ./.env file is not an error.
//
//	var cfg billing.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	key := reflect.TypeFor[T]()
	if key.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s", ErrInvalidConfigType, key)
	}

	if cached, ok := globalCache.get(key); ok {
		*v = cached.(T)
		return nil
	}

	globalCache.mu.Lock()
	once, ok := globalCache.onces[key]
	if !ok {
		once = new(sync.Once)
		globalCache.onces[key] = once
	}
	globalCache.mu.Unlock()

	var err error
	once.Do(func() {
		var parsed T
		if perr := env.Parse(&parsed); perr != nil {
			err = errors.Join(ErrParsingConfig, perr)
			// Allow a retry once the environment is fixed.
			globalCache.mu.Lock()
			delete(globalCache.onces, key)
			globalCache.mu.Unlock()
			return
		}
		globalCache.mu.Lock()
		globalCache.values[key] = parsed
		globalCache.mu.Unlock()
	})
	if err != nil {
		return err
	}

	if cached, ok := globalCache.get(key); ok {
		*v = cached.(T)
		return nil
	}
	return ErrConfigNotLoaded
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// ResetCache drops all cached configurations. Intended for tests.
func ResetCache() {
	globalCache.mu.Lock()
	defer globalCache.mu.Unlock()
	globalCache.values = make(map[reflect.Type]any)
	globalCache.onces = make(map[reflect.Type]*sync.Once)
}

func (c *cache) get(key reflect.Type) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Package cache provee un cache chico multi-backend (memoria o Redis).
//
// Los flows lo usan para memoizar hechos baratos de re-derivar: la
// existencia de la property definition y metadatos de sesión del
// management API. Nunca se cachean valores de properties de usuarios.
package cache

import (
	"fmt"
	"time"
)

// Cache es la interfaz mínima que consumen los flows.
type Cache interface {
	Get(k string) ([]byte, bool)
	Set(k string, v []byte, ttl time.Duration)
	Delete(k string)
}

// Config selecciona e inicializa el backend.
type Config struct {
	Kind       string // "memory" (default) | "redis"
	RedisAddr  string
	RedisDB    int
	Prefix     string
	DefaultTTL time.Duration
}

// New construye el backend según la config.
func New(cfg Config) (Cache, error) {
	switch cfg.Kind {
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("cache: redis seleccionado sin addr")
		}
		return NewRedis(cfg.RedisAddr, cfg.RedisDB, cfg.Prefix), nil
	case "memory", "":
		return NewMemory(cfg.DefaultTTL), nil
	default:
		return nil, fmt.Errorf("cache: backend desconocido %q", cfg.Kind)
	}
}

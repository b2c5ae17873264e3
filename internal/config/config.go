// Package config carga la configuración del servicio: YAML opcional con
// overrides por variables de entorno. Los secretos pueden venir cifrados
// con el prefijo ENC: (ver internal/security/secretbox) y se descifran al
// cargar.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/claimbridge/internal/security/secretbox"
)

type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	// Store es el management API de la plataforma (property store).
	Store struct {
		BaseURL      string        `yaml:"base_url"`
		ClientID     string        `yaml:"client_id"`
		ClientSecret string        `yaml:"client_secret"` // admite ENC:
		Audience     string        `yaml:"audience"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"store"`

	// Property: lo único configurable de la property es su categoría;
	// la key y el resto de atributos son constantes del contrato.
	Property struct {
		CategoryID string `yaml:"category_id"`
	} `yaml:"property"`

	// TriggerAuth valida las entregas firmadas de la plataforma.
	TriggerAuth struct {
		SharedSecret string `yaml:"shared_secret"` // admite ENC:
		JWKSURL      string `yaml:"jwks_url"`
		Issuer       string `yaml:"issuer"`
		Audience     string `yaml:"audience"`
	} `yaml:"trigger_auth"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`
}

func defaults() *Config {
	c := &Config{}
	c.App.Env = "dev"
	c.Server.Addr = ":8084"
	c.Log.Level = "info"
	c.Store.Timeout = 10 * time.Second
	c.Cache.Kind = "memory"
	c.Cache.Memory.DefaultTTL = 5 * time.Minute
	c.Cache.Redis.Prefix = "claimbridge"
	return c
}

// Load lee el YAML (si path es "" intenta config.yaml), aplica env y
// descifra secretos. El YAML es opcional: todo puede venir por entorno.
func Load(path string) (*Config, error) {
	c := defaults()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: leer %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("config: parsear %s: %w", path, err)
		}
	}

	c.applyEnv()

	if err := c.decryptSecrets(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// STORE
	if v, ok := getEnvStr("STORE_BASE_URL"); ok {
		c.Store.BaseURL = v
	}
	if v, ok := getEnvStr("STORE_CLIENT_ID"); ok {
		c.Store.ClientID = v
	}
	if v, ok := getEnvStr("STORE_CLIENT_SECRET"); ok {
		c.Store.ClientSecret = v
	}
	if v, ok := getEnvStr("STORE_AUDIENCE"); ok {
		c.Store.Audience = v
	}
	if d, ok := getEnvDur("STORE_TIMEOUT"); ok {
		c.Store.Timeout = d
	}

	// PROPERTY
	if v, ok := getEnvStr("PROPERTY_CATEGORY_ID"); ok {
		c.Property.CategoryID = v
	}

	// TRIGGER AUTH
	if v, ok := getEnvStr("TRIGGER_SHARED_SECRET"); ok {
		c.TriggerAuth.SharedSecret = v
	}
	if v, ok := getEnvStr("TRIGGER_JWKS_URL"); ok {
		c.TriggerAuth.JWKSURL = v
	}
	if v, ok := getEnvStr("TRIGGER_ISSUER"); ok {
		c.TriggerAuth.Issuer = v
	}
	if v, ok := getEnvStr("TRIGGER_AUDIENCE"); ok {
		c.TriggerAuth.Audience = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("CACHE_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if d, ok := getEnvDur("CACHE_MEMORY_TTL"); ok {
		c.Cache.Memory.DefaultTTL = d
	}
}

func (c *Config) decryptSecrets() error {
	var err error
	if c.Store.ClientSecret, err = secretbox.DecryptIfNeeded(c.Store.ClientSecret); err != nil {
		return fmt.Errorf("config: store.client_secret: %w", err)
	}
	if c.TriggerAuth.SharedSecret, err = secretbox.DecryptIfNeeded(c.TriggerAuth.SharedSecret); err != nil {
		return fmt.Errorf("config: trigger_auth.shared_secret: %w", err)
	}
	return nil
}

// Validate chequea lo mínimo para poder hablar con el management API.
func (c *Config) Validate() error {
	if c.Store.BaseURL == "" {
		return fmt.Errorf("config: store.base_url requerido (STORE_BASE_URL)")
	}
	if c.Store.ClientID == "" || c.Store.ClientSecret == "" {
		return fmt.Errorf("config: credenciales del management API requeridas (STORE_CLIENT_ID / STORE_CLIENT_SECRET)")
	}
	if c.Property.CategoryID == "" {
		return fmt.Errorf("config: property.category_id requerido (PROPERTY_CATEGORY_ID)")
	}
	return nil
}

// --- helpers env ---

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if v, ok := getEnvStr(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if v, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d, true
		}
	}
	return 0, false
}

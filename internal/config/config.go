package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// driver: postgres | memory
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Issuer     string `yaml:"issuer"`
		Audience   string `yaml:"audience"`
		SigningKey string `yaml:"signing_key"` // secreto HMAC-SHA256 (base64)
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	Crypto struct {
		// Clave/IV fijos para el cifrado at-rest de secretos TOTP (base64).
		// La clave debe decodificar a 32 bytes y el IV a 16.
		SecretKey string `yaml:"secret_key"`
		SecretIV  string `yaml:"secret_iv"`
	} `yaml:"crypto"`

	TOTP struct {
		Issuer       string `yaml:"issuer"`
		WindowSteps  int    `yaml:"window_steps"`
		ChallengeTTL string `yaml:"challenge_ttl"`
	} `yaml:"totp"`

	Security struct {
		PasswordPolicy struct {
			MinLength     int  `yaml:"min_length"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"password_policy"`
	} `yaml:"security"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Login   struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
	} `yaml:"rate"`
}

// Load lee el YAML de path y aplica defaults + overrides de entorno.
// Si path está vacío o el archivo no existe, parte de una config vacía
// (útil para correr sólo con variables de entorno).
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	c.applyEnv()

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "authcore"
	}
	if c.JWT.Audience == "" {
		c.JWT.Audience = c.JWT.Issuer
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "168h" // 7d
	}
	if c.TOTP.Issuer == "" {
		c.TOTP.Issuer = c.JWT.Issuer
	}
	if c.TOTP.WindowSteps == 0 {
		c.TOTP.WindowSteps = 1
	}
	if c.TOTP.ChallengeTTL == "" {
		c.TOTP.ChallengeTTL = "5m"
	}
	if c.Security.PasswordPolicy.MinLength == 0 {
		c.Security.PasswordPolicy.MinLength = 8
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}

	return &c, nil
}

// applyEnv pisa valores con variables de entorno (si están seteadas).
func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&c.App.Env, "APP_ENV")
	setStr(&c.Server.Addr, "SERVER_ADDR")
	setStr(&c.Storage.Driver, "STORAGE_DRIVER")
	setStr(&c.Storage.DSN, "DATABASE_URL")
	setStr(&c.Cache.Kind, "CACHE_KIND")
	setStr(&c.Cache.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Cache.Redis.Password, "REDIS_PASSWORD")
	setStr(&c.JWT.Issuer, "JWT_ISSUER")
	setStr(&c.JWT.Audience, "JWT_AUDIENCE")
	setStr(&c.JWT.SigningKey, "JWT_SIGNING_KEY")
	setStr(&c.Crypto.SecretKey, "CRYPTO_SECRET_KEY")
	setStr(&c.Crypto.SecretIV, "CRYPTO_SECRET_IV")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.Redis.DB = n
		}
	}
}

// Validate chequea los campos que no pueden esperar hasta el primer uso:
// credenciales criptográficas malformadas deben frenar el arranque.
func (c *Config) Validate() error {
	if c.JWT.SigningKey == "" {
		return fmt.Errorf("jwt.signing_key is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.Crypto.SecretKey)
	if err != nil {
		return fmt.Errorf("crypto.secret_key: invalid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("crypto.secret_key: must decode to 32 bytes, got %d", len(key))
	}
	iv, err := base64.StdEncoding.DecodeString(c.Crypto.SecretIV)
	if err != nil {
		return fmt.Errorf("crypto.secret_iv: invalid base64: %w", err)
	}
	if len(iv) != 16 {
		return fmt.Errorf("crypto.secret_iv: must decode to 16 bytes, got %d", len(iv))
	}
	return nil
}

// Duration helpers: parsean los strings de TTL con fallback.

func (c *Config) AccessTTL() time.Duration  { return parseDur(c.JWT.AccessTTL, 15*time.Minute) }
func (c *Config) RefreshTTL() time.Duration { return parseDur(c.JWT.RefreshTTL, 168*time.Hour) }
func (c *Config) ChallengeTTL() time.Duration {
	return parseDur(c.TOTP.ChallengeTTL, 5*time.Minute)
}
func (c *Config) LoginRateWindow() time.Duration { return parseDur(c.Rate.Login.Window, time.Minute) }
func (c *Config) CacheMemoryTTL() time.Duration {
	return parseDur(c.Cache.Memory.DefaultTTL, 2*time.Minute)
}

func parseDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DotEnvFile is loaded into the process environment before the env overlay
// when it exists. Variables already set in the environment win.
var DotEnvFile = ".env"

// parseEnv overlays config with the environment variables named in the
// Config `env` tags. Unset variables leave the current value alone.
// REDIS_URL, when set, replaces RedisAddr, RedisPassword and RedisDB.
// Malformed values panic, like the other layers.
func parseEnv(config *Config) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	if err := cleanenv.ReadEnv(config); err != nil {
		panic(fmt.Errorf("read env: %w", err))
	}

	if config.RedisURL != "" {
		addr, password, db, err := parseRedisURL(config.RedisURL)
		if err != nil {
			panic(fmt.Errorf("REDIS_URL: %w", err))
		}
		config.RedisAddr = addr
		config.RedisPassword = password
		config.RedisDB = db
	}
}

// parseRedisURL extracts host:port, password and DB from a redis:// or
// rediss:// URL.
func parseRedisURL(s string) (addr, password string, db int, err error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", "", 0, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return "", "", 0, fmt.Errorf("scheme must be redis or rediss, got %q", u.Scheme)
	}
	addr = u.Host
	if addr == "" {
		return "", "", 0, errors.New("missing host in Redis URL")
	}
	if u.User != nil {
		password, _ = u.User.Password()
	}
	if len(u.Path) > 1 {
		db, err = strconv.Atoi(strings.TrimPrefix(u.Path, "/"))
		if err != nil {
			return "", "", 0, fmt.Errorf("bad db index: %w", err)
		}
	}
	return addr, password, db, nil
}

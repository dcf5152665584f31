package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var defaultManifest = []string{
	"/",
	"/index.html",
	"/restaurant.html",
	"/css/styles.css",
	"/js/main.js",
	"/js/restaurant_info.js",
	"/js/dbhelper.js",
	"/data/restaurants.json",
	"https://unpkg.com/leaflet@1.3.1/dist/leaflet.css",
	"https://unpkg.com/leaflet@1.3.1/dist/leaflet.js",
}

var defaultAppShellRoutes = []string{
	`^/$`,
	`^/index\.html$`,
	`^/restaurant\.html$`,
	`^/(css|js|data)/`,
}

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	RemoteBase        string
	RemoteRPS         int
	RemoteMaxAttempts int

	AppOrigin      string
	TileOrigin     string
	StaticBucket   string
	ImageBucket    string
	TileBucket     string
	AppShellRoutes []string
	Manifest       []string

	ProbeInterval time.Duration
	SyncInterval  time.Duration
	Workers       int
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-numeric setting")
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/restaurants?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),

		RemoteBase:        strings.TrimRight(env("REMOTE_BASE_URL", "http://localhost:1337"), "/"),
		RemoteRPS:         atoi("REMOTE_RPS", 20),
		RemoteMaxAttempts: atoi("REMOTE_MAX_ATTEMPTS", 1),

		AppOrigin:      strings.TrimRight(env("APP_ORIGIN", "http://localhost:8000"), "/"),
		TileOrigin:     env("TILE_ORIGIN", "https://api.tiles.mapbox.com/v4/"),
		StaticBucket:   env("STATIC_BUCKET", "restaurants-static-v1"),
		ImageBucket:    env("IMAGE_BUCKET", "restaurants-img"),
		TileBucket:     env("TILE_BUCKET", "restaurants-tiles"),
		AppShellRoutes: list("APP_SHELL_ROUTES", defaultAppShellRoutes),
		Manifest:       list("MANIFEST", defaultManifest),

		ProbeInterval: time.Duration(atoi("PROBE_INTERVAL_SECONDS", 15)) * time.Second,
		SyncInterval:  time.Duration(atoi("SYNC_INTERVAL_SECONDS", 0)) * time.Second,
		Workers:       atoi("WARMUP_WORKERS", 8),
	}
	if c.RemoteMaxAttempts < 1 {
		c.RemoteMaxAttempts = 1
	}
	if c.StaticBucket == c.ImageBucket || c.StaticBucket == c.TileBucket {
		log.Warn().Str("static", c.StaticBucket).Msg("static bucket shares a name with a runtime bucket")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// list reads a comma separated setting.
func list(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

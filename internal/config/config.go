package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL        string
	DataDir            string
	LinesConfig        string
	Lines              map[string]LineConfig
	NATSURL            string
	NATSSubjectPrefix  string
	LogNATSSubjects    bool
	FrameInterval      time.Duration
	WindowPollInterval time.Duration
	ServiceStart       time.Duration
	ServiceEnd         time.Duration
	Location           *time.Location
	HTTPAddr           string
	MetricsAddr        string
	AllowedOrigins     []string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Snapshot database: DATABASE_URL / PG_DSN, else PG* vars when PGDATABASE
	// is set. Empty means the JSON files under DATA_DIR are used.
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" && os.Getenv("PGDATABASE") != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, os.Getenv("PGDATABASE"), sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, os.Getenv("PGDATABASE"), sslmode)
		}
	}
	cfg.DataDir = getenvDefault("DATA_DIR", "./data")

	// Per-line settings: YAML file, then RING_LINES on top.
	cfg.LinesConfig = os.Getenv("LINES_CONFIG")
	cfg.Lines = map[string]LineConfig{}
	if cfg.LinesConfig != "" {
		lines, err := LoadLines(cfg.LinesConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid LINES_CONFIG: %w", err)
		}
		cfg.Lines = lines
	}
	for _, id := range splitList(os.Getenv("RING_LINES")) {
		lc := cfg.Lines[id]
		lc.ID = id
		lc.Ring = true
		cfg.Lines[id] = lc
	}

	// Empty NATS_URL disables publishing.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "metro.vehicles")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Frame interval
	if v := os.Getenv("FRAME_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid FRAME_INTERVAL_MS: %q", v)
		}
		cfg.FrameInterval = time.Duration(ms) * time.Millisecond
	} else {
		cfg.FrameInterval = time.Second
	}

	// Override window poll interval (seconds)
	if v := os.Getenv("WINDOW_POLL_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid WINDOW_POLL_INTERVAL_SEC: %q", v)
		}
		cfg.WindowPollInterval = time.Duration(sec) * time.Second
	} else {
		cfg.WindowPollInterval = 60 * time.Second
	}

	// Daily service window
	var err error
	if cfg.ServiceStart, err = clockEnv("SERVICE_START", 5*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ServiceEnd, err = clockEnv("SERVICE_END", 22*time.Hour+30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ServiceEnd <= cfg.ServiceStart {
		return nil, fmt.Errorf("SERVICE_END must be after SERVICE_START")
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	if strings.EqualFold(cfg.HTTPAddr, "off") {
		cfg.HTTPAddr = ""
	}
	// Metrics listen address (e.g., ":9102"). Empty serves /metrics on HTTP_ADDR only.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	cfg.AllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

// clockEnv reads an "HH:MM" offset from midnight.
func clockEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	hh, mm, ok := strings.Cut(v, ":")
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if !ok || errH != nil || errM != nil || h < 0 || h > 24 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"emprestimos/internal/schedule"
)

// Mirror backends accepted in MIRROR_BACKEND.
const (
	MirrorNone     = "none"
	MirrorMemory   = "memory"
	MirrorSheets   = "sheets"
	MirrorPostgres = "postgres"
)

var validMirrors = []string{MirrorNone, MirrorMemory, MirrorSheets, MirrorPostgres}

// Bounds checked by Validate.
const (
	maxSyncBatch    = 1000
	minSyncInterval = time.Second
	maxSyncInterval = 24 * time.Hour
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Mirror selection
	MirrorBackend string
	MirrorDataDir string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Postgres / Supabase
	PostgresURL string

	// Worker
	SyncBatchSize  int
	SyncInterval   time.Duration
	SyncMaxRetries int

	// Engine and services
	ScheduleMode     string
	SaverConcurrency int
	WorkspaceCache   int
	LogLevel         string
}

// Load reads the configuration from the environment. Unset or unparsable
// values fall back to the defaults; Validate checks the result.
func Load() *Config {
	return &Config{
		Port:         env("PORT", "8081", str),
		SQLiteDBPath: env("SQLITE_DB_PATH", "./data/emprestimos.db", str),

		AMQPURL:      env("AMQP_URL", "", str),
		AMQPExchange: env("AMQP_EXCHANGE", "emprestimos", str),
		AMQPQueue:    env("AMQP_QUEUE", "sync_records", str),

		MirrorBackend: strings.ToLower(env("MIRROR_BACKEND", MirrorNone, str)),
		MirrorDataDir: env("MIRROR_DATA_DIR", "data", str),

		GoogleSpreadsheetID:      env("GOOGLE_SPREADSHEET_ID", "", str),
		GoogleServiceAccountJSON: env("GOOGLE_SERVICE_ACCOUNT_JSON", "", str),
		GoogleServiceAccountFile: env("GOOGLE_SERVICE_ACCOUNT_FILE", env("GOOGLE_APPLICATION_CREDENTIALS", "", str), str),

		PostgresURL: env("POSTGRES_URL", "", str),

		SyncBatchSize:  env("SYNC_BATCH_SIZE", 10, strconv.Atoi),
		SyncInterval:   env("SYNC_INTERVAL", 30*time.Second, time.ParseDuration),
		SyncMaxRetries: env("SYNC_MAX_RETRIES", 3, strconv.Atoi),

		ScheduleMode:     env("SCHEDULE_MODE", string(schedule.ModeFlat), str),
		SaverConcurrency: env("SAVER_CONCURRENCY", 4, strconv.Atoi),
		WorkspaceCache:   env("WORKSPACE_CACHE_SIZE", 64, strconv.Atoi),
		LogLevel:         env("LOG_LEVEL", "info", str),
	}
}

func str(s string) (string, error) { return s, nil }

func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

// Mode returns the default schedule strategy. Validate reports unknown names.
func (c *Config) Mode() schedule.Mode {
	m, err := schedule.ParseMode(c.ScheduleMode)
	if err != nil {
		return schedule.ModeFlat
	}
	return m
}

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate reports every problem at once. It also creates the directory of
// SQLiteDBPath when missing.
func (c *Config) Validate() error {
	var p problems
	c.checkServer(&p)
	c.checkAMQP(&p)
	c.checkMirror(&p)
	c.checkSync(&p)
	c.checkEngine(&p)
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(p, "\n- "))
}

func (c *Config) checkServer(p *problems) {
	if port, err := strconv.Atoi(c.Port); err != nil {
		p.addf("invalid port '%s': must be a number", c.Port)
	} else if port < 1 || port > 65535 {
		p.addf("invalid port %d: must be between 1 and 65535", port)
	}

	if c.SQLiteDBPath == "" {
		p.addf("SQLite database path cannot be empty")
		return
	}
	if dir := filepath.Dir(c.SQLiteDBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			p.addf("cannot create SQLite database directory '%s': %v", dir, err)
		}
	}
}

func (c *Config) checkAMQP(p *problems) {
	if c.AMQPURL == "" {
		return
	}
	if u, err := url.Parse(c.AMQPURL); err != nil {
		p.addf("invalid AMQP URL '%s': %v", c.AMQPURL, err)
	} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
		p.addf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme)
	}
	if c.AMQPExchange == "" {
		p.addf("AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		p.addf("AMQP queue name cannot be empty when AMQP URL is provided")
	}
}

func (c *Config) checkMirror(p *problems) {
	if !slices.Contains(validMirrors, c.MirrorBackend) {
		p.addf("invalid mirror backend '%s': must be one of %v", c.MirrorBackend, validMirrors)
		return
	}
	switch c.MirrorBackend {
	case MirrorSheets:
		if c.GoogleSpreadsheetID == "" {
			p.addf("Google Spreadsheet ID is required when using sheets mirror")
		}
		switch {
		case c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "":
			p.addf("either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets mirror")
		case c.GoogleServiceAccountFile != "":
			if _, err := os.Stat(c.GoogleServiceAccountFile); err != nil {
				p.addf("Google service account file is not readable: %v", err)
			}
		}
	case MirrorPostgres:
		if c.PostgresURL == "" {
			p.addf("POSTGRES_URL is required when using postgres mirror")
		} else if u, err := url.Parse(c.PostgresURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			p.addf("invalid POSTGRES_URL: must be a postgres:// URL")
		}
	}
}

func (c *Config) checkSync(p *problems) {
	switch {
	case c.SyncBatchSize < 1:
		p.addf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize)
	case c.SyncBatchSize > maxSyncBatch:
		p.addf("invalid sync batch size %d: must be at most %d", c.SyncBatchSize, maxSyncBatch)
	}
	switch {
	case c.SyncInterval < minSyncInterval:
		p.addf("invalid sync interval %v: must be at least %v", c.SyncInterval, minSyncInterval)
	case c.SyncInterval > maxSyncInterval:
		p.addf("invalid sync interval %v: must be at most %v", c.SyncInterval, maxSyncInterval)
	}
	if c.SyncMaxRetries < 1 {
		p.addf("invalid sync max retries %d: must be at least 1", c.SyncMaxRetries)
	}
}

func (c *Config) checkEngine(p *problems) {
	if _, err := schedule.ParseMode(c.ScheduleMode); err != nil {
		p.addf("invalid schedule mode '%s': must be flat or annuity", c.ScheduleMode)
	}
	if c.SaverConcurrency < 1 {
		p.addf("invalid saver concurrency %d: must be at least 1", c.SaverConcurrency)
	}
}

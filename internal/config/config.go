// Package config provides application configuration loaded from environment
// variables and an optional .env file. Use the package-level Get() function
// to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        // e.g. "8080"
	BackofficePort string        // e.g. "8081"
	Env            string        // "development" | "production"
	ReadTimeout    time.Duration // default 10s
	WriteTimeout   time.Duration // default 10s
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN; assembled from PG* when empty
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// BotConfig holds chat-platform settings shared by the presentation adapter
// and the notifier.
type BotConfig struct {
	Token              string  // Telegram bot token; also the adapter's shared secret
	AdminIDs           []int64 // chat ids allowed into the backoffice
	MainMenuPhotoURL   string
	EventsMenuPhotoURL string
	AdminTokenTTL      time.Duration // backoffice JWT lifetime, default 12h
}

// CryptoConfig holds payment provider settings.
type CryptoConfig struct {
	Token        string        // Crypto-Pay-API-Token header value
	BaseURL      string        // provider-fixed; overridable for tests
	DefaultAsset string        // default "USDT"
	HTTPTimeout  time.Duration // default 15s
}

// WagerConfig holds fee and matchmaking settings.
type WagerConfig struct {
	FeePct           float64       // platform fee as decimal fraction, e.g. 0.10
	AmountsUSDT      []int64       // suggested stake ladder for the chat keyboard
	FastPollAttempts int           // per-intent fast path iterations, default 15
	FastPollInterval time.Duration // default 2s
}

// WorkerConfig holds background loop intervals and batch sizes.
type WorkerConfig struct {
	ReconcileInterval  time.Duration // default 6s
	SettleInterval     time.Duration // default 30s
	SettleBatch        int           // default 100
	SyncInterval       time.Duration // default 20s
	ReminderInterval   time.Duration // default 10m
	ReminderAfterStart time.Duration // nag admins this long after start, default 15m
}

// SheetConfig holds catalog spreadsheet settings.
type SheetConfig struct {
	SpreadsheetID string
	GID           string // worksheet gid within the spreadsheet, default "0"
	FetchTimeout  time.Duration
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Bot    BotConfig
	Crypto CryptoConfig
	Wager  WagerConfig
	Worker WorkerConfig
	Sheet  SheetConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// IsAdmin returns true when tgUserID appears in ADMIN_IDS.
func (c *Config) IsAdmin(tgUserID int64) bool {
	for _, id := range c.Bot.AdminIDs {
		if id == tgUserID {
			return true
		}
	}
	return false
}

// Validate checks that all required configuration values are present and
// valid. Returns every validation error encountered, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Bot.Token == "" {
		errs = append(errs, errors.New("BOT_TOKEN must be set"))
	}
	if c.Crypto.Token == "" {
		errs = append(errs, errors.New("CRYPTO_PAY_TOKEN must be set"))
	}
	if c.Wager.FeePct < 0 || c.Wager.FeePct >= 1 {
		errs = append(errs, fmt.Errorf(
			"FEE_PCT must be in [0, 1), got %.4f", c.Wager.FeePct))
	}
	if c.IsProd() && c.Sheet.SpreadsheetID == "" {
		errs = append(errs, errors.New("GSHEET_SPREADSHEET_ID must be set in production"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from the environment.
// Panics if loading fails — call this early in main() to catch
// misconfigurations at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:           getEnv("SERVER_PORT", "8080"),
		BackofficePort: getEnv("BACKOFFICE_PORT", "8081"),
		Env:            getEnv("ENVIRONMENT", "development"),
		ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from the PG* components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("PGHOST", "127.0.0.1"),
			getEnv("PGPORT", "5432"),
			getEnv("PGUSER", "app"),
			getEnv("PGPASSWORD", ""),
			getEnv("PGDATABASE", "bets"),
			getEnv("PGSSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── Bot ───────────────────────────────────────────────────────────────────
	adminIDs, err := parseIDList(getEnv("ADMIN_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS: %w", err)
	}
	cfg.Bot = BotConfig{
		Token:              getEnv("BOT_TOKEN", ""),
		AdminIDs:           adminIDs,
		MainMenuPhotoURL:   getEnv("MAIN_MENU_PHOTO_URL", ""),
		EventsMenuPhotoURL: getEnv("EVENTS_MENU_PHOTO_URL", ""),
		AdminTokenTTL:      getDuration("ADMIN_TOKEN_TTL", 12*time.Hour),
	}

	// ── Crypto provider ───────────────────────────────────────────────────────
	cfg.Crypto = CryptoConfig{
		Token:        getEnv("CRYPTO_PAY_TOKEN", ""),
		BaseURL:      getEnv("CRYPTO_PAY_BASE_URL", "https://pay.crypt.bot/api"),
		DefaultAsset: getEnv("CRYPTO_DEFAULT_ASSET", "USDT"),
		HTTPTimeout:  getDuration("CRYPTO_HTTP_TIMEOUT", 15*time.Second),
	}

	// ── Wager ─────────────────────────────────────────────────────────────────
	feePct, err := getFloat("FEE_PCT", 0.10)
	if err != nil {
		return nil, fmt.Errorf("FEE_PCT: %w", err)
	}
	fastAttempts, err := getInt("FAST_POLL_ATTEMPTS", 15)
	if err != nil {
		return nil, fmt.Errorf("FAST_POLL_ATTEMPTS: %w", err)
	}
	cfg.Wager = WagerConfig{
		FeePct:           feePct,
		AmountsUSDT:      []int64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		FastPollAttempts: fastAttempts,
		FastPollInterval: getDuration("FAST_POLL_INTERVAL", 2*time.Second),
	}

	// ── Workers ───────────────────────────────────────────────────────────────
	settleBatch, err := getInt("SETTLE_BATCH", 100)
	if err != nil {
		return nil, fmt.Errorf("SETTLE_BATCH: %w", err)
	}
	cfg.Worker = WorkerConfig{
		ReconcileInterval:  getDuration("RECONCILE_INTERVAL", 6*time.Second),
		SettleInterval:     getDuration("SETTLE_INTERVAL", 30*time.Second),
		SettleBatch:        settleBatch,
		SyncInterval:       getDuration("GSHEET_SYNC_INTERVAL", 20*time.Second),
		ReminderInterval:   getDuration("REMINDER_INTERVAL", 10*time.Minute),
		ReminderAfterStart: getDuration("REMINDER_AFTER_START", 15*time.Minute),
	}

	// ── Spreadsheet ───────────────────────────────────────────────────────────
	cfg.Sheet = SheetConfig{
		SpreadsheetID: getEnv("GSHEET_SPREADSHEET_ID", ""),
		GID:           getEnv("GSHEET_GID", "0"),
		FetchTimeout:  getDuration("GSHEET_FETCH_TIMEOUT", 10*time.Second),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or unparsable.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// parseIDList parses a comma-separated list of chat ids ("111,222").
func parseIDList(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

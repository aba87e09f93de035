package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"salonbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverSheets = "sheets"

	CatalogSourceSheets = "sheets"
	CatalogSourceFile   = "file"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Google     GoogleConfig     `yaml:"google"`
	Booking    BookingConfig    `yaml:"booking"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	// WebhookSecret is compared with X-Telegram-Bot-Api-Secret-Token on inbound updates.
	WebhookSecret  string `yaml:"webhook_secret"`
	APIEndpoint    string `yaml:"api_endpoint"`
	RequestTimeout int    `yaml:"request_timeout"`
	Debug          bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIAuthConfig struct {
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	// CredentialsJSON holds the service-account key inline, usually ${GOOGLE_SERVICE_ACCOUNT_KEY}.
	CredentialsJSON string `yaml:"credentials_json"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	BookingSheet    string `yaml:"booking_sheet"`
	TechnicianSheet string `yaml:"technician_sheet"`
	ServiceSheet    string `yaml:"service_sheet"`
	// MirrorBookings copies every accepted booking to the sheet when the ledger is sqlite.
	MirrorBookings bool `yaml:"mirror_bookings"`
}

type BookingConfig struct {
	SlotScope     string `yaml:"slot_scope"`
	LedgerTimeout int    `yaml:"ledger_timeout"`
	NotifyTimeout int    `yaml:"notify_timeout"`
	// RateLimitMessages and RateLimitWindow throttle chat commands per chat.
	RateLimitMessages int `yaml:"rate_limit_messages"`
	RateLimitWindow   int `yaml:"rate_limit_window"`
}

type CatalogConfig struct {
	Source   string `yaml:"source"`
	FilePath string `yaml:"file_path"`
	CacheTTL int    `yaml:"cache_ttl"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; a broken one is not
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case DriverSheets:
		if !c.Google.Configured() {
			return errors.New("database.driver=sheets requires google credentials and spreadsheet_id")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Catalog.Source {
	case CatalogSourceSheets:
		if !c.Google.Configured() {
			return errors.New("catalog.source=sheets requires google credentials and spreadsheet_id")
		}
	case CatalogSourceFile:
		if c.Catalog.FilePath == "" {
			return errors.New("catalog.source=file requires catalog.file_path")
		}
	default:
		return fmt.Errorf("unknown catalog source %q", c.Catalog.Source)
	}

	if !models.SlotScope(c.Booking.SlotScope).Valid() {
		return fmt.Errorf("unknown booking.slot_scope %q", c.Booking.SlotScope)
	}

	if c.Google.MirrorBookings && !c.Google.Configured() {
		return errors.New("google.mirror_bookings requires google credentials and spreadsheet_id")
	}

	if c.Google.CredentialsJSON != "" {
		if err := ValidateServiceAccountKey([]byte(c.Google.CredentialsJSON)); err != nil {
			return fmt.Errorf("google.credentials_json: %w", err)
		}
	}

	return nil
}

// Warnings lists settings that are accepted but leave the server exposed.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Telegram.WebhookSecret == "" {
		warnings = append(warnings, "telegram.webhook_secret is empty, webhook updates are not authenticated")
	}
	return warnings
}

// Configured reports whether enough is set to talk to the spreadsheet.
func (g GoogleConfig) Configured() bool {
	return g.SpreadsheetID != "" && (g.CredentialsFile != "" || g.CredentialsJSON != "")
}

// ServiceAccountKey loads the key from the inline value or the file.
func (g GoogleConfig) ServiceAccountKey() ([]byte, error) {
	if g.CredentialsJSON != "" {
		return []byte(g.CredentialsJSON), nil
	}
	if g.CredentialsFile == "" {
		return nil, errors.New("google credentials are not configured")
	}
	data, err := os.ReadFile(g.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	if err := ValidateServiceAccountKey(data); err != nil {
		return nil, fmt.Errorf("%s: %w", g.CredentialsFile, err)
	}
	return data, nil
}

// ValidateServiceAccountKey rejects keys that cannot possibly authenticate.
func ValidateServiceAccountKey(raw []byte) error {
	var key struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return fmt.Errorf("service account key is not valid JSON: %w", err)
	}
	if key.ClientEmail == "" {
		return errors.New("service account key has no client_email")
	}
	if !strings.Contains(key.PrivateKey, "PRIVATE KEY") {
		return errors.New("service account key has no private_key")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "salonbook"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Catalog.Source == "" {
		c.Catalog.Source = CatalogSourceSheets
	}
	if c.Catalog.CacheTTL == 0 {
		c.Catalog.CacheTTL = models.CatalogCacheTTL
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 3000
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 3001
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if len(c.API.CORS.AllowedOrigins) == 0 {
		c.API.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Telegram.RequestTimeout == 0 {
		c.Telegram.RequestTimeout = models.DefaultNotifyTimeout
	}

	if c.Google.BookingSheet == "" {
		c.Google.BookingSheet = models.BookingSheetName
	}
	if c.Google.TechnicianSheet == "" {
		c.Google.TechnicianSheet = models.TechnicianSheetName
	}
	if c.Google.ServiceSheet == "" {
		c.Google.ServiceSheet = models.ServiceSheetName
	}

	// Booking defaults
	if c.Booking.SlotScope == "" {
		c.Booking.SlotScope = string(models.ScopeSalon)
	}
	if c.Booking.LedgerTimeout == 0 {
		c.Booking.LedgerTimeout = models.DefaultLedgerTimeout
	}
	if c.Booking.NotifyTimeout == 0 {
		c.Booking.NotifyTimeout = models.DefaultNotifyTimeout
	}
	if c.Booking.RateLimitMessages == 0 {
		c.Booking.RateLimitMessages = models.RateLimitMessages
	}
	if c.Booking.RateLimitWindow == 0 {
		c.Booking.RateLimitWindow = models.RateLimitWindow
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

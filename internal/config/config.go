package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"chauffeur/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DistanceSynthetic = "synthetic"
	DistanceGeocoded  = "geocoded"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Site         SiteConfig         `yaml:"site"`
	HTTP         HTTPConfig         `yaml:"http"`
	Redis        RedisConfig        `yaml:"redis"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	Forms        FormsConfig        `yaml:"forms"`
	Pricing      PricingConfig      `yaml:"pricing"`
	Geocoding    GeocodingConfig    `yaml:"geocoding"`
	Autocomplete AutocompleteConfig `yaml:"autocomplete"`
	Maps         MapsConfig         `yaml:"maps"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Google       GoogleConfig       `yaml:"google"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Environment, EnvProduction)
}

// SiteConfig is the public contact block shown by the front end.
type SiteConfig struct {
	Name  string `yaml:"name"`
	Phone string `yaml:"phone"`
	Email string `yaml:"email"`
}

type HTTPConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	CORSOrigins     []string        `yaml:"cors_origins"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RedisConfig - an empty address keeps every store in memory.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Address) != ""
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

type FormsConfig struct {
	StateTTL         time.Duration `yaml:"state_ttl"`
	SubmitDelay      time.Duration `yaml:"submit_delay"`
	SubmitRateLimit  int           `yaml:"submit_rate_limit"`
	SubmitRateWindow time.Duration `yaml:"submit_rate_window"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

type PricingConfig struct {
	Distance   string  `yaml:"distance"`
	RoadFactor float64 `yaml:"road_factor"`
	FleetPath  string  `yaml:"fleet_path"`
}

type GeocodingConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	Limit    int           `yaml:"limit"`
	Type     string        `yaml:"type"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type AutocompleteConfig struct {
	MinLength     int           `yaml:"min_length"`
	Debounce      time.Duration `yaml:"debounce"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type MapsConfig struct {
	APIKey string `yaml:"api_key"`
}

type DispatchConfig struct {
	QueueSize  int           `yaml:"queue_size"`
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

type TelegramConfig struct {
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
	Debug    bool    `yaml:"debug"`
	// Commands starts the office command bot on the same token.
	Commands bool    `yaml:"commands"`
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && len(t.ChatIDs) > 0
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	RequestsSpreadsheetID string `yaml:"requests_spreadsheet_id"`
	RequestsSheet         string `yaml:"requests_sheet"`
}

func (g GoogleConfig) Enabled() bool {
	return g.CredentialsFile != "" && g.RequestsSpreadsheetID != ""
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse expands ${VAR} references, decodes the YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
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
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range", c.HTTP.Port)
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == c.HTTP.Port {
		return errors.New("monitoring.prometheus_port must differ from http.port")
	}

	switch c.Pricing.Distance {
	case DistanceSynthetic, DistanceGeocoded:
	default:
		return fmt.Errorf("pricing.distance must be %q or %q, got %q", DistanceSynthetic, DistanceGeocoded, c.Pricing.Distance)
	}
	if c.Pricing.RoadFactor < 1 {
		return errors.New("pricing.road_factor must be at least 1")
	}

	if c.Forms.SubmitDelay < 0 {
		return errors.New("forms.submit_delay must not be negative")
	}
	if c.Telegram.BotToken != "" && len(c.Telegram.ChatIDs) == 0 {
		return errors.New("telegram.chat_ids is required when bot_token is set")
	}
	if c.Google.RequestsSpreadsheetID != "" && c.Google.CredentialsFile == "" {
		return errors.New("google.credentials_file is required when requests_spreadsheet_id is set")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "chauffeur"
	}
	if c.App.Environment == "" {
		c.App.Environment = EnvDevelopment
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 5 * time.Second
	}
	if c.HTTP.RateLimit.RPS == 0 {
		c.HTTP.RateLimit.RPS = 10
	}
	if c.HTTP.RateLimit.Burst == 0 {
		c.HTTP.RateLimit.Burst = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	if c.Forms.StateTTL == 0 {
		c.Forms.StateTTL = models.DefaultFormStateTTL
	}
	if c.Forms.SubmitDelay == 0 {
		c.Forms.SubmitDelay = models.DefaultSubmitDelay
	}
	if c.Forms.SubmitRateLimit == 0 {
		c.Forms.SubmitRateLimit = models.SubmitRateLimit
	}
	if c.Forms.SubmitRateWindow == 0 {
		c.Forms.SubmitRateWindow = models.SubmitRateWindow
	}
	if c.Forms.SweepInterval == 0 {
		c.Forms.SweepInterval = 5 * time.Minute
	}

	if c.Pricing.Distance == "" {
		c.Pricing.Distance = DistanceSynthetic
	}
	if c.Pricing.RoadFactor == 0 {
		c.Pricing.RoadFactor = 1.3
	}

	if c.Geocoding.BaseURL == "" {
		c.Geocoding.BaseURL = "https://api-adresse.data.gouv.fr"
	}
	if c.Geocoding.Timeout == 0 {
		c.Geocoding.Timeout = 3 * time.Second
	}
	if c.Geocoding.Limit == 0 {
		c.Geocoding.Limit = models.DefaultSuggestionLimit
	}
	if c.Geocoding.CacheTTL == 0 {
		c.Geocoding.CacheTTL = 24 * time.Hour
	}

	if c.Autocomplete.MinLength == 0 {
		c.Autocomplete.MinLength = models.MinQueryLength
	}
	if c.Autocomplete.Debounce == 0 {
		c.Autocomplete.Debounce = models.DefaultDebounce
	}
	if c.Autocomplete.IdleTTL == 0 {
		c.Autocomplete.IdleTTL = 10 * time.Minute
	}
	if c.Autocomplete.SweepInterval == 0 {
		c.Autocomplete.SweepInterval = time.Minute
	}

	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = models.DispatchQueueSize
	}
	if c.Dispatch.MaxRetries == 0 {
		c.Dispatch.MaxRetries = 5
	}
	if c.Dispatch.BaseDelay == 0 {
		c.Dispatch.BaseDelay = 2 * time.Second
	}
	if c.Dispatch.MaxDelay == 0 {
		c.Dispatch.MaxDelay = time.Minute
	}
	if c.Google.RequestsSheet == "" {
		c.Google.RequestsSheet = "Requests"
	}
}

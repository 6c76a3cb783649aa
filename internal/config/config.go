package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sartarosh/internal/models"
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
	Booking    BookingConfig    `yaml:"booking"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
	Barbers    []BarberConfig   `yaml:"barbers"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
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
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key   string `yaml:"key"`
	Extra string `yaml:"extra"`
	Name  string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BookingConfig tunes the scheduling engine.
type BookingConfig struct {
	SlotMinutes        int `yaml:"slot_minutes"`
	HorizonDays        int `yaml:"horizon_days"`
	ReminderLeadMin    int `yaml:"reminder_lead_minutes"`
	RateLimitRequests  int `yaml:"rate_limit_requests"`
	RateLimitWindowSec int `yaml:"rate_limit_window"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	ScheduleSpreadsheetID string `yaml:"schedule_spreadsheet_id"`
}

// BarberConfig is the roster entry: who works, when, and what they offer.
// The roster file is the source of truth; it is synced into the store on
// startup.
type BarberConfig struct {
	ID       int64           `yaml:"id"`
	Name     string          `yaml:"name"`
	ChatID   int64           `yaml:"chat_id"`
	Active   bool            `yaml:"active"`
	Hours    []HoursConfig   `yaml:"hours"`
	Services []ServiceConfig `yaml:"services"`
}

// HoursConfig is one weekday's working window. Weekday 0 is Monday. Start
// after end means an overnight shift.
type HoursConfig struct {
	Weekday int    `yaml:"weekday"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Off     bool   `yaml:"off"`
}

type ServiceConfig struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Price    int64  `yaml:"price"`
	Duration int    `yaml:"duration"`
	Active   bool   `yaml:"active"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; env vars may come from the environment directly.
	_ = godotenv.Load(".env")

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
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	return ValidateBarbers(c.Barbers)
}

func ValidateBarbers(barbers []BarberConfig) error {
	barberIDs := make(map[int64]bool)
	for _, b := range barbers {
		if b.ID == 0 {
			return fmt.Errorf("barber %q has invalid id 0", b.Name)
		}
		if barberIDs[b.ID] {
			return fmt.Errorf("duplicate barber id found: %d", b.ID)
		}
		barberIDs[b.ID] = true

		weekdays := make(map[int]bool)
		for _, h := range b.Hours {
			if h.Weekday < 0 || h.Weekday > 6 {
				return fmt.Errorf("barber %d: weekday %d out of range", b.ID, h.Weekday)
			}
			if weekdays[h.Weekday] {
				return fmt.Errorf("barber %d: duplicate weekday %d", b.ID, h.Weekday)
			}
			weekdays[h.Weekday] = true
			if h.Off {
				continue
			}
			if _, err := models.ParseClock(h.Start); err != nil {
				return fmt.Errorf("barber %d weekday %d: %w", b.ID, h.Weekday, err)
			}
			if _, err := models.ParseClock(h.End); err != nil {
				return fmt.Errorf("barber %d weekday %d: %w", b.ID, h.Weekday, err)
			}
		}

		serviceIDs := make(map[int64]bool)
		for _, s := range b.Services {
			if s.ID == 0 {
				return fmt.Errorf("barber %d: service %q has invalid id 0", b.ID, s.Name)
			}
			if serviceIDs[s.ID] {
				return fmt.Errorf("barber %d: duplicate service id %d", b.ID, s.ID)
			}
			serviceIDs[s.ID] = true
		}
	}
	return nil
}

// Roster converts the yaml roster into store models. Clock strings were
// validated by Load, so parse errors here mean the config was mutated.
func (c *Config) Roster() ([]models.Barber, []models.WorkingWindow, []models.ServiceOffering, error) {
	var (
		barbers   []models.Barber
		windows   []models.WorkingWindow
		offerings []models.ServiceOffering
	)

	for _, b := range c.Barbers {
		barbers = append(barbers, models.Barber{
			ID:       b.ID,
			Name:     b.Name,
			ChatID:   b.ChatID,
			IsActive: b.Active,
		})

		for _, h := range b.Hours {
			w := models.WorkingWindow{BarberID: b.ID, Weekday: h.Weekday}
			if !h.Off {
				start, err := models.ParseClock(h.Start)
				if err != nil {
					return nil, nil, nil, fmt.Errorf("barber %d weekday %d: %w", b.ID, h.Weekday, err)
				}
				end, err := models.ParseClock(h.End)
				if err != nil {
					return nil, nil, nil, fmt.Errorf("barber %d weekday %d: %w", b.ID, h.Weekday, err)
				}
				w.StartMin = start
				w.EndMin = end
				w.IsWorking = true
			}
			windows = append(windows, w)
		}

		for _, s := range b.Services {
			offerings = append(offerings, models.ServiceOffering{
				BarberID:  b.ID,
				ServiceID: s.ID,
				Name:      s.Name,
				Price:     s.Price,
				Duration:  s.Duration,
				Active:    s.Active,
			})
		}
	}
	return barbers, windows, offerings, nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Booking.SlotMinutes == 0 {
		c.Booking.SlotMinutes = models.DefaultSlotMinutes
	}
	if c.Booking.HorizonDays == 0 {
		c.Booking.HorizonDays = models.DefaultHorizonDays
	}
	if c.Booking.ReminderLeadMin == 0 {
		c.Booking.ReminderLeadMin = models.DefaultReminderLeadMinutes
	}
	if c.Booking.RateLimitRequests == 0 {
		c.Booking.RateLimitRequests = models.RateLimitRequests
	}
	if c.Booking.RateLimitWindowSec == 0 {
		c.Booking.RateLimitWindowSec = models.RateLimitWindow
	}
}

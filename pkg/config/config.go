package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	xdgAppName = "pomodo"
	configFile = "config.json"
	envFile    = ".env"
)

// Duration is a time.Duration written as a Go duration string ("25m").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"25m\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type StorageConfig struct {
	// Driver is one of memory, file, sqlite, postgres, redis.
	Driver        string `json:"driver"`
	Path          string `json:"path,omitempty"`
	DSN           string `json:"dsn,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
}

type TimerConfig struct {
	Focus    Duration `json:"focus"`
	Break    Duration `json:"break"`
	Interval Duration `json:"interval"`
}

type ReminderConfig struct {
	Enabled bool     `json:"enabled"`
	Lead    Duration `json:"lead"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

type CalendarConfig struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
}

type ServerConfig struct {
	Addr      string `json:"addr"`
	JWTSecret string `json:"jwt_secret,omitempty"`
}

type LogConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

type Config struct {
	Storage  StorageConfig  `json:"storage"`
	Timer    TimerConfig    `json:"timer"`
	Reminder ReminderConfig `json:"reminder"`
	Telegram TelegramConfig `json:"telegram"`
	Calendar CalendarConfig `json:"calendar"`
	Server   ServerConfig   `json:"server"`
	Log      LogConfig      `json:"log"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Storage:  StorageConfig{Driver: "sqlite"},
		Timer:    TimerConfig{Focus: Duration(25 * time.Minute), Break: Duration(5 * time.Minute), Interval: Duration(time.Second)},
		Reminder: ReminderConfig{Enabled: true, Lead: Duration(time.Hour)},
		Calendar: CalendarConfig{Name: "Tasks"},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info"},
	}
}

// Dir is the directory holding config, credentials and local data.
func Dir() (string, error) {
	if d := os.Getenv("POMODO_HOME"); d != "" {
		return d, nil
	}
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the config file, then .env files, then POMODO_* variables.
// Later sources win.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	// Existing environment variables are never overwritten by .env files.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), envFile))

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes path over the defaults. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Calendar.Name == "" {
		cfg.Calendar.Name = "Tasks"
	}
	return cfg, nil
}

// ApplyEnv overrides fields from POMODO_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("POMODO_STORAGE_DRIVER", &c.Storage.Driver)
	str("POMODO_STORAGE_PATH", &c.Storage.Path)
	str("POMODO_PG_DSN", &c.Storage.DSN)
	str("POMODO_REDIS_ADDR", &c.Storage.RedisAddr)
	str("POMODO_REDIS_PASSWORD", &c.Storage.RedisPassword)
	str("POMODO_TELEGRAM_TOKEN", &c.Telegram.Token)
	str("POMODO_CALENDAR", &c.Calendar.Name)
	str("POMODO_SERVER_ADDR", &c.Server.Addr)
	str("POMODO_JWT_SECRET", &c.Server.JWTSecret)
	str("POMODO_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("POMODO_REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POMODO_REDIS_DB: %w", err)
		}
		c.Storage.RedisDB = n
	}
	if v, ok := lookup("POMODO_TELEGRAM_CHAT_ID"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("POMODO_TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = n
	}
	if v, ok := lookup("POMODO_LOG_JSON"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("POMODO_LOG_JSON: %w", err)
		}
		c.Log.JSON = b
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"POMODO_FOCUS", &c.Timer.Focus},
		{"POMODO_BREAK", &c.Timer.Break},
		{"POMODO_REMINDER_LEAD", &c.Reminder.Lead},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = Duration(parsed)
	}
	return nil
}

// DataPath resolves name inside the config directory.
func DataPath(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}

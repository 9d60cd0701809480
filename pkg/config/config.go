package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App          App          `yaml:"app"`
	Database     Database     `yaml:"database"`
	Allows       Allows       `yaml:"allows"`
	Log          Log          `yaml:"log"`
	WhatsApp     WhatsApp     `yaml:"whatsapp"`
	Scheduler    Scheduler    `yaml:"scheduler"`
	Dispatch     Dispatch     `yaml:"dispatch"`
	AutoResponse AutoResponse `yaml:"auto_response"`
	Events       Events       `yaml:"events"`
}

type App struct {
	Name string `yaml:"name"`
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

type Database struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	Name string `yaml:"name"`
}

type Allows struct {
	Methods []string `yaml:"methods"`
	Origins []string `yaml:"origins"`
	Headers []string `yaml:"headers"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WhatsApp configures the per-tenant chat sessions and the phone key format.
type WhatsApp struct {
	SessionsDir          string        `yaml:"sessions_dir"`
	LogLevel             string        `yaml:"log_level"`
	PairingTTL           time.Duration `yaml:"pairing_ttl"`
	SettleDelay          time.Duration `yaml:"settle_delay"`
	ReconnectBase        time.Duration `yaml:"reconnect_base"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnects        int           `yaml:"max_reconnects"`
	ForceNewAttempts     int           `yaml:"force_new_attempts"`
	BringUpGrace         time.Duration `yaml:"bringup_grace"`
	AdmissionConcurrency int           `yaml:"admission_concurrency"`
	CountryCode          string        `yaml:"country_code"`
	MobilePrefix         string        `yaml:"mobile_prefix"`
	TrunkPrefix          string        `yaml:"trunk_prefix"`
}

type Scheduler struct {
	Interval      time.Duration `yaml:"interval"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

type Dispatch struct {
	MinSendGap       time.Duration `yaml:"min_send_gap"`
	MaxSendAttempts  int           `yaml:"max_send_attempts"`
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	// NotReadyRetry postpones a campaign whose session was not ready.
	NotReadyRetry time.Duration `yaml:"not_ready_retry"`
}

type AutoResponse struct {
	Window time.Duration `yaml:"window"`
}

type Events struct {
	AMQPURL         string `yaml:"amqp_url"`
	AMQPExchange    string `yaml:"amqp_exchange"`
	WebsocketBuffer int    `yaml:"websocket_buffer"`
}

func InitConfig() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config.yaml"
	}
	configs, err := Load(path)
	if err != nil {
		// A missing or broken file falls back to defaults plus environment.
		configs = &Config{}
		configs.ApplyDefaults()
		configs.applyEnv()
	}
	return configs
}

// Load reads the YAML file at path, applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	file_name, _ := filepath.Abs(path)
	yaml_file, err := os.ReadFile(file_name)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(yaml_file)
}

func Parse(data []byte) (*Config, error) {
	var configs Config
	if err := yaml.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	configs.ApplyDefaults()
	configs.applyEnv()
	return &configs, nil
}

func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "wadispatch"
	}
	if c.App.Port == "" {
		c.App.Port = "8000"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	w := &c.WhatsApp
	if w.SessionsDir == "" {
		w.SessionsDir = "./sessions"
	}
	if w.LogLevel == "" {
		w.LogLevel = "INFO"
	}
	if w.PairingTTL == 0 {
		w.PairingTTL = 60 * time.Second
	}
	if w.SettleDelay == 0 {
		w.SettleDelay = time.Second
	}
	if w.ReconnectBase == 0 {
		w.ReconnectBase = 5 * time.Second
	}
	if w.ReconnectMaxDelay == 0 {
		w.ReconnectMaxDelay = 30 * time.Second
	}
	if w.MaxReconnects == 0 {
		w.MaxReconnects = 3
	}
	if w.ForceNewAttempts == 0 {
		w.ForceNewAttempts = 2
	}
	if w.BringUpGrace == 0 {
		w.BringUpGrace = 10 * time.Second
	}
	if w.AdmissionConcurrency == 0 {
		w.AdmissionConcurrency = 3
	}
	if w.CountryCode == "" {
		w.CountryCode = "54"
	}
	if w.MobilePrefix == "" {
		w.MobilePrefix = "9"
	}
	if w.TrunkPrefix == "" {
		w.TrunkPrefix = "15"
	}

	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 15 * time.Second
	}
	if c.Scheduler.MaxConcurrent == 0 {
		c.Scheduler.MaxConcurrent = 4
	}
	if c.Scheduler.StaleAfter == 0 {
		c.Scheduler.StaleAfter = time.Hour
	}

	if c.Dispatch.MinSendGap == 0 {
		c.Dispatch.MinSendGap = 2 * time.Second
	}
	if c.Dispatch.MaxSendAttempts == 0 {
		c.Dispatch.MaxSendAttempts = 3
	}
	if c.Dispatch.RateLimitBackoff == 0 {
		c.Dispatch.RateLimitBackoff = 2 * time.Second
	}
	if c.Dispatch.ProgressInterval == 0 {
		c.Dispatch.ProgressInterval = time.Second
	}
	if c.Dispatch.NotReadyRetry == 0 {
		c.Dispatch.NotReadyRetry = c.Scheduler.Interval
	}

	if c.AutoResponse.Window == 0 {
		c.AutoResponse.Window = 30 * time.Minute
	}

	if c.Events.AMQPExchange == "" {
		c.Events.AMQPExchange = "wadispatch.events"
	}
	if c.Events.WebsocketBuffer == 0 {
		c.Events.WebsocketBuffer = 64
	}
}

// applyEnv overrides file values with environment variables (for Docker).
func (c *Config) applyEnv() {
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		c.Database.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		c.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		c.Database.Pass = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		c.Database.Name = dbName
	}

	if appHost := os.Getenv("APP_HOST"); appHost != "" {
		c.App.Host = appHost
	}
	if appPort := os.Getenv("APP_PORT"); appPort != "" {
		c.App.Port = appPort
	}
	if appName := os.Getenv("APP_NAME"); appName != "" {
		c.App.Name = appName
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		c.Events.AMQPURL = amqpURL
	}
	if dir := os.Getenv("SESSIONS_DIR"); dir != "" {
		c.WhatsApp.SessionsDir = dir
	}
	if n := os.Getenv("SCHEDULER_MAX_CONCURRENT"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.Scheduler.MaxConcurrent = v
		}
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Scheduler.MaxConcurrent <= 0 {
		return fmt.Errorf("config: scheduler.max_concurrent must be positive")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("config: scheduler.interval must be positive")
	}
	if c.WhatsApp.AdmissionConcurrency <= 0 {
		return fmt.Errorf("config: whatsapp.admission_concurrency must be positive")
	}
	if c.WhatsApp.CountryCode == "" {
		return fmt.Errorf("config: whatsapp.country_code is required")
	}
	if c.Dispatch.MaxSendAttempts <= 0 {
		return fmt.Errorf("config: dispatch.max_send_attempts must be positive")
	}
	return nil
}

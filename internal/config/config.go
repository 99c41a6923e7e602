package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level leadflow configuration.
type Config struct {
	Service    ServiceConfig   `json:"service"`
	Provider   ProviderConfig  `json:"provider"`
	Calendar   CalendarConfig  `json:"calendar"`
	CRM        CRMConfig       `json:"crm"`
	Lock       LockConfig      `json:"lock"`
	Connectors ConnectorConfig `json:"connectors"`
	Scheduler  SchedulerConfig `json:"scheduler"`
	API        APIConfig       `json:"api"`
	Log        LogConfig       `json:"log"`
}

// ServiceConfig holds engine-level settings.
type ServiceConfig struct {
	DataDir      string `json:"data_dir"`
	Company      string `json:"company,omitempty"`
	Instructions string `json:"instructions,omitempty"`  // overrides the default persona
	MaxSteps     int    `json:"max_steps,omitempty"`     // default 10
	ModelTimeout int    `json:"model_timeout,omitempty"` // seconds, default 60
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// CalendarConfig holds Google Calendar and availability settings.
type CalendarConfig struct {
	CredentialsFile string `json:"credentials_file"`
	CalendarID      string `json:"calendar_id,omitempty"`
	Timeout         int    `json:"timeout,omitempty"` // seconds, default 15
	InviteAttendees bool   `json:"invite_attendees,omitempty"`
	HorizonDays     int    `json:"horizon_days,omitempty"`
	LeadTimeMinutes int    `json:"lead_time_minutes,omitempty"`
	MeetingMinutes  int    `json:"meeting_minutes,omitempty"`
	SlotLimit       int    `json:"slot_limit,omitempty"`
	WorkStartHour   int    `json:"work_start_hour,omitempty"`
	WorkEndHour     int    `json:"work_end_hour,omitempty"`
}

// CRMConfig holds Pipefy settings.
type CRMConfig struct {
	APIKey      string            `json:"api_key"`
	PipeID      string            `json:"pipe_id"`
	PhaseID     string            `json:"phase_id,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	CardFields  map[string]string `json:"card_fields,omitempty"` // lead field -> Pipefy field id
	MoveToPhase string            `json:"move_to_phase,omitempty"`
}

// LockConfig selects the session lock. An empty RedisAddr keeps the lock in
// process.
type LockConfig struct {
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	TTL           int    `json:"ttl,omitempty"` // seconds
}

// ConnectorConfig holds settings for external chat channels.
type ConnectorConfig struct {
	Telegram *TelegramConfig          `json:"telegram,omitempty"`
	Slack    *SlackConfig             `json:"slack,omitempty"`
	Webhooks map[string]WebhookConfig `json:"webhooks,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string  `json:"token"`
	AllowFrom []int64 `json:"allow_from,omitempty"`
}

// SlackConfig holds Slack Socket Mode settings.
type SlackConfig struct {
	BotToken string   `json:"bot_token"`
	AppToken string   `json:"app_token"`
	Channels []string `json:"channels,omitempty"`
}

// WebhookConfig holds the auth of one inbound webhook endpoint.
type WebhookConfig struct {
	Secret      string `json:"secret,omitempty"`
	BearerToken string `json:"bearer_token,omitempty"`
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	BookingRetry string `json:"booking_retry,omitempty"` // cron spec, default "@every 5m"
	Disabled     bool   `json:"disabled,omitempty"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `json:"level,omitempty"`       // debug|info|warn|error
	BufferSize int    `json:"buffer_size,omitempty"` // records kept for /api/logs
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes, defaults and validates a JSON document. source names the
// document in errors.
func Parse(data []byte, source string) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", source, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables. LEADFLOW_*
// variables are read alongside the conventional OPENAI_API_KEY,
// PIPEFY_API_KEY, PIPEFY_PIPE_ID, PIPEFY_PHASE_ID and
// GOOGLE_CREDENTIALS_FILE.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			DataDir:      getenv("LEADFLOW_DATA_DIR", "/data"),
			Company:      os.Getenv("LEADFLOW_COMPANY"),
			Instructions: os.Getenv("LEADFLOW_INSTRUCTIONS"),
			MaxSteps:     getenvInt("LEADFLOW_MAX_STEPS", 0),
			ModelTimeout: getenvInt("LEADFLOW_MODEL_TIMEOUT", 0),
		},
		Calendar: CalendarConfig{
			CredentialsFile: getenv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
			CalendarID:      os.Getenv("LEADFLOW_CALENDAR_ID"),
			InviteAttendees: getenvBool("LEADFLOW_INVITE_ATTENDEES"),
		},
		CRM: CRMConfig{
			APIKey:      os.Getenv("PIPEFY_API_KEY"),
			PipeID:      os.Getenv("PIPEFY_PIPE_ID"),
			PhaseID:     os.Getenv("PIPEFY_PHASE_ID"),
			MoveToPhase: os.Getenv("LEADFLOW_CRM_MOVE_TO_PHASE"),
		},
		Lock: LockConfig{
			RedisAddr:     os.Getenv("LEADFLOW_REDIS_ADDR"),
			RedisPassword: os.Getenv("LEADFLOW_REDIS_PASSWORD"),
			RedisDB:       getenvInt("LEADFLOW_REDIS_DB", 0),
		},
		Scheduler: SchedulerConfig{
			BookingRetry: os.Getenv("LEADFLOW_BOOKING_RETRY"),
			Disabled:     getenvBool("LEADFLOW_SCHEDULER_DISABLED"),
		},
		API: APIConfig{
			Host: getenv("LEADFLOW_API_HOST", "0.0.0.0"),
			Port: getenvInt("LEADFLOW_API_PORT", 8080),
			Key:  os.Getenv("LEADFLOW_API_KEY"),
		},
		Log: LogConfig{
			Level: os.Getenv("LEADFLOW_LOG_LEVEL"),
		},
	}

	if apiKey := os.Getenv("LEADFLOW_ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Provider = ProviderConfig{
			Type:   "anthropic",
			APIKey: apiKey,
			Model:  os.Getenv("LEADFLOW_MODEL"),
		}
	} else {
		cfg.Provider = ProviderConfig{
			Type:    "openai",
			APIKey:  getenv("LEADFLOW_OPENAI_API_KEY", os.Getenv("OPENAI_API_KEY")),
			BaseURL: os.Getenv("LEADFLOW_OPENAI_BASE_URL"),
			Model:   os.Getenv("LEADFLOW_MODEL"),
		}
	}

	if token := os.Getenv("LEADFLOW_TELEGRAM_TOKEN"); token != "" {
		cfg.Connectors.Telegram = &TelegramConfig{Token: token}
		if ids := os.Getenv("LEADFLOW_TELEGRAM_ALLOW_FROM"); ids != "" {
			parsed, err := parseInt64List(ids)
			if err != nil {
				return nil, fmt.Errorf("config: LEADFLOW_TELEGRAM_ALLOW_FROM: %w", err)
			}
			cfg.Connectors.Telegram.AllowFrom = parsed
		}
	}
	if bot := os.Getenv("LEADFLOW_SLACK_BOT_TOKEN"); bot != "" {
		cfg.Connectors.Slack = &SlackConfig{
			BotToken: bot,
			AppToken: os.Getenv("LEADFLOW_SLACK_APP_TOKEN"),
			Channels: splitList(os.Getenv("LEADFLOW_SLACK_CHANNELS")),
		}
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset optional values.
func (c *Config) ApplyDefaults() {
	if c.Service.Company == "" {
		c.Service.Company = "Verzel"
	}
	if c.Service.MaxSteps == 0 {
		c.Service.MaxSteps = 10
	}
	if c.Service.ModelTimeout == 0 {
		c.Service.ModelTimeout = 60
	}
	if c.Provider.Type == "" {
		c.Provider.Type = "openai"
	}
	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = "primary"
	}
	if c.Calendar.Timeout == 0 {
		c.Calendar.Timeout = 15
	}
	if c.Calendar.HorizonDays == 0 {
		c.Calendar.HorizonDays = 7
	}
	if c.Calendar.MeetingMinutes == 0 {
		c.Calendar.MeetingMinutes = 60
	}
	if c.Calendar.SlotLimit == 0 {
		c.Calendar.SlotLimit = 5
	}
	if c.Calendar.WorkStartHour == 0 && c.Calendar.WorkEndHour == 0 {
		c.Calendar.WorkStartHour, c.Calendar.WorkEndHour = 9, 18
	}
	if c.CRM.PhaseID == "" {
		c.CRM.PhaseID = "340736206"
	}
	if c.Scheduler.BookingRetry == "" {
		c.Scheduler.BookingRetry = "@every 5m"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.BufferSize == 0 {
		c.Log.BufferSize = 2000
	}
}

// Validate checks for required fields and consistent values.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.DataDir == "" {
		errs = append(errs, "service.data_dir is required")
	}
	if c.Service.MaxSteps < 0 {
		errs = append(errs, "service.max_steps must not be negative")
	}

	switch c.Provider.Type {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("provider.type %q is not supported (openai, anthropic)", c.Provider.Type))
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, "provider.api_key is required")
	}

	if c.Calendar.CredentialsFile == "" {
		errs = append(errs, "calendar.credentials_file is required")
	}
	if c.Calendar.WorkStartHour < 0 || c.Calendar.WorkEndHour > 24 || c.Calendar.WorkStartHour >= c.Calendar.WorkEndHour {
		errs = append(errs, fmt.Sprintf("calendar working hours %d-%d are invalid", c.Calendar.WorkStartHour, c.Calendar.WorkEndHour))
	}
	if c.Calendar.MeetingMinutes < 0 || c.Calendar.SlotLimit < 0 {
		errs = append(errs, "calendar.meeting_minutes and calendar.slot_limit must not be negative")
	}

	if c.CRM.APIKey == "" {
		errs = append(errs, "crm.api_key is required")
	}
	if c.CRM.PipeID == "" {
		errs = append(errs, "crm.pipe_id is required")
	}

	if t := c.Connectors.Telegram; t != nil && t.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}
	if s := c.Connectors.Slack; s != nil && (s.BotToken == "" || s.AppToken == "") {
		errs = append(errs, "connectors.slack.bot_token and connectors.slack.app_token are required")
	}
	for name, w := range c.Connectors.Webhooks {
		if w.Secret == "" && w.BearerToken == "" {
			errs = append(errs, fmt.Sprintf("connectors.webhooks.%s needs a secret or bearer_token", name))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not supported", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Addr returns the API listen address.
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}

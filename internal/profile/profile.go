package profile

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ReferenceDateLayout is the layout of Profile.ReferenceDate.
const ReferenceDateLayout = "2006-01-02"

// Profile is configuration to start main server.
type Profile struct {
	// LLM configuration (OpenAI-compatible protocol).
	LLMProvider    string // openai, deepseek, siliconflow, openrouter, ollama
	LLMAPIKey      string
	LLMBaseURL     string // optional, has default per provider
	LLMModel       string
	LLMTimeout     int // seconds
	LLMTemperature float64

	// Pipeline configuration.
	RequestTimeout         int // seconds
	AgentStepLimit         int
	MaxConcurrentPipelines int
	RateLimitPerMinute     int    // negative disables the limiter
	ToolCacheTTL           int    // seconds; table lists and schemas
	ReferenceDate          string // YYYY-MM-DD, the "today" of the dataset
	PromptDir              string

	// Background persistence.
	QueueSize    int
	QueueWorkers int
	TaskTimeout  int // seconds

	// Other configurations
	Mode    string
	Addr    string
	Port    int
	Data    string
	Driver  string
	DSN     string
	Version string
}

// Defaults applied by Validate to zero values.
const (
	DefaultRequestTimeout         = 120
	DefaultAgentStepLimit         = 35
	DefaultMaxConcurrentPipelines = 8
	DefaultRateLimitPerMinute     = 30
	DefaultToolCacheTTL           = 600
	DefaultReferenceDate          = "2016-04-14"
	DefaultQueueSize              = 256
	DefaultQueueWorkers           = 2
	DefaultTaskTimeout            = 60
	DefaultLLMTemperature         = 0.3
)

// Provider default configurations for LLM.
// Used when FITCOACH_LLM_BASE_URL or FITCOACH_LLM_MODEL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "openai/gpt-4o-mini",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an LLM API key is configured.
// Ollama runs without a key.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != "" || p.LLMProvider == "ollama"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FromEnv loads the LLM configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("FITCOACH_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("FITCOACH_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("FITCOACH_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("FITCOACH_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("FITCOACH_LLM_TIMEOUT_SECONDS", 120)
	p.LLMTemperature = getEnvOrDefaultFloat("FITCOACH_LLM_TEMPERATURE", DefaultLLMTemperature)

	if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
		slog.Warn("Unknown LLM provider, using default: openai", "provider", p.LLMProvider)
		p.LLMProvider = "openai"
	}
	defaults := llmProviderDefaults[p.LLMProvider]
	if p.LLMBaseURL == "" {
		p.LLMBaseURL = defaults.BaseURL
	}
	if p.LLMModel == "" {
		p.LLMModel = defaults.Model
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Data == "" {
		p.Data = "data"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "", "sqlite":
		p.Driver = "sqlite"
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, "fitness.db")
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn required for postgres driver")
		}
	default:
		return errors.Errorf("unsupported driver: %s", p.Driver)
	}

	if p.ReferenceDate == "" {
		p.ReferenceDate = DefaultReferenceDate
	}
	if _, err := time.Parse(ReferenceDateLayout, p.ReferenceDate); err != nil {
		return errors.Wrapf(err, "invalid reference date %q", p.ReferenceDate)
	}

	setDefault(&p.RequestTimeout, DefaultRequestTimeout)
	setDefault(&p.AgentStepLimit, DefaultAgentStepLimit)
	setDefault(&p.MaxConcurrentPipelines, DefaultMaxConcurrentPipelines)
	if p.RateLimitPerMinute == 0 {
		p.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	setDefault(&p.ToolCacheTTL, DefaultToolCacheTTL)
	setDefault(&p.QueueSize, DefaultQueueSize)
	setDefault(&p.QueueWorkers, DefaultQueueWorkers)
	setDefault(&p.TaskTimeout, DefaultTaskTimeout)

	return nil
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// MessagesPath is the append-only conversation message log.
func (p *Profile) MessagesPath() string {
	return filepath.Join(p.Data, "conversation_messages.csv")
}

// SubjectsPath is the append-only conversation title log.
func (p *Profile) SubjectsPath() string {
	return filepath.Join(p.Data, "conversation_subjects.csv")
}

func (p *Profile) ProfilesPath() string {
	return filepath.Join(p.Data, "profiles.csv")
}

func (p *Profile) ClickLogDir() string {
	return filepath.Join(p.Data, "click_logs")
}

// Today parses ReferenceDate. It falls back to DefaultReferenceDate.
func (p *Profile) Today() time.Time {
	t, err := time.Parse(ReferenceDateLayout, p.ReferenceDate)
	if err != nil {
		t, _ = time.Parse(ReferenceDateLayout, DefaultReferenceDate)
	}
	return t
}

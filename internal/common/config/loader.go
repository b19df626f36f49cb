// internal/common/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalidConfig marks every validation failure.
var ErrInvalidConfig = errors.New("CONFIGURATION_INVALID")

func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found near the working directory or at
// the module root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills credentials and tunables from their conventional
// environment variable names when the config files left them empty.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.LLM.AzureOpenAI.APIKey, "AZURE_OPENAI_API_KEY")
	setIfEmpty(&cfg.LLM.AzureOpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
	setIfEmpty(&cfg.LLM.AzureOpenAI.ChatDeployment, "AZURE_OPENAI_CHAT_DEPLOYMENT")
	setIfEmpty(&cfg.LLM.AzureOpenAI.APIVersion, "AZURE_OPENAI_API_VERSION")
	setIfEmpty(&cfg.LLM.GenAI.APIKey, "GENAI_API_KEY")
	setIfEmpty(&cfg.LLM.Gemini.APIKey, "GEMINI_API_KEY")

	if val := os.Getenv("UNDERWRITING_TEMPERATURE"); val != "" {
		if t, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.LLM.Temperature = t
		}
	}
	// Some deployed chat models reject temperatures below 1.
	if cfg.LLM.Temperature < 1 {
		cfg.LLM.Temperature = 1
	}

	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "mortgage-underwriting"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 300000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 240000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderAzureOpenAI
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60000
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 2048
	}
	if cfg.LLM.AzureOpenAI.APIVersion == "" {
		cfg.LLM.AzureOpenAI.APIVersion = "2024-02-15-preview"
	}
	if cfg.LLM.Gemini.Model == "" {
		cfg.LLM.Gemini.Model = "gemini-2.0-flash"
	}

	if cfg.Policies.Backend == "" {
		cfg.Policies.Backend = "keyword"
	}
	if cfg.Policies.Dir == "" {
		cfg.Policies.Dir = "./policies"
	}
	if cfg.Policies.Index == "" {
		cfg.Policies.Index = "underwriting-policies"
	}
	if cfg.Policies.K == 0 {
		cfg.Policies.K = 6
	}

	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = "memory"
	}
	if cfg.Checkpoint.KeyPrefix == "" {
		cfg.Checkpoint.KeyPrefix = "underwriting:checkpoints:"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "./data/cases"
	}

	if cfg.Notifications.AWS.Region == "" {
		cfg.Notifications.AWS.Region = "us-east-1"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates the sections required by the enabled backends.
func validateConfig(cfg *Config) error {
	switch cfg.LLM.Provider {
	case ProviderAzureOpenAI:
		az := cfg.LLM.AzureOpenAI
		if az.APIKey == "" || az.Endpoint == "" || az.ChatDeployment == "" {
			return fmt.Errorf("%w: missing Azure OpenAI config: set AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_CHAT_DEPLOYMENT", ErrInvalidConfig)
		}
	case ProviderGenAI:
		if cfg.LLM.GenAI.BaseURL == "" {
			return fmt.Errorf("%w: llm.genai.base_url is required", ErrInvalidConfig)
		}
	case ProviderGemini:
		if cfg.LLM.Gemini.APIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown llm.provider %q", ErrInvalidConfig, cfg.LLM.Provider)
	}

	switch cfg.Policies.Backend {
	case "keyword":
	case "elasticsearch":
		if cfg.Database.Elasticsearch.GetURL() == "" {
			return fmt.Errorf("%w: database.elasticsearch.addresses or url is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown policies.backend %q", ErrInvalidConfig, cfg.Policies.Backend)
	}

	switch cfg.Checkpoint.Backend {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("%w: database.redis.address is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown checkpoint.backend %q", ErrInvalidConfig, cfg.Checkpoint.Backend)
	}

	switch cfg.Storage.Backend {
	case "file":
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("%w: database.postgres.host is required", ErrInvalidConfig)
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("%w: database.postgres.database is required", ErrInvalidConfig)
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("%w: database.postgres.user is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", ErrInvalidConfig, cfg.Storage.Backend)
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("%w: camunda.broker_address is required", ErrInvalidConfig)
	}

	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("%w: notifications.sns.topic_arn is required", ErrInvalidConfig)
	}
	if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.FromEmail == "" {
		return fmt.Errorf("%w: notifications.email.from_email is required", ErrInvalidConfig)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// Status is the secret-free view of the configuration served by /config.
type Status struct {
	LLMProvider        string  `json:"llm_provider"`
	LLMConfigured      bool    `json:"llm_configured"`
	Deployment         string  `json:"deployment,omitempty"`
	Temperature        float64 `json:"temperature"`
	PolicyBackend      string  `json:"policy_backend"`
	CheckpointBackend  string  `json:"checkpoint_backend"`
	StorageBackend     string  `json:"storage_backend"`
	NotificationsEmail bool    `json:"notifications_email"`
	NotificationsSNS   bool    `json:"notifications_sns"`
	WorkersEnabled     bool    `json:"workers_enabled"`
}

// Summary reports which backends are active without exposing credentials.
func (c *Config) Summary() Status {
	configured := false
	switch c.LLM.Provider {
	case ProviderAzureOpenAI:
		configured = c.LLM.AzureOpenAI.APIKey != "" && c.LLM.AzureOpenAI.Endpoint != "" && c.LLM.AzureOpenAI.ChatDeployment != ""
	case ProviderGenAI:
		configured = c.LLM.GenAI.BaseURL != ""
	case ProviderGemini:
		configured = c.LLM.Gemini.APIKey != ""
	}

	return Status{
		LLMProvider:        c.LLM.Provider,
		LLMConfigured:      configured,
		Deployment:         c.LLM.AzureOpenAI.ChatDeployment,
		Temperature:        c.LLM.Temperature,
		PolicyBackend:      c.Policies.Backend,
		CheckpointBackend:  c.Checkpoint.Backend,
		StorageBackend:     c.Storage.Backend,
		NotificationsEmail: c.Notifications.Email.Enabled,
		NotificationsSNS:   c.Notifications.SNS.Enabled,
		WorkersEnabled:     c.Camunda.Enabled,
	}
}

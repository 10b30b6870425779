package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/codecheck/internal/aiconnectors"
	"github.com/codecheck/internal/notify"
	"github.com/codecheck/internal/prompts"
	"github.com/codecheck/internal/providers/gitlab"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore, e.g. CODECHECK_AI__API_KEY sets ai.api_key.
const EnvPrefix = "CODECHECK_"

// InspectConfig controls how submissions are reviewed
type InspectConfig struct {
	ModelTimeout        time.Duration `koanf:"model_timeout"`
	ModelRetries        int           `koanf:"model_retries"`
	MaxAddedLines       int           `koanf:"max_added_lines"`
	IgnoredExtensions   []string      `koanf:"ignored_extensions"`
	PromptVariant       string        `koanf:"prompt_variant"`
	Guidelines          string        `koanf:"guidelines"`
	Workers             int           `koanf:"workers"`
	ReviewMergeRequests bool          `koanf:"review_merge_requests"`
}

// NotifyConfig configures the group bot the reports are sent to
type NotifyConfig struct {
	WebhookURL  string        `koanf:"webhook_url"`
	MessageType string        `koanf:"message_type"`
	Interval    time.Duration `koanf:"interval"`
	Timeout     time.Duration `koanf:"timeout"`
	OnlyIssues  bool          `koanf:"only_issues"`
}

// ServerConfig configures the webhook server
type ServerConfig struct {
	Port           int           `koanf:"port"`
	WebhookPath    string        `koanf:"webhook_path"`
	Secret         string        `koanf:"secret"`
	HandlerTimeout time.Duration `koanf:"handler_timeout"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
	// Dir, when set, also writes every run to a log file in that directory
	Dir string `koanf:"dir"`
}

// Config represents the application configuration
type Config struct {
	GitLab  gitlab.GitLabConfig           `koanf:"gitlab"`
	AI      aiconnectors.ConnectorOptions `koanf:"ai"`
	Inspect InspectConfig                 `koanf:"inspect"`
	Notify  NotifyConfig                  `koanf:"notify"`
	Server  ServerConfig                  `koanf:"server"`
	Log     LogConfig                     `koanf:"log"`
}

var defaults = map[string]interface{}{
	"ai.provider":                   "openai",
	"ai.model_config.model":         "gpt-4o-mini",
	"ai.model_config.temperature":   0.2,
	"ai.model_config.max_tokens":    4096,
	"inspect.model_timeout":         "2m",
	"inspect.model_retries":         2,
	"inspect.max_added_lines":       500,
	"inspect.ignored_extensions":    []string{".md", ".lock", ".sum", ".svg", ".png", ".jpg"},
	"inspect.prompt_variant":        "verbose",
	"inspect.workers":               4,
	"inspect.review_merge_requests": false,
	"notify.message_type":           "markdown",
	"notify.interval":               "1s",
	"notify.timeout":                "10s",
	"server.port":                   8080,
	"server.webhook_path":           "/webhook/gitlab",
	"server.handler_timeout":        "15m",
	"log.level":                     "info",
}

// DefaultPaths are searched in order when no config file is given
var DefaultPaths = []string{"./codecheck.toml", "$HOME/.codecheck.toml"}

// LoadConfig loads the configuration from defaults, a TOML file and the
// environment, in increasing precedence.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
					return nil, fmt.Errorf("error loading config %s: %w", path, err)
				}
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# codecheck configuration

[gitlab]
url = "https://gitlab.example.com"
token = "your-gitlab-token"

[ai]
provider = "openai"          # openai, gemini, claude, cohere, ollama
api_key = "your-api-key"
# base_url = "http://localhost:11434"

[ai.model_config]
model = "gpt-4o-mini"
temperature = 0.2
max_tokens = 4096

[inspect]
model_timeout = "2m"
model_retries = 2
max_added_lines = 500
ignored_extensions = [".md", ".lock", ".sum"]
prompt_variant = "verbose"   # verbose or compact
workers = 4
review_merge_requests = false

[notify]
webhook_url = "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=your-key"
message_type = "markdown"    # markdown or text
interval = "1s"
only_issues = false

[server]
port = 8080
webhook_path = "/webhook/gitlab"
# secret = "shared-webhook-token"

[log]
level = "info"
pretty = false
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration. The group bot URL is checked
// separately by RequireNotifier since dry runs do not need it.
func Validate(config *Config) error {
	var errs []error

	if config.GitLab.URL == "" {
		errs = append(errs, errors.New("gitlab.url is required"))
	}
	if config.GitLab.Token == "" {
		errs = append(errs, errors.New("gitlab.token is required"))
	}

	switch config.AI.Provider {
	case aiconnectors.ProviderOllama:
	case aiconnectors.ProviderOpenAI, aiconnectors.ProviderGemini, aiconnectors.ProviderClaude, aiconnectors.ProviderCohere:
		if config.AI.APIKey == "" {
			errs = append(errs, fmt.Errorf("ai.api_key is required for %s", config.AI.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("ai.provider %q is not supported", config.AI.Provider))
	}
	if config.AI.ModelConfig.Model == "" {
		errs = append(errs, errors.New("ai.model_config.model is required"))
	}

	if _, err := prompts.ParseVariant(config.Inspect.PromptVariant); err != nil {
		errs = append(errs, fmt.Errorf("inspect.prompt_variant: %w", err))
	}
	if config.Inspect.Workers < 1 {
		errs = append(errs, errors.New("inspect.workers must be at least 1"))
	}
	if config.Inspect.MaxAddedLines < 0 {
		errs = append(errs, errors.New("inspect.max_added_lines must not be negative"))
	}

	if _, err := notify.ParseMessageType(config.Notify.MessageType); err != nil {
		errs = append(errs, fmt.Errorf("notify.message_type: %w", err))
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", config.Server.Port))
	}

	return errors.Join(errs...)
}

// RequireNotifier checks the settings needed to send reports
func (c *Config) RequireNotifier() error {
	if c.Notify.WebhookURL == "" {
		return errors.New("notify.webhook_url is required")
	}
	return nil
}

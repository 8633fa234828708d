// Package config handles zonebot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./zonebot.yaml, ~/.config/zonebot/zonebot.yaml, /etc/zonebot/zonebot.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"zonebot.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "zonebot", "zonebot.yaml"))
	}

	paths = append(paths, "/etc/zonebot/zonebot.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all zonebot configuration.
type Config struct {
	Slack    SlackConfig    `yaml:"slack"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	UltraDNS UltraDNSConfig `yaml:"ultradns"`
	DataDir  string         `yaml:"data_dir"`
	LogLevel string         `yaml:"log_level"`
}

// SlackConfig defines the Slack connection settings. BotToken is the
// xoxb- token used for Web API calls; AppToken is the xapp- token used
// to open Socket Mode connections.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

// OpenAIConfig defines the assistant service settings.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	// Model is the model used when provisioning assistants (zonebot init).
	Model string `yaml:"model"`
	// AssistantsFile holds provisioned assistant ids. Relative paths are
	// resolved against DataDir.
	AssistantsFile string `yaml:"assistants_file"`
	// PollInterval is how often an in-flight run's status is re-checked.
	PollInterval time.Duration `yaml:"poll_interval"`
	// RunTimeout bounds a single assistant run from submission to a
	// terminal state.
	RunTimeout time.Duration `yaml:"run_timeout"`
	// BusyWaitTimeout bounds how long a second request for a busy
	// thread waits before giving up.
	BusyWaitTimeout time.Duration `yaml:"busy_wait_timeout"`
}

// UltraDNSConfig defines the DNS provider settings.
type UltraDNSConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// TaskPollInterval is how often zone-export and health-check tasks
	// are re-checked while pending.
	TaskPollInterval time.Duration `yaml:"task_poll_interval"`
	// TaskTimeout bounds a single export or health-check task.
	TaskTimeout time.Duration `yaml:"task_timeout"`
	// StatusURL is the provider status page JSON feed, queried without
	// authentication.
	StatusURL string `yaml:"status_url"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all optional knobs set to
// sensible values. Credentials are intentionally left empty.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		OpenAI: OpenAIConfig{
			Model:           "gpt-4o",
			AssistantsFile:  "assistants.yaml",
			PollInterval:    2 * time.Second,
			RunTimeout:      2 * time.Minute,
			BusyWaitTimeout: 30 * time.Second,
		},
		UltraDNS: UltraDNSConfig{
			BaseURL:          "https://api.ultradns.com",
			TaskPollInterval: 10 * time.Second,
			TaskTimeout:      5 * time.Minute,
			StatusURL:        "https://status.ultradns.com/api/v2/summary.json",
		},
	}
}

// Validate checks that all required credentials are present. It is
// called on the serve path; init and ask have narrower requirements
// and check their own fields.
func (c *Config) Validate() error {
	if c.Slack.BotToken == "" || c.Slack.AppToken == "" {
		return fmt.Errorf("slack.bot_token and slack.app_token are required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.UltraDNS.Username == "" || c.UltraDNS.Password == "" {
		return fmt.Errorf("ultradns.username and ultradns.password are required")
	}
	return nil
}

// AssistantsPath resolves the assistants file location against DataDir.
func (c *Config) AssistantsPath() string {
	if filepath.IsAbs(c.OpenAI.AssistantsFile) {
		return c.OpenAI.AssistantsFile
	}
	return filepath.Join(c.DataDir, c.OpenAI.AssistantsFile)
}

package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// APIKeyConfig declares one static API key accepted by the service.
// Admin keys may additionally trigger maintenance endpoints.
type APIKeyConfig struct {
	Key     string `yaml:"key"`
	Label   string `yaml:"label"`
	IsAdmin bool   `yaml:"isAdmin"`
}

type AuthConfig struct {
	Enabled bool           `yaml:"enabled"`
	Keys    []APIKeyConfig `yaml:"keys"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

// SchedulerConfig bounds how many research jobs may run at once and how
// long one stage may take before it is treated as failed.
type SchedulerConfig struct {
	MaxConcurrentJobs     int `yaml:"maxConcurrentJobs"`
	StageTimeoutMs        int `yaml:"stageTimeoutMs"`
	RetentionSweepMinutes int `yaml:"retentionSweepMinutes"`
}

// CrewConfig points at the YAML files that define the ordered research
// stages and the agents that execute them.
type CrewConfig struct {
	StagesPath string `yaml:"stagesPath"`
	AgentsPath string `yaml:"agentsPath"`
}

// ReportsConfig controls where compiled research reports are written.
type ReportsConfig struct {
	Dir       string `yaml:"dir"`
	Overwrite bool   `yaml:"overwrite"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type GoogleLLMConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type LLMConfig struct {
	DefaultProvider string          `yaml:"defaultProvider"`
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Google          GoogleLLMConfig `yaml:"google"`
}

// SerperConfig holds provider-specific configuration for Serper-based search.
type SerperConfig struct {
	APIKey    string `yaml:"apiKey"`
	BaseURL   string `yaml:"baseURL"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

// SearxngConfig holds provider-specific configuration for SearxNG-based search.
type SearxngConfig struct {
	BaseURL      string `yaml:"baseURL"`
	DefaultLimit int    `yaml:"defaultLimit"`
	TimeoutMs    int    `yaml:"timeoutMs"`
}

// SearchConfig selects the web-search provider used by research agents.
type SearchConfig struct {
	Provider   string        `yaml:"provider"`
	MaxResults int           `yaml:"maxResults"`
	TimeoutMs  int           `yaml:"timeoutMs"`
	Serper     SerperConfig  `yaml:"serper"`
	Searxng    SearxngConfig `yaml:"searxng"`
}

// GitHubConfig configures the GitHub code/repository search tool.
type GitHubConfig struct {
	Token     string `yaml:"token"`
	BaseURL   string `yaml:"baseURL"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

// WebFetchConfig configures the website research tool.
type WebFetchConfig struct {
	UserAgent     string `yaml:"userAgent"`
	TimeoutMs     int    `yaml:"timeoutMs"`
	RespectRobots bool   `yaml:"respectRobots"`
	MaxBodyBytes  int    `yaml:"maxBodyBytes"`
}

// RetentionConfig controls TTL-like deletion of old terminal jobs and
// artifact index rows so that memory and the index do not grow without
// bound over time.
type RetentionConfig struct {
	Enabled      bool `yaml:"enabled"`
	JobDays      int  `yaml:"jobDays"`
	ArtifactDays int  `yaml:"artifactDays"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Crew      CrewConfig      `yaml:"crew"`
	Reports   ReportsConfig   `yaml:"reports"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	GitHub    GitHubConfig    `yaml:"github"`
	WebFetch  WebFetchConfig  `yaml:"webfetch"`
	Retention RetentionConfig `yaml:"retention"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return &cfg
}

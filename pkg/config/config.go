package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rahul/flowdesk/internal/capability"
	"github.com/rahul/flowdesk/internal/connectors"
	"github.com/rahul/flowdesk/internal/observability"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLOWDESK_"

type Config struct {
	App          AppConfig                 `yaml:"app"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Engine       EngineConfig              `yaml:"engine"`
	Capabilities []capability.Entry        `yaml:"capabilities"`
	Connectors   ConnectorsConfig          `yaml:"connectors"`
	Credentials  CredentialsConfig         `yaml:"credentials"`
	Governance   GovernanceConfig          `yaml:"governance"`
	Memory       MemoryConfig              `yaml:"memory"`
	Gateways     map[string]GatewayConfig  `yaml:"gateways"`
	Logging      observability.Config      `yaml:"logging"`
	Metrics      MetricsConfig             `yaml:"metrics"`
}

type AppConfig struct {
	Name string `yaml:"name"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type EngineConfig struct {
	StepTemperature      float64 `yaml:"step_temperature"`
	PresenterTemperature float64 `yaml:"presenter_temperature"`
	Fallback             string  `yaml:"fallback"`
	PromptsDir           string  `yaml:"prompts_dir"`
}

type ConnectorsConfig struct {
	MCP   connectors.MCPConfig `yaml:"mcp"`
	Local LocalConfig          `yaml:"local"`
}

type LocalConfig struct {
	WebSearch        bool `yaml:"web_search"`
	WebPage          bool `yaml:"web_page"`
	SearchMaxResults int  `yaml:"search_max_results"`
}

type CredentialsConfig struct {
	// Type is "static", "oauth" or "jwt".
	Type   string       `yaml:"type"`
	Static StaticConfig `yaml:"static"`
	OAuth  OAuthConfig  `yaml:"oauth"`
	JWT    JWTConfig    `yaml:"jwt"`
}

type StaticConfig struct {
	Token string `yaml:"token"`
}

type OAuthConfig struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

type JWTConfig struct {
	SigningKey string `yaml:"signing_key"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type GovernanceConfig struct {
	DeniedCapabilities []string `yaml:"denied_capabilities"`
	// DeniedArguments patterns are matched against every string argument
	// value; DeniedArgumentsFor limits patterns to one capability.
	DeniedArguments    []string            `yaml:"denied_arguments"`
	DeniedArgumentsFor map[string][]string `yaml:"denied_arguments_for"`
}

type MemoryConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used for any field the file leaves out.
func Default() *Config {
	return &Config{
		App:       AppConfig{Name: "flowdesk"},
		Providers: map[string]ProviderConfig{},
		Engine: EngineConfig{
			StepTemperature:      0.2,
			PresenterTemperature: 0.3,
		},
		Connectors: ConnectorsConfig{
			MCP: connectors.MCPConfig{Transport: "streamable-http"},
			Local: LocalConfig{
				WebSearch:        true,
				WebPage:          true,
				SearchMaxResults: 5,
			},
		},
		Credentials: CredentialsConfig{Type: "static"},
		Memory:      MemoryConfig{Type: "sqlite", Path: "flowdesk.db"},
		Gateways:    map[string]GatewayConfig{},
		Logging: observability.Config{
			Level:      "info",
			Format:     "json",
			LLMLogPath: "logs/llm.jsonl",
			LLMLogMax:  10 << 20,
		},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// LoadConfig reads a YAML file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and deployment settings from the environment:
//
//	FLOWDESK_<PROVIDER>_API_KEY    enables the provider
//	FLOWDESK_<PROVIDER>_MODEL
//	FLOWDESK_TELEGRAM_TOKEN        enables the telegram gateway
//	FLOWDESK_MCP_ENDPOINT
//	FLOWDESK_CREDENTIALS_TOKEN     static token
//	FLOWDESK_OAUTH_CLIENT_SECRET
//	FLOWDESK_JWT_SIGNING_KEY
//	FLOWDESK_MEMORY_PATH
//	FLOWDESK_LOG_LEVEL
//	FLOWDESK_METRICS_ENABLED
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := func(name string) (string, bool) {
		return lookup(EnvPrefix + name)
	}

	for _, name := range []string{"openai", "openrouter", "anthropic", "ollama"} {
		upper := strings.ToUpper(name)
		key, hasKey := env(upper + "_API_KEY")
		model, hasModel := env(upper + "_MODEL")
		if !hasKey && !hasModel {
			continue
		}
		p := c.Providers[name]
		if hasKey {
			p.APIKey = key
			p.Enabled = true
		}
		if hasModel {
			p.Model = model
		}
		if c.Providers == nil {
			c.Providers = map[string]ProviderConfig{}
		}
		c.Providers[name] = p
	}

	if token, ok := env("TELEGRAM_TOKEN"); ok {
		if c.Gateways == nil {
			c.Gateways = map[string]GatewayConfig{}
		}
		c.Gateways["telegram"] = GatewayConfig{Token: token, Enabled: token != ""}
	}
	if v, ok := env("MCP_ENDPOINT"); ok {
		c.Connectors.MCP.Endpoint = v
	}
	if v, ok := env("CREDENTIALS_TOKEN"); ok {
		c.Credentials.Static.Token = v
	}
	if v, ok := env("OAUTH_CLIENT_SECRET"); ok {
		c.Credentials.OAuth.ClientSecret = v
	}
	if v, ok := env("JWT_SIGNING_KEY"); ok {
		c.Credentials.JWT.SigningKey = v
	}
	if v, ok := env("MEMORY_PATH"); ok {
		c.Memory.Path = v
	}
	if v, ok := env("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := env("METRICS_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sMETRICS_ENABLED: %w", EnvPrefix, err)
		}
		c.Metrics.Enabled = enabled
	}
	return nil
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	for name, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		switch name {
		case "openai", "openrouter", "anthropic":
			if p.APIKey == "" {
				return fmt.Errorf("provider %s is enabled but has no api_key", name)
			}
		case "ollama":
		default:
			return fmt.Errorf("unknown provider %q", name)
		}
	}

	for _, t := range []float64{c.Engine.StepTemperature, c.Engine.PresenterTemperature} {
		if t < 0 || t > 2 {
			return fmt.Errorf("temperature %v out of range [0, 2]", t)
		}
	}

	switch c.Connectors.MCP.Transport {
	case "", "streamable-http", "sse":
	default:
		return fmt.Errorf("unsupported mcp transport %q", c.Connectors.MCP.Transport)
	}

	seen := make(map[string]bool)
	for _, e := range c.Capabilities {
		if e.Name == "" || e.ConnectorID == "" {
			return fmt.Errorf("capability entries need a name and a connector")
		}
		if e.Name == capability.Completion {
			return fmt.Errorf("capability name %q is reserved", capability.Completion)
		}
		if seen[e.Name] {
			return fmt.Errorf("capability %q is listed twice", e.Name)
		}
		seen[e.Name] = true
	}

	switch c.Credentials.Type {
	case "", "static":
	case "oauth":
		if c.Credentials.OAuth.TokenURL == "" || c.Credentials.OAuth.ClientID == "" {
			return fmt.Errorf("oauth credentials need token_url and client_id")
		}
	case "jwt":
		if c.Credentials.JWT.SigningKey == "" {
			return fmt.Errorf("jwt credentials need a signing_key")
		}
	default:
		return fmt.Errorf("unknown credentials type %q", c.Credentials.Type)
	}

	for _, pattern := range c.Governance.DeniedArguments {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid denied_arguments pattern %q: %w", pattern, err)
		}
	}
	for capName, patterns := range c.Governance.DeniedArgumentsFor {
		for _, pattern := range patterns {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid denied_arguments_for %s pattern %q: %w", capName, pattern, err)
			}
		}
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// GetDefaultProvider returns the enabled provider, preferring openai,
// openrouter, anthropic and ollama in that order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for _, name := range []string{"openai", "openrouter", "anthropic", "ollama"} {
		if p, ok := c.Providers[name]; ok && p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled && tg.Token != "" {
		return tg, true
	}
	return GatewayConfig{}, false
}

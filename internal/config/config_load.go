package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Provider:      "anthropic",
			MaxToolRounds: 10,
			MaxHistory:    40,
		},
		Providers: ProvidersConfig{
			Anthropic: ProviderConfig{MaxTokens: 4096},
			OpenAI: ProviderConfig{
				BaseURL:   "https://api.openai.com/v1",
				MaxTokens: 4096,
			},
		},
		Security: SecurityConfig{
			CommandTimeout: 30,
		},
		Skills: SkillsConfig{
			Dir:     "skills",
			Timeout: 30,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error: env vars alone can configure a deployment.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env takes precedence
// over file values; secrets are only ever read from env.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envList := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			parts := strings.Split(v, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			*dst = out
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envStr("ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("TELEGRAM_BOT_TOKEN", &c.Channels.Telegram.Token)
	envStr("DISCORD_BOT_TOKEN", &c.Channels.Discord.Token)

	envStr("SENTINEL_PROVIDER", &c.Agent.Provider)
	envStr("SENTINEL_SYSTEM_PROMPT", &c.Agent.SystemPrompt)
	envStr("SENTINEL_MODEL", &c.Providers.Anthropic.Model)
	envStr("SENTINEL_MODEL", &c.Providers.OpenAI.Model)
	envInt("SENTINEL_MAX_TOKENS", &c.Providers.Anthropic.MaxTokens)
	envInt("SENTINEL_MAX_TOKENS", &c.Providers.OpenAI.MaxTokens)

	envList("SENTINEL_READ_PATHS", &c.Security.AllowedReadPaths)
	envList("SENTINEL_WRITE_PATHS", &c.Security.AllowedWritePaths)
	envList("SENTINEL_COMMANDS", &c.Security.AllowedCommands)
	envInt("SENTINEL_COMMAND_TIMEOUT", &c.Security.CommandTimeout)
	envStr("SENTINEL_AUDIT_LOG", &c.Security.AuditLogPath)

	envList("SENTINEL_ALLOWED_USERS", &c.Channels.Telegram.AllowedUsers)
	envList("SENTINEL_DISCORD_CHANNELS", &c.Channels.Discord.ChannelIDs)
	envList("SENTINEL_DISCORD_ALLOWED_USERS", &c.Channels.Discord.AllowedUsers)

	envStr("SENTINEL_SKILLS_DIR", &c.Skills.Dir)
	envInt("SENTINEL_SKILL_TIMEOUT", &c.Skills.Timeout)
}

// ResolvePath returns the config file path: the explicit flag value, then
// $SENTINEL_CONFIG, then ./sentinel.json.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("SENTINEL_CONFIG"); env != "" {
		return env
	}
	return "sentinel.json"
}

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/sentinel/internal/agent"
	"github.com/nextlevelbuilder/sentinel/internal/channels"
	"github.com/nextlevelbuilder/sentinel/internal/channels/discord"
	"github.com/nextlevelbuilder/sentinel/internal/channels/telegram"
	"github.com/nextlevelbuilder/sentinel/internal/config"
	"github.com/nextlevelbuilder/sentinel/internal/providers"
	"github.com/nextlevelbuilder/sentinel/internal/sandbox"
	"github.com/nextlevelbuilder/sentinel/internal/security"
	"github.com/nextlevelbuilder/sentinel/internal/sessions"
	"github.com/nextlevelbuilder/sentinel/internal/skills"
	"github.com/nextlevelbuilder/sentinel/internal/supervisor"
	"github.com/nextlevelbuilder/sentinel/internal/tools"
)

func runSupervisor() {
	setupLogging()

	cfg, err := config.Load(config.ResolvePath(cfgFile))
	if err != nil {
		slog.Error("fatal: config", "error", err)
		os.Exit(1)
	}

	// Kernel sandbox goes up before any tool dispatch, connector poll, or
	// LLM call. Everything after this line runs confined.
	if cfg.Security.SandboxEnabled() {
		status := sandbox.Apply(sandbox.Policy{
			ReadPaths:  cfg.Security.AllowedReadPaths,
			WritePaths: cfg.Security.AllowedWritePaths,
		})
		slog.Info("sandbox status",
			"landlock", status.LandlockApplied,
			"seccomp", status.SeccompApplied)
	} else {
		slog.Warn("sandbox disabled by config")
	}

	auditor := security.NewAuditor(cfg.Security.AuditLogPath)
	defer auditor.Close()

	caps := security.NewCapabilityChecker(
		cfg.Security.AllowedReadPaths,
		cfg.Security.AllowedWritePaths,
		cfg.Security.AllowedCommands,
	)

	provider := buildProvider(cfg, auditor)
	slog.Info("provider ready", "name", provider.Name())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	executorOpts := []tools.ExecutorOption{
		tools.WithCommandTimeout(time.Duration(cfg.Security.CommandTimeout) * time.Second),
	}
	if cfg.Skills.Dir != "" {
		runner := skills.NewRunner(cfg.Skills.Dir, time.Duration(cfg.Skills.Timeout)*time.Second)
		executorOpts = append(executorOpts, tools.WithSkillRunner(runner))
		if cfg.Skills.Watch {
			go func() {
				if err := skills.Watch(ctx, runner); err != nil {
					slog.Warn("skills watcher stopped", "error", err)
				}
			}()
		}
	}
	executor := tools.NewExecutor(caps, auditor, executorOpts...)

	loop := agent.NewLoop(agent.LoopConfig{
		Provider:     provider,
		Executor:     executor,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxRounds:    cfg.Agent.MaxToolRounds,
	})

	connectors := buildConnectors(cfg)

	sup, err := supervisor.New(cfg, connectors, sessions.NewManager(cfg.Agent.MaxHistory), auditor, loop)
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("supervisor exited", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func buildProvider(cfg *config.Config, auditor *security.Auditor) providers.Provider {
	switch cfg.Agent.Provider {
	case "openai":
		pc := cfg.Providers.OpenAI
		if pc.APIKey == "" {
			slog.Error("fatal: OPENAI_API_KEY not set")
			os.Exit(1)
		}
		return providers.NewOpenAIProvider(pc.APIKey,
			providers.WithOpenAIBaseURL(pc.BaseURL),
			providers.WithOpenAIModel(pc.Model),
			providers.WithOpenAIMaxTokens(pc.MaxTokens),
			providers.WithOpenAIAuditHook(auditor.APICall),
		)
	default:
		pc := cfg.Providers.Anthropic
		if pc.APIKey == "" {
			slog.Error("fatal: ANTHROPIC_API_KEY not set")
			os.Exit(1)
		}
		return providers.NewAnthropicProvider(pc.APIKey,
			providers.WithAnthropicBaseURL(pc.BaseURL),
			providers.WithAnthropicModel(pc.Model),
			providers.WithAnthropicMaxTokens(pc.MaxTokens),
			providers.WithAnthropicAuditHook(auditor.APICall),
		)
	}
}

func buildConnectors(cfg *config.Config) []channels.Connector {
	var connectors []channels.Connector

	if token := cfg.Channels.Telegram.Token; token != "" {
		tg, err := telegram.New(token)
		if err != nil {
			slog.Error("telegram connector failed", "error", err)
		} else {
			connectors = append(connectors, tg)
			slog.Info("telegram connector enabled")
		}
	}

	if token := cfg.Channels.Discord.Token; token != "" {
		if len(cfg.Channels.Discord.ChannelIDs) == 0 {
			slog.Warn("discord token set but no channel_ids configured")
		} else {
			dc, err := discord.New(token, cfg.Channels.Discord.ChannelIDs)
			if err != nil {
				slog.Error("discord connector failed", "error", err)
			} else {
				connectors = append(connectors, dc)
				slog.Info("discord connector enabled")
			}
		}
	}

	return connectors
}

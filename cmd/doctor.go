package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/sentinel/internal/config"
	"github.com/nextlevelbuilder/sentinel/internal/sandbox"
	"github.com/nextlevelbuilder/sentinel/internal/skills"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment, sandbox support, and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("sentinel doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	fmt.Println("Sandbox:")
	if abi := sandbox.LandlockABI(); abi > 0 {
		fmt.Printf("  Landlock: available (ABI v%d)\n", abi)
	} else {
		fmt.Println("  Landlock: NOT available (kernel 5.13+ required)")
	}
	if sandbox.SeccompAvailable() {
		fmt.Println("  Seccomp:  available")
	} else {
		fmt.Println("  Seccomp:  NOT available")
	}
	fmt.Println()

	cfgPath := config.ResolvePath(cfgFile)
	fmt.Printf("Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND — env vars only)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  load error: %s\n", err)
		return
	}

	fmt.Printf("  Provider:      %s\n", cfg.Agent.Provider)
	fmt.Printf("  Read paths:    %d\n", len(cfg.Security.AllowedReadPaths))
	fmt.Printf("  Write paths:   %d\n", len(cfg.Security.AllowedWritePaths))
	fmt.Printf("  Commands:      %d\n", len(cfg.Security.AllowedCommands))
	fmt.Printf("  Sandbox:       %v\n", cfg.Security.SandboxEnabled())
	if cfg.Security.AuditLogPath != "" {
		fmt.Printf("  Audit log:     %s\n", cfg.Security.AuditLogPath)
	}

	hasToken := false
	if cfg.Channels.Telegram.Token != "" {
		fmt.Println("  Telegram:      token set")
		hasToken = true
	}
	if cfg.Channels.Discord.Token != "" {
		fmt.Printf("  Discord:       token set (%d channels)\n", len(cfg.Channels.Discord.ChannelIDs))
		hasToken = true
	}
	if !hasToken {
		fmt.Println("  WARNING: no connector tokens set (TELEGRAM_BOT_TOKEN / DISCORD_BOT_TOKEN)")
	}

	if cfg.Skills.Dir != "" {
		loaded := skills.Load(cfg.Skills.Dir)
		fmt.Printf("  Skills:        %d loaded from %s\n", len(loaded), cfg.Skills.Dir)
		for _, s := range loaded {
			fmt.Printf("    - %s v%s (tool: %s)\n",
				s.Manifest.Skill.Name, s.Manifest.Skill.Version, s.Manifest.Tool.Name)
		}
	}
}

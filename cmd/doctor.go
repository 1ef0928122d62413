package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nomirelay/nomirelay/internal/config"
	"github.com/nomirelay/nomirelay/internal/nomi"
)

const doctorTimeout = 15 * time.Second

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity to Nomi and Discord",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("nomirelay doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using environment)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	masked := cfg.MaskedCopy()

	fmt.Println()
	fmt.Println("  Settings:")
	checkSetting(config.EnvAPIKey, masked.Agent.APIKey)
	checkSetting(config.EnvNomiID, masked.Agent.ID)
	checkSetting(config.EnvDiscordToken, masked.Discord.Token)
	fmt.Printf("    %-18s %d\n", "Message limit:", cfg.Agent.MessageLimit())
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-18s %s (%s)\n", "Telemetry:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Println()
		fmt.Printf("  %s\n", err)
		return
	}

	// Both remote checks are independent; run them together.
	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	var nomiStatus, discordStatus string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		nomiStatus = checkNomi(gctx, cfg)
		return nil
	})
	g.Go(func() error {
		discordStatus = checkDiscord(gctx, cfg.Discord.Token)
		return nil
	})
	_ = g.Wait()

	fmt.Println()
	fmt.Println("  Connectivity:")
	fmt.Printf("    %-18s %s\n", "Nomi:", nomiStatus)
	fmt.Printf("    %-18s %s\n", "Discord:", discordStatus)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSetting(name, value string) {
	if value == "" {
		fmt.Printf("    %-18s (not configured)\n", name+":")
		return
	}
	fmt.Printf("    %-18s %s\n", name+":", value)
}

func checkNomi(ctx context.Context, cfg *config.Config) string {
	client := nomi.NewClient(cfg.Agent.APIKey, nomi.WithBaseURL(cfg.Agent.BaseURL))
	agent, err := nomi.FromUUID(ctx, client, cfg.Agent.ID)
	if err != nil {
		if nomi.IsNotFound(err) {
			if nomis, listErr := client.ListNomis(ctx); listErr == nil {
				return fmt.Sprintf("FAILED (no such nomi; account has %d)", len(nomis))
			}
		}
		return fmt.Sprintf("FAILED (%s)", err)
	}
	n := agent.Nomi()
	return fmt.Sprintf("OK (%s, %s)", n.Name, n.UUID)
}

func checkDiscord(ctx context.Context, token string) string {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Sprintf("FAILED (%s)", err)
	}
	user, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Sprintf("FAILED (%s)", err)
	}
	return fmt.Sprintf("OK (%s, %s)", user.Username, user.ID)
}

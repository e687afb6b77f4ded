package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"media-dispatcher/internal/app"
	"media-dispatcher/internal/auth"
	"media-dispatcher/internal/config"
	"media-dispatcher/internal/export"
	"media-dispatcher/internal/server"
	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

var (
	configPath string
	userID     int64
	filterUser int64
	urlsFile   string
	outputPath string
	limit      int
	userLimit  int
	stateName  string
	subject    string
	role       string
	olderThan  time.Duration
	username   string
)

var rootCmd = &cobra.Command{
	Use:   "media-dispatcher",
	Short: "Download media from links sent by chat users",
	Long: `Media Dispatcher turns links sent by chat users into downloaded media.

Features:
- Instagram posts, reels, stories and highlights
- YouTube, TikTok, Facebook and Pinterest
- pin.it short link expansion
- Per-user sliding window quota (memory or Redis)
- Request history, statistics and export`,
	Version: "1.0.0",
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch [url...]",
	Short: "Send links through the pipeline as a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		links := args
		if urlsFile != "" {
			fromFile, err := readURLsFromFile(urlsFile)
			if err != nil {
				return fmt.Errorf("error reading URLs file: %w", err)
			}
			links = append(links, fromFile...)
		}
		if len(links) == 0 {
			return fmt.Errorf("no links given")
		}

		a, err := app.Load(context.Background(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		limits := a.Limits()
		success, failed := 0, 0
		for _, link := range links {
			outcome := a.Pipeline.Handle(ctx, models.Message{UserID: models.UserID(userID), Text: link})
			if outcome.Succeeded() {
				success++
				fmt.Printf("✅ %s\n", link)
				fmt.Printf("   Platform: %s | Kind: %s\n", outcome.Platform, outcome.MediaKind)
				if outcome.MediaKind == models.MediaKindBatch {
					fmt.Printf("   Items: %d in %s\n", len(outcome.Items), outcome.ArtifactPath)
				} else {
					fmt.Printf("   File: %s (%s)\n", outcome.ArtifactPath, utils.FormatBytes(outcome.Size))
				}
				continue
			}

			failed++
			fmt.Printf("❌ %s\n", link)
			fmt.Printf("   %s\n", server.Reply(outcome, limits))
			if outcome.Failure != nil {
				fmt.Printf("   Reason: %s\n", outcome.Failure.Error())
			}
		}

		if len(links) > 1 {
			fmt.Printf("\nSummary: %d succeeded, %d failed\n", success, failed)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Load(context.Background(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		a.Monitor.Start()

		fmt.Printf("🚀 Server listening on http://%s:%d\n", a.Config.Server.Host, a.Config.Server.Port)
		fmt.Println("Press Ctrl+C to stop the server")

		if err := a.Server().Run(); err != nil {
			return fmt.Errorf("error running server: %w", err)
		}
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"register"},
	Short:   "Register a user, as on the first start message",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Load(context.Background(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.Storage.RegisterUser(&models.User{
			UserID:   models.UserID(userID),
			Username: username,
			JoinedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("error registering user: %w", err)
		}

		if created {
			fmt.Printf("👋 User %d registered\n", userID)
		} else {
			fmt.Printf("User %d is already registered\n", userID)
		}
		fmt.Println(server.Welcome(a.Limits()))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Load(context.Background(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Storage.GetStats(time.Now())
		if err != nil {
			return fmt.Errorf("error getting stats: %w", err)
		}

		fmt.Printf("📊 Statistics\n")
		fmt.Printf("   Total users: %d\n", stats.TotalUsers)
		fmt.Printf("   New users (24h): %d\n", stats.NewUsers24h)
		fmt.Printf("   Total requests: %d\n", stats.TotalRequests)
		fmt.Printf("   Success rate: %.1f%%\n", stats.SuccessRate)

		states := make([]string, 0, len(stats.RequestsByState))
		for state := range stats.RequestsByState {
			states = append(states, string(state))
		}
		sort.Strings(states)
		for _, state := range states {
			fmt.Printf("   %s: %d\n", state, stats.RequestsByState[models.OutcomeState(state)])
		}
		return nil
	},
}

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List registered platform strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Load(context.Background(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, info := range a.Registry.GetPlatformInfo() {
			kinds := make([]string, 0, len(info.Kinds))
			for _, kind := range info.Kinds {
				kinds = append(kinds, string(kind))
			}
			fmt.Printf("• %s: %s\n", info.Name, strings.Join(kinds, ", "))
		}
		return nil
	},
}

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List processed requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Load(context.Background(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Storage.ListRequestLogs(requestFilter())
		if err != nil {
			return fmt.Errorf("error listing requests: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No requests found")
			return nil
		}

		fmt.Printf("📚 Requests (%d)\n", len(entries))
		for i, e := range entries {
			fmt.Printf("\n%d. %s\n", i+1, e.URL)
			fmt.Printf("   User: %d | Platform: %s | State: %s\n", e.UserID, e.Platform, e.State)
			if e.FailureKind != "" {
				fmt.Printf("   Failure: %s %s\n", e.FailureKind, e.Detail)
			}
			fmt.Printf("   At: %s (%dms)\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.DurationMs)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old request log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Load(context.Background(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.Storage.CleanupOldLogs(olderThan)
		if err != nil {
			return fmt.Errorf("error cleaning up: %w", err)
		}
		fmt.Printf("🧹 Deleted %d entries older than %s\n", deleted, olderThan)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data to CSV, XLSX or JSON",
}

var exportUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Export registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Load(context.Background(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.Storage.ListUsers(userLimit, 0)
		if err != nil {
			return fmt.Errorf("error listing users: %w", err)
		}

		if err := export.NewDataExporter(export.ExportConfig{FilePath: outputPath}).ExportUsers(users); err != nil {
			return fmt.Errorf("error exporting users: %w", err)
		}
		fmt.Printf("✅ Exported %d users to %s\n", len(users), outputPath)
		return nil
	},
}

var exportRequestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Export processed requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Load(context.Background(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Storage.ListRequestLogs(requestFilter())
		if err != nil {
			return fmt.Errorf("error listing requests: %w", err)
		}

		if err := export.NewDataExporter(export.ExportConfig{FilePath: outputPath}).ExportRequests(entries); err != nil {
			return fmt.Errorf("error exporting requests: %w", err)
		}
		fmt.Printf("✅ Exported %d requests to %s\n", len(entries), outputPath)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := config.NewManager()
		cfg, err := manager.Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		// Keep stdout to the token itself
		zerolog.SetGlobalLevel(zerolog.WarnLevel)

		service := auth.NewService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenExpiry)*time.Hour)
		token, err := service.IssueToken(subject, role)
		if err != nil {
			return fmt.Errorf("error issuing token: %w", err)
		}

		fmt.Println(token)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configManager := config.NewManager()
		_, err := configManager.Load(configPath)
		if err != nil {
			return fmt.Errorf("error initializing configuration: %w", err)
		}
		fmt.Println("Configuration file created successfully")
		return nil
	},
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configManager := config.NewManager()
		cfg, err := configManager.Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		fmt.Printf("📋 Current Configuration\n")
		fmt.Printf("   Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("   Download Path: %s\n", cfg.Download.SavePath)
		fmt.Printf("   Max File Size: %s\n", utils.FormatBytes(cfg.Download.MaxFileSizeBytes))
		fmt.Printf("   Strategy Timeout: %ds\n", cfg.Download.StrategyTimeout)
		fmt.Printf("   Quota: %s, %d per %ds\n", cfg.Quota.Backend, cfg.Quota.Limit, cfg.Quota.WindowSeconds)
		fmt.Printf("   Short Link Hosts: %s\n", strings.Join(cfg.Classifier.ShortLinkHosts, ", "))
		fmt.Printf("   Database Path: %s\n", cfg.Database.Path)
		fmt.Printf("   Log Level: %s\n", cfg.Log.Level)
		fmt.Printf("   Proxy Enabled: %v\n", cfg.Proxy.Enabled)
		fmt.Printf("   Auth Enabled: %v\n", cfg.Auth.Enabled)

		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration directory")

	dispatchCmd.Flags().Int64VarP(&userID, "user", "u", 1, "User ID the links are sent as")
	dispatchCmd.Flags().StringVarP(&urlsFile, "file", "f", "", "File with one link per line")

	startCmd.Flags().Int64VarP(&userID, "user", "u", 1, "User ID")
	startCmd.Flags().StringVar(&username, "username", "", "Username")
	startCmd.MarkFlagRequired("user")

	for _, cmd := range []*cobra.Command{requestsCmd, exportRequestsCmd} {
		cmd.Flags().Int64VarP(&filterUser, "user", "u", 0, "Only requests from this user")
		cmd.Flags().StringVar(&stateName, "state", "", "Only requests in this state")
		cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	}
	exportUsersCmd.Flags().IntVarP(&userLimit, "limit", "n", 10000, "Maximum number of users")

	exportCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "export.csv", "Output file (.csv, .xlsx or .json)")

	cleanupCmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of entries to delete")

	tokenCmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	tokenCmd.Flags().StringVar(&role, "role", "client", "Token role (client or admin)")
	tokenCmd.MarkFlagRequired("subject")

	// Add commands
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(platformsCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)

	exportCmd.AddCommand(exportUsersCmd)
	exportCmd.AddCommand(exportRequestsCmd)

	// Config subcommands
	configCmd.AddCommand(initConfigCmd)
	configCmd.AddCommand(showConfigCmd)
}

func requestFilter() models.RequestFilter {
	filter := models.RequestFilter{Limit: limit}
	if filterUser != 0 {
		user := models.UserID(filterUser)
		filter.UserID = &user
	}
	if stateName != "" {
		state := models.OutcomeState(stateName)
		filter.State = &state
	}
	return filter
}

func readURLsFromFile(filename string) ([]string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	// Split by lines and filter empty lines
	lines := strings.Split(string(content), "\n")
	var urls []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}

	return urls, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

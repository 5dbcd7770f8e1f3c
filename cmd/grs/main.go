package main

import (
	"fmt"
	"os"
	"sort"

	"grs-go/internal/app"
	"grs-go/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer
// a.Close(). operation identifies the CLI command being run (e.g.
// "Sync", "SyncAll").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "grs",
	Short: "Track GitHub repositories, mirror them locally and keep versioned snapshots",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Data Dir:  %s\n", cfg.DataDir)
		fmt.Printf("Store:     %s\n", cfg.StorePath)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Data Dir:  %s\n", cfg.DataDir)
		fmt.Printf("Store:     %s\n", cfg.StorePath)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Workers:   %d\n", cfg.Workers)
		token := "(not set)"
		if cfg.GitHub.Token != "" {
			token = "(set)"
		}
		fmt.Printf("API Token: %s\n", token)
		return nil
	},
}

var configTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Set the GitHub API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Print("GitHub token (input hidden): ")
		tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}

		cfg.GitHub.Token = string(tokenBytes)
		if err := config.WriteToFile(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Println("Token saved.")
		return nil
	},
}

// track command
var trackCmd = &cobra.Command{
	Use:   "track URL",
	Short: "Add a repository to tracking without syncing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Track")
		if err != nil {
			return err
		}
		defer a.Close()

		url, err := a.Track(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Tracking %s\n", url)
		return nil
	},
}

// untrack command
var untrackCmd = &cobra.Command{
	Use:   "untrack URL...",
	Short: "Remove repositories from tracking (mirrors and snapshots stay)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Untrack")
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.Untrack(args...)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d repositor%s from tracking\n", removed, plural(removed, "y", "ies"))
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync URL",
	Short: "Synchronize one repository (clone or pull, snapshot on change)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Sync(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Println("Synchronized.")
		return nil
	},
}

// sync-all command
var syncAllCmd = &cobra.Command{
	Use:   "sync-all",
	Short: "Synchronize every tracked repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		auto, _ := cmd.Flags().GetBool("auto")

		a, err := newApp("SyncAll")
		if err != nil {
			return err
		}
		defer a.Close()

		if auto {
			due, last := a.AutoUpdateDue()
			if !due {
				fmt.Printf("Skipping: last automatic sync was %s\n", last)
				return nil
			}
		}

		ok, failed, err := a.SyncAll(cmd.Context())
		if err != nil {
			return err
		}
		if auto {
			a.MarkAutoUpdated()
		}

		fmt.Printf("Synchronized %d repositor%s, %d failed\n", ok, plural(ok, "y", "ies"), failed)
		return nil
	},
}

// refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-check archived/deleted status of all tracked repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		fresh, _ := cmd.Flags().GetBool("fresh")

		a, err := newApp("Refresh")
		if err != nil {
			return err
		}
		defer a.Close()

		changed, err := a.Refresh(cmd.Context(), fresh)
		if err != nil {
			return err
		}
		fmt.Printf("%d repositor%s changed status\n", changed, plural(changed, "y", "ies"))
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		records, counts, err := a.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No repositories tracked.")
			return nil
		}

		urls := make([]string, 0, len(records))
		for url := range records {
			urls = append(urls, url)
		}
		sort.Strings(urls)

		for _, url := range urls {
			rec := records[url]
			synced := rec.LastCloned
			if synced == "" {
				synced = "never"
			}
			fmt.Printf("%-8s %-60s synced: %s\n", rec.Status, url, synced)
			if rec.LastError != "" {
				fmt.Printf("         last error: %s\n", rec.LastError)
			}
		}

		fmt.Printf("\n%d tracked (%d active, %d archived, %d deleted, %d error, %d pending)\n",
			len(records), counts["active"], counts["archived"], counts["deleted"], counts["error"], counts["pending"])
		return nil
	},
}

// archives command
var archivesCmd = &cobra.Command{
	Use:   "archives URL",
	Short: "List snapshots of a repository, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Archives")
		if err != nil {
			return err
		}
		defer a.Close()

		infos, err := a.Archives(args[0])
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%s  %s  %.2f MB\n", info.Name, info.Date, float64(info.Size)/(1024*1024))
		}
		return nil
	},
}

var archivesDeleteCmd = &cobra.Command{
	Use:   "delete URL NAME",
	Short: "Delete one snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DeleteArchive")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteArchive(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[1])
		return nil
	},
}

// ratelimit command
var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Show the remaining GitHub API budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RateLimit")
		if err != nil {
			return err
		}
		defer a.Close()

		remaining, limit, reset, err := a.RateLimit(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking rate limit: %w", err)
		}
		fmt.Printf("%d/%d remaining, resets at %s\n", remaining, limit, reset.Local().Format("15:04:05"))
		return nil
	},
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}

func init() {
	configCmd.AddCommand(configInitCmd, configListCmd, configTokenCmd)
	archivesCmd.AddCommand(archivesDeleteCmd)

	syncAllCmd.Flags().Bool("auto", false, "only run if 24h have passed since the last automatic sync")
	refreshCmd.Flags().Bool("fresh", false, "bypass the status cache")

	rootCmd.AddCommand(configCmd, trackCmd, untrackCmd, syncCmd, syncAllCmd, refreshCmd, listCmd, archivesCmd, rateLimitCmd)
}

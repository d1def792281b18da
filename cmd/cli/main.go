package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/axolutly-go/internal/app"
	"github.com/yourusername/axolutly-go/internal/domain"
	"github.com/yourusername/axolutly-go/pkg/logger"
)

var (
	serverURL   string
	configPath  string
	verbose     bool
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:           "axolutly",
		Short:         "Axolutly - video downloader for YouTube, Twitch and TikTok",
		Long:          `A command-line interface for downloading videos and managing the axolutly server.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8470", "Server URL")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	sessionsCmd.AddCommand(addCmd, listCmd, statsCmd, getCmd, cancelCmd)
	cookiesCmd.AddCommand(purgeCmd, evictCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(cookiesCmd)
	rootCmd.AddCommand(configCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		printWarning(os.Stderr, "%v", err)
	}
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage download sessions on the server",
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Start a download on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()

		quality, _ := cmd.Flags().GetString("quality")
		output, _ := cmd.Flags().GetString("output")
		payload := map[string]string{"url": args[0]}
		if quality != "" {
			payload["quality"] = quality
		}
		if output != "" {
			abs, err := filepath.Abs(output)
			if err != nil {
				return err
			}
			payload["output_dir"] = abs
		}

		data, _ := json.Marshal(payload)
		var record domain.SessionRecord
		if err := call(http.MethodPost, "/api/v1/sessions", data, http.StatusCreated, &record); err != nil {
			return err
		}
		printSuccess(os.Stdout, "Session started")
		fmt.Printf("ID:       %s\n", record.ID)
		fmt.Printf("Platform: %s\n", record.Platform)
		fmt.Printf("Quality:  %s\n", record.Quality)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List download sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		state, _ := cmd.Flags().GetString("state")

		path := "/api/v1/sessions"
		if state != "" {
			path += "?state=" + state
		}
		var records []domain.SessionRecord
		if err := call(http.MethodGet, path, nil, http.StatusOK, &records); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tPLATFORM\tSTATE\tPROGRESS\tCREATED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
				truncate(r.ID, 8),
				truncate(r.URL, 40),
				r.Platform,
				r.State,
				r.Progress,
				r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var stats domain.SessionStats
		if err := call(http.MethodGet, "/api/v1/sessions/stats", nil, http.StatusOK, &stats); err != nil {
			return err
		}

		printHeader(os.Stdout, "Session Statistics:")
		fmt.Printf("  Total:     %d\n", stats.Total)
		fmt.Printf("  Active:    %d\n", stats.Active)
		fmt.Printf("  Finished:  %d\n", stats.Finished)
		fmt.Printf("  Failed:    %d\n", stats.Failed)
		fmt.Printf("  Cancelled: %d\n", stats.Cancelled)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get session details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var r domain.SessionRecord
		if err := call(http.MethodGet, "/api/v1/sessions/"+args[0], nil, http.StatusOK, &r); err != nil {
			return err
		}

		printHeader(os.Stdout, "Session Details:")
		fmt.Printf("  ID:       %s\n", r.ID)
		fmt.Printf("  URL:      %s\n", r.URL)
		fmt.Printf("  Platform: %s\n", r.Platform)
		fmt.Printf("  Quality:  %s\n", r.Quality)
		fmt.Printf("  State:    %s\n", r.State)
		fmt.Printf("  Progress: %.1f%%\n", r.Progress)
		fmt.Printf("  Created:  %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
		if r.FilePath != "" {
			fmt.Printf("  File:     %s\n", r.FilePath)
		}
		if r.ErrorMessage != "" {
			fmt.Printf("  Message:  %s\n", r.ErrorMessage)
		}
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		if err := call(http.MethodPost, "/api/v1/sessions/"+args[0]+"/cancel", nil, http.StatusOK, nil); err != nil {
			return err
		}
		printNeutral(os.Stdout, "Cancel requested")
		return nil
	},
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Manage stored sign-in cookies",
}

var purgeCmd = &cobra.Command{
	Use:   "purge [domain]",
	Short: "Delete the stored cookies of a domain (youtube.com, twitch.tv, tiktok.com)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(rt *app.Runtime) error {
			if err := rt.Store.Purge(args[0]); err != nil {
				return err
			}
			printSuccess(os.Stdout, "Purged cookies of %s", args[0])
			return nil
		})
	},
}

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Delete stored cookies past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(rt *app.Runtime) error {
			n, err := rt.Store.EvictExpired()
			if err != nil {
				return err
			}
			printSuccess(os.Stdout, "Evicted %d expired cookie records", n)
			return nil
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(os.Getenv("HOME"), ".axolutly", "config.yaml")
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		if err := app.SaveConfig(domain.DefaultConfig(), path); err != nil {
			return err
		}
		printSuccess(os.Stdout, "Wrote %s", path)
		return nil
	},
}

func init() {
	addCmd.Flags().StringP("quality", "q", "", "Quality preset: best, audio, 1080p, 720p, ...")
	addCmd.Flags().StringP("output", "o", "", "Output directory")
	listCmd.Flags().StringP("state", "s", "", "Filter by state")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

func withRuntime(fn func(rt *app.Runtime) error) error {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log := logger.NewCLI(verbose)
	defer log.Sync()

	rt, err := app.NewRuntime(config, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

// call sends a request to the server and decodes the response into out
func call(method, path string, body []byte, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if err != errSilent {
			printError(os.Stderr, "%v", err)
		}
		os.Exit(1)
	}
}

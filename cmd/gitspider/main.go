package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gitspider/internal/config"
	"gitspider/internal/github"
	"gitspider/internal/logging"
	"gitspider/internal/render"
	"gitspider/internal/server"
	"gitspider/internal/spider"
)

const version = "1.0.0"

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gitspider",
	Short: "gitspider - Architectural Blueprint crawler for GitHub repositories",
	Long: `gitspider deep-crawls a GitHub repository and emits its Architectural
Blueprint: the full file tree plus the contents of architecturally
significant files (build manifests, configs, auth/routing/schema code).

Acquisition is multi-tier: the structured tree API first, and when that is
unavailable a headless-browser walk of the rendered repository pages.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// crawlCmd runs one crawl and prints the blueprint to stdout
var crawlCmd = &cobra.Command{
	Use:   "crawl [repo-url]",
	Short: "Crawl a repository and print its Architectural Blueprint as JSON",
	Long: `Crawls the given repository URL and writes the blueprint to stdout as
minified JSON, suitable for piping into downstream tooling.

Example:
  gitspider crawl https://github.com/vercel/next.js --branch canary`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawl,
}

// serveCmd runs the HTTP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the crawler over HTTP (POST /crawl, GET /health)",
	RunE:  runServe,
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gitspider %s\n", version)
	},
}

var (
	crawlBranch  string
	crawlTimeout time.Duration
	serveAddr    string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory (config and logs live under .gitspider/)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "explicit config file path (overrides workspace lookup)")

	crawlCmd.Flags().StringVarP(&crawlBranch, "branch", "b", "", "pin the branch instead of probing for it")
	crawlCmd.Flags().DurationVar(&crawlTimeout, "timeout", 5*time.Minute, "hard bound on the whole crawl (0 disables)")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadFromWorkspace(workspace)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if crawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, crawlTimeout)
		defer cancel()
	}

	client := github.NewClient(cfg.GitHub, nil)
	renderer := render.NewRodRenderer(cfg.Render)
	defer func() {
		if err := renderer.Close(); err != nil {
			logger.Warn("renderer shutdown", zap.Error(err))
		}
	}()

	bp, err := spider.Crawl(ctx, cfg, client, renderer, args[0], crawlBranch)
	if err != nil {
		return err
	}

	// Minified JSON on stdout; everything else goes to the loggers.
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	return enc.Encode(bp)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	client := github.NewClient(cfg.GitHub, nil)
	renderer := render.NewRodRenderer(cfg.Render)
	defer func() {
		if err := renderer.Close(); err != nil {
			logger.Warn("renderer shutdown", zap.Error(err))
		}
	}()

	return server.New(cfg, client, renderer, logger).ListenAndServe()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

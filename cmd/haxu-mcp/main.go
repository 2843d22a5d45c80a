package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hession/haxu-mcp/internal/cli"
	"github.com/hession/haxu-mcp/internal/config"
	"github.com/hession/haxu-mcp/internal/lawdb"
	"github.com/hession/haxu-mcp/internal/logger"
	"github.com/hession/haxu-mcp/internal/upstream"
	"github.com/hession/haxu-mcp/internal/vectorsearch"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and starts the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := initLogger(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "haxu-mcp",
		Short: "haxu-mcp - a tool server for MCP clients",
		Long: `haxu-mcp exposes a catalog of tools to MCP clients over SSE and WebSocket.

Tool modules:
  • legal     - Chinese Criminal Law lookup and search
  • weather   - US weather alerts and forecasts (api.weather.gov)
  • pricing   - Azure retail price queries
  • charcount - Chinese character counting
  • semantic  - GDPR and PIPL semantic search`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configDir != "" {
				config.SetConfigDir(configDir)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ./config)")

	// serve subcommand
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tool server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	// function subcommand
	functionCmd := &cobra.Command{
		Use:   "function",
		Short: "Serve the character counting function",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runFunction(cmd.Context(), cfg)
		},
	}

	// client subcommand
	clientCmd := &cobra.Command{
		Use:   "client [server-url]",
		Short: "Open an interactive client against a running server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			serverURL := localURL(cfg.Server.Addr)
			if len(args) == 1 {
				serverURL = args[0]
			}
			return cli.Run(cmd.Context(), serverURL)
		},
	}

	rootCmd.AddCommand(serveCmd, functionCmd, clientCmd, newLegalCmd(), newVectorsCmd(), newConfigCmd(), newVersionCmd())
	return rootCmd
}

func newLegalCmd() *cobra.Command {
	legalCmd := &cobra.Command{
		Use:   "legal",
		Short: "Manage the legal provision store",
	}

	importCmd := &cobra.Command{
		Use:   "import <corpus.yaml>",
		Short: "Import legal provisions from a YAML corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := lawdb.Open(cfg.Legal.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open legal store: %w", err)
			}
			defer store.Close()

			n, err := store.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d legal provisions into %s\n", n, cfg.Legal.DBPath)
			return nil
		},
	}

	legalCmd.AddCommand(importCmd)
	return legalCmd
}

func newVectorsCmd() *cobra.Command {
	var batchSize int

	vectorsCmd := &cobra.Command{
		Use:   "vectors",
		Short: "Manage the local vector store",
	}

	importCmd := &cobra.Command{
		Use:   "import <corpus.yaml>",
		Short: "Embed a YAML corpus into the local vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			corpus, err := vectorsearch.LoadCorpus(args[0])
			if err != nil {
				return err
			}

			client := upstream.New(cfg.HTTP.UserAgent, seconds(cfg.HTTP.TimeoutSeconds))
			embedder, err := newEmbedder(cfg.Semantic, client)
			if err != nil {
				return err
			}

			matcher, err := vectorsearch.OpenSQLiteMatcher(cfg.Semantic.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open vector store: %w", err)
			}
			defer matcher.Close()

			n, err := matcher.Import(cmd.Context(), embedder, corpus, batchSize)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d documents into collection %s\n", n, corpus.Collection)
			return nil
		},
	}
	importCmd.Flags().IntVar(&batchSize, "batch", 16, "documents per embedding request")

	vectorsCmd.AddCommand(importCmd)
	return vectorsCmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cfg.String())

			path, _ := config.ConfigPath()
			fmt.Fprintf(out, "\nConfig file path: %s\n", path)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "haxu-mcp v%s\n", version)
		},
	}
}

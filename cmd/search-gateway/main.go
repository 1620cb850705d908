package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/search-gateway/app"
	"github.com/upb/search-gateway/config"
	"github.com/upb/search-gateway/internal/observability"
	"github.com/upb/search-gateway/routes"
	"github.com/upb/search-gateway/services/providers"
	"github.com/upb/search-gateway/services/search"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "search-gateway",
		Short: "Search gateway with engine fallback",
		Long: `search-gateway routes search queries to Serper, Tavily, Google or Bing.

Commands:
  search-gateway serve            Run the HTTP API
  search-gateway search "query"   Run one search and print the response
  search-gateway engines          Show configured engines and their health`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log", "",
		"Log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(newServeCmd(opts), newSearchCmd(opts), newEnginesCmd(opts))
	return root
}

// bootstrap loads configuration and wires dependencies
func bootstrap(ctx context.Context, opts *rootOptions) (*app.Dependencies, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Observability.LogLevel = opts.logLevel
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return app.NewDependencies(ctx, cfg, logger)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			return serve(ctx, deps)
		},
	}
}

func serve(ctx context.Context, deps *app.Dependencies) error {
	cfg := deps.Config.Server
	logger := deps.Logger

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           routes.SetupRoutes(deps),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("search gateway listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", deps.Config.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Error("dependency shutdown failed", zap.Error(err))
	}

	return serveErr
}

type searchFlags struct {
	intentType string
	maxResults int
	engine     string
	timeout    time.Duration
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	flags := &searchFlags{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(context.Background()) }()

			intent := search.Intent{
				Query:      args[0],
				Type:       providers.IntentType(flags.intentType),
				MaxResults: flags.maxResults,
				Deadline:   flags.timeout,
			}
			if !cmd.Flags().Changed("max") {
				intent.MaxResults = deps.Config.Search.DefaultMaxResults
			}
			if flags.engine != "" {
				engine := providers.Engine(flags.engine)
				intent.EngineOverride = &engine
			}

			resp, err := deps.Search.Resolve(cmd.Context(), intent)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVarP(&flags.intentType, "type", "t", "", "Search type: general, ai_context, news, academic")
	cmd.Flags().IntVarP(&flags.maxResults, "max", "n", 0, "Maximum number of results")
	cmd.Flags().StringVarP(&flags.engine, "engine", "e", "", "Force a single engine: serper, tavily, google, bing")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Shorter total deadline, e.g. 5s")
	return cmd
}

func newEnginesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "Show configured engines and their health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(context.Background()) }()

			return printJSON(cmd.OutOrStdout(), deps.Search.Summary())
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

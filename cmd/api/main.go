// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/roundtable/internal/config"
	"github.com/capitalize-ai/roundtable/internal/middleware"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log := logger.Global()
		log.Error("command failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "api",
		Short:         "Roundtable multi-agent conversation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and WebSocket server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "seed-personas",
			Short: "Seed the persona catalog into an empty database and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return seedPersonas(cmd.Context())
			},
		},
		newTokenCmd(),
	)
	return root
}

func newTokenCmd() *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token <user-id>",
		Short: "Print a signed development token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			token, err := middleware.IssueToken(cfg.JWTSecret, args[0], name, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// newLogger builds the process logger and installs it as the global one.
func newLogger(cfg *config.Config) (*logger.Logger, error) {
	var (
		log *logger.Logger
		err error
	)
	if os.Getenv("ENV") == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(log)
	return log, nil
}

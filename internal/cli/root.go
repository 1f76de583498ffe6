// Package cli implements roomiesctl, the operator tool for the booking engine.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"roomies/internal/infra/bootstrap"
	"roomies/internal/infra/config"
	"roomies/internal/infra/obs"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	EnvFile string

	// Load builds the runtime commands operate on. Tests replace it.
	Load func(ctx context.Context, opts *RootOptions) (*bootstrap.Runtime, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for roomiesctl.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{Load: loadRuntime})
}

func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	if opts.Load == nil {
		opts.Load = loadRuntime
	}
	cmd := &cobra.Command{
		Use:   "roomiesctl",
		Short: "Operate the roomies booking engine",
		Long:  "Operator commands for the booking lifecycle and settlement engine: fee quotes, completion sweeps, schema migration and settlement statements.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file read before the environment")

	cmd.AddCommand(NewQuoteCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewStatementCommand(opts))

	return cmd
}

func loadRuntime(ctx context.Context, opts *RootOptions) (*bootstrap.Runtime, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := obs.NewLogger(cfg.Env)
	if !opts.Verbose {
		logger = slog.New(slog.DiscardHandler)
	}
	return bootstrap.Builder{Config: cfg, Logger: logger}.Build(ctx)
}

// withRuntime builds the runtime, runs fn and releases it.
func withRuntime(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, rt *bootstrap.Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := opts.Load(ctx, opts)
	if err != nil {
		return fmt.Errorf("load runtime: %w", err)
	}
	defer rt.Close(context.WithoutCancel(ctx))
	return fn(ctx, rt)
}

// output writes v as indented JSON, or calls text for the text format.
func output(opts *RootOptions, w io.Writer, v any, text func(w io.Writer) error) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

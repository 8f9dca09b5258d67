// Package cli implements triagectl, the operator command line for running
// the triage pipeline outside the server.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	corecfg "github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/cfg"
	"github.com/linnemanlabs/sentinel/internal/pipeline"
	"github.com/linnemanlabs/sentinel/internal/similarity/memindex"
	"github.com/linnemanlabs/sentinel/internal/triage"
)

const appName = "sentinel"

// RootOptions holds the flags shared by every subcommand.
type RootOptions struct {
	Config cfg.Config
	Log    log.Config

	goFlags *flag.FlagSet
	logger  log.Logger

	// Extract and Classify replace the configured LLM backends (for testing).
	Extract  triage.Provider
	Classify triage.Provider
}

// NewRootCommand creates the triagectl root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	opts.goFlags = flag.NewFlagSet("triagectl", flag.ContinueOnError)
	opts.Config.RegisterPipelineFlags(opts.goFlags)
	opts.Log.RegisterFlags(opts.goFlags)

	cmd := &cobra.Command{
		Use:   "triagectl",
		Short: "Run the sentinel triage pipeline from the command line",
		Long: `triagectl runs bug reports through the sentinel triage pipeline,
seeds the PostgreSQL similarity index and scores the pipeline against a
labelled evaluation set.

Every flag can also be set from a SENTINEL_ prefixed environment variable;
flags given on the command line win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd.Root().PersistentFlags())
		},
	}

	cmd.PersistentFlags().AddGoFlagSet(opts.goFlags)

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newEvalCommand(opts))

	return cmd
}

// setup marks flags given on the command line as set on the underlying
// FlagSet so environment fill does not override them, then builds the logger.
func (o *RootOptions) setup(pfs *pflag.FlagSet) error {
	var errs []error
	pfs.Visit(func(f *pflag.Flag) {
		if o.goFlags.Lookup(f.Name) != nil {
			errs = append(errs, o.goFlags.Set(f.Name, f.Value.String()))
		}
	})
	if err := errors.Join(errs...); err != nil {
		return err
	}

	corecfg.FillFromEnv(o.goFlags, "SENTINEL_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := o.Log.Validate(); err != nil {
		return fmt.Errorf("log configuration: %w", err)
	}
	lg, err := log.New(o.Log.ToOptions(appName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	o.logger = lg.With("component", "triagectl")
	return nil
}

// L returns the command logger, or a no-op logger before setup.
func (o *RootOptions) L() log.Logger {
	if o.logger == nil {
		return log.Nop()
	}
	return o.logger
}

// engine validates the pipeline configuration and builds an engine over a
// freshly seeded in-memory similarity index.
func (o *RootOptions) engine(ctx context.Context) (*triage.Engine, error) {
	if o.Extract == nil || o.Classify == nil {
		if err := o.Config.ValidatePipeline(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	idx := memindex.New()
	if err := pipeline.SeedIndex(ctx, &o.Config, idx, o.L()); err != nil {
		return nil, err
	}
	return pipeline.Build(ctx, &o.Config, pipeline.Deps{
		Logger:   o.L(),
		Index:    idx,
		Extract:  o.Extract,
		Classify: o.Classify,
	})
}

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/sentinel/internal/postgres"
	"github.com/linnemanlabs/sentinel/internal/similarity"
	"github.com/linnemanlabs/sentinel/internal/similarity/pgindex"
)

type seedOptions struct {
	*RootOptions
	DatabaseURL string
	Force       bool
}

func newSeedCommand(root *RootOptions) *cobra.Command {
	opts := &seedOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the prior-ticket corpus into the PostgreSQL similarity index",
		Long: `Load the seed corpus (--seed-file, or the built-in set) into the
PostgreSQL similarity index used for duplicate detection. An index that
already holds at least as many tickets is left alone unless --force is set.

Example:
  triagectl seed --database-url postgres://sentinel@localhost/sentinel
  triagectl seed --seed-file tickets.json --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DatabaseURL, "database-url", "", "PostgreSQL connection URL (env SENTINEL_DATABASE_URL)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "upsert every seed ticket even if the index is populated")

	return cmd
}

func runSeed(cmd *cobra.Command, opts *seedOptions) error {
	if opts.DatabaseURL == "" {
		opts.DatabaseURL = os.Getenv("SENTINEL_DATABASE_URL")
	}
	if opts.DatabaseURL == "" {
		return errors.New("database url is required (--database-url or SENTINEL_DATABASE_URL)")
	}

	tickets, err := similarity.LoadSeedFile(opts.Config.SeedFile)
	if err != nil {
		return err
	}

	ctx := postgres.WithSource(cmd.Context(), "seed")
	pool, err := postgres.NewPool(ctx, opts.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	defer pool.Close()

	idx, err := pgindex.New(ctx, pool)
	if err != nil {
		return fmt.Errorf("pgindex init: %w", err)
	}

	wrote := true
	if opts.Force {
		err = idx.Add(ctx, tickets)
	} else {
		wrote, err = similarity.Seed(ctx, idx, tickets, opts.L())
	}
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	n, err := idx.Count(ctx)
	if err != nil {
		return fmt.Errorf("count index: %w", err)
	}
	if wrote {
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d tickets (index now holds %d)\n", len(tickets), n)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "index already holds %d tickets, nothing to do\n", n)
	}
	return nil
}

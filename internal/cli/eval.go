package cli

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/linnemanlabs/sentinel/internal/eval"
)

type evalOptions struct {
	*RootOptions
	CasesFile   string
	Concurrency int
	MinPassRate float64
	JSON        bool
}

func newEvalCommand(root *RootOptions) *cobra.Command {
	opts := &evalOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score the pipeline against a labelled set of reports",
		Long: `Run every evaluation case through the pipeline, compare each stage's
output with the expected values and print a per-dimension accuracy report.

Example:
  triagectl eval
  triagectl eval --cases cases.json --concurrency 8 --min-pass-rate 0.8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.CasesFile, "cases", "", "JSON file of evaluation cases (empty = built-in set)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "cases run in parallel")
	cmd.Flags().Float64Var(&opts.MinPassRate, "min-pass-rate", 0, "fail when the overall pass rate is below this (0..1)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the summary and results as JSON")

	return cmd
}

func runEval(cmd *cobra.Command, opts *evalOptions) error {
	if opts.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency %d (must be >= 1)", opts.Concurrency)
	}
	if opts.MinPassRate < 0 || opts.MinPassRate > 1 {
		return fmt.Errorf("invalid min pass rate %v (must be 0..1)", opts.MinPassRate)
	}

	cases, err := eval.LoadCases(opts.CasesFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, err := opts.engine(ctx)
	if err != nil {
		return err
	}

	// progress on stderr, report on stdout
	var (
		mu   sync.Mutex
		done int
	)
	progress := cmd.ErrOrStderr()
	runner := &eval.Runner{
		Pipeline:    eng,
		Concurrency: opts.Concurrency,
		Logger:      opts.L(),
		OnResult: func(_, total int, r eval.CaseResult) {
			mu.Lock()
			defer mu.Unlock()
			done++
			status := "PASS"
			if !r.AllPassed {
				status = "FAIL"
			}
			fmt.Fprintf(progress, "[%d/%d] %-12s %s %.2fs\n", done, total, r.ID, status, r.LatencyS)
		},
	}
	results, err := runner.Run(ctx, cases)
	if err != nil {
		return err
	}

	summary := eval.Summarize(results)
	out := cmd.OutOrStdout()
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(struct {
			Summary eval.Summary      `json:"summary"`
			Results []eval.CaseResult `json:"results"`
		}{summary, results})
	} else {
		err = eval.WriteReport(out, summary, results)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if summary.OverallPassRate < opts.MinPassRate {
		return fmt.Errorf("overall pass rate %.3f below minimum %.3f", summary.OverallPassRate, opts.MinPassRate)
	}
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

// maxStdinReport bounds a report read from stdin, matching the API body limit.
const maxStdinReport = 64 << 10

type runOptions struct {
	*RootOptions
	InputType string
	Compact   bool
}

func newRunCommand(root *RootOptions) *cobra.Command {
	opts := &runOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "run [report text]",
		Short: "Triage one report and print the pipeline record",
		Long: `Run one bug report through intake, dedup, classification and routing
and print the resulting record as JSON. With no arguments, or a single "-",
the report is read from stdin.

Example:
  triagectl run "Checkout page crashes on Safari when applying a coupon"
  cat report.txt | triagectl run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.InputType, "input-type", string(triage.InputText), "input modality (text|voice|image); only text is triaged")
	cmd.Flags().BoolVar(&opts.Compact, "compact", false, "print the record on a single line")

	return cmd
}

func runReport(cmd *cobra.Command, opts *runOptions, args []string) error {
	text, err := reportText(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	eng, err := opts.engine(ctx)
	if err != nil {
		return err
	}

	rec := eng.Run(ctx, ulid.Make().String(), triage.Input{Text: text, Type: triage.InputType(opts.InputType)})

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !opts.Compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func reportText(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(io.LimitReader(stdin, maxStdinReport+1))
	if err != nil {
		return "", fmt.Errorf("read report from stdin: %w", err)
	}
	if len(b) > maxStdinReport {
		return "", fmt.Errorf("report exceeds %d bytes", maxStdinReport)
	}
	return string(b), nil
}

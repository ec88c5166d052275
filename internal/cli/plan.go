package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/schemasync/internal/build"
	"github.com/roach88/schemasync/internal/remote/memory"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Database string
}

// PlanReport is the plan command output.
type PlanReport struct {
	RunID   string            `json:"run_id"`
	Entries []build.PlanEntry `json:"entries"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <declarations-dir>",
		Short: "Show which items a build would change",
		Long: `Fingerprint every declaration and compare it with the build cache.

No remote call is made and the cache is not modified. Items are reported as
new (never built), changed (fingerprint differs, or a dependency has never
been built) or unchanged (a build would skip them).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the cache database (overrides cache.path)")
	return cmd
}

func runPlan(opts *PlanOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Cache.Path = opts.Database
	}

	res, err := loadDeclarations(formatter, dir)
	if err != nil {
		return err
	}
	reg := build.NewRegistry()
	if err := res.Register(reg); err != nil {
		return WrapExitError(ExitCommandError, "failed to register declarations", err)
	}

	cache, err := snapshotCache(ctx, cfg.Cache.Path, cfg.CacheTarget())
	if err != nil {
		return err
	}

	// Plan never calls the remote service.
	o := build.New(memory.New(), cache, reg, build.WithPolicy(cfg.BuildPolicy()), build.WithLogger(logger))
	run := o.NewRun()
	defer run.Close(ctx)

	entries, planErr := run.Plan(ctx, res.Tasks())
	report := PlanReport{RunID: run.ID(), Entries: entries}

	var failure *CLIError
	if planErr != nil {
		failure = &CLIError{Code: ErrCodePlanFailed, Message: planErr.Error()}
	}
	if err := formatter.Result(run.ID(), report, failure, func(w io.Writer) { writePlan(w, entries) }); err != nil {
		return err
	}
	if planErr != nil {
		return WrapExitError(ExitFailure, "plan failed", planErr)
	}
	return nil
}

func writePlan(w io.Writer, entries []build.PlanEntry) {
	counts := map[build.Status]int{}
	for _, e := range entries {
		if e.Err != nil {
			fmt.Fprintf(w, "! %s: %v\n", e.Key, e.Err)
			continue
		}
		counts[e.Status]++
		mark := "="
		switch e.Status {
		case build.StatusNew:
			mark = "+"
		case build.StatusChanged:
			mark = "~"
		}
		line := fmt.Sprintf("%s %s", mark, e.Key)
		if len(e.Pending) > 0 {
			line += fmt.Sprintf(" (after %s)", strings.Join(e.Pending, ", "))
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d new, %d changed, %d unchanged\n",
		counts[build.StatusNew], counts[build.StatusChanged], counts[build.StatusUnchanged])
}

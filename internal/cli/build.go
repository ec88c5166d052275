package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/schemasync/internal/build"
	"github.com/roach88/schemasync/internal/remote"
	"github.com/roach88/schemasync/internal/remote/memory"
	"github.com/roach88/schemasync/internal/store"
)

// Item statuses reported by build.
const (
	ItemCached = "cached"
	ItemBuilt  = "built"
	ItemFailed = "failed"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Database     string
	Overwrite    bool
	SkipDeletion bool
	DryRun       bool
	Concurrency  int

	// Remote overrides the remote service (for testing). If nil, build
	// uses the HTTP client, or an in-memory service with --dry-run.
	Remote remote.Service

	// RunIDs overrides the run id generator (for testing).
	RunIDs build.IDGenerator
}

// ItemReport is the build outcome of one item.
type ItemReport struct {
	Key      string `json:"key"`
	Status   string `json:"status"`
	RemoteID string `json:"remote_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BuildReport is the build command output.
type BuildReport struct {
	RunID  string        `json:"run_id"`
	DryRun bool          `json:"dry_run,omitempty"`
	Items  []ItemReport  `json:"items"`
	Calls  []memory.Call `json:"calls,omitempty"`
}

// Counts returns the number of items per status.
func (r BuildReport) Counts() (cached, built, failed int) {
	for _, it := range r.Items {
		switch it.Status {
		case ItemCached:
			cached++
		case ItemBuilt:
			built++
		case ItemFailed:
			failed++
		}
	}
	return cached, built, failed
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	return newBuildCommand(&BuildOptions{RootOptions: rootOpts})
}

func newBuildCommand(opts *BuildOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <declarations-dir>",
		Short: "Reconcile declarations against the remote schema",
		Long: `Build every declared item type against the remote schema service.

Items whose fingerprint matches the build cache are skipped without any
remote call. Other items are created or updated and their fields synced;
the cache is written after each item succeeds and flushed when the run ends.

Example:
  schemasync build ./schema
  schemasync build --overwrite --db ./.schemasync/cache.db ./schema
  schemasync build --dry-run ./schema`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the cache database (overrides cache.path)")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "update and delete existing fields, not only create missing ones")
	cmd.Flags().BoolVar(&opts.SkipDeletion, "skip-deletion", false, "never delete remote fields missing from the declaration")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "build against an in-memory remote and report the calls a build would make")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "maximum items built at once (overrides build.concurrency)")

	return cmd
}

func runBuild(opts *BuildOptions, dir string, cmd *cobra.Command) error {
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
	flags := cmd.Flags()
	if flags.Changed("overwrite") {
		cfg.Build.OverwriteExisting = opts.Overwrite
	}
	if flags.Changed("skip-deletion") {
		cfg.Build.SkipDeletion = opts.SkipDeletion
	}
	if flags.Changed("concurrency") {
		cfg.Build.Concurrency = opts.Concurrency
	}
	if opts.Database != "" {
		cfg.Cache.Path = opts.Database
	}
	if err := cfg.Validate(opts.DryRun || opts.Remote != nil); err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	res, err := loadDeclarations(formatter, dir)
	if err != nil {
		return err
	}
	reg := build.NewRegistry()
	if err := res.Register(reg); err != nil {
		return WrapExitError(ExitCommandError, "failed to register declarations", err)
	}

	var cache store.Cache
	if opts.DryRun {
		if cache, err = snapshotCache(ctx, cfg.Cache.Path, cfg.CacheTarget()); err != nil {
			return err
		}
	} else {
		st, err := openCache(cfg.Cache.Path, cfg.CacheTarget())
		if err != nil {
			return err
		}
		cache = st
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Error("error closing cache", "error", err)
		}
	}()

	svc := opts.Remote
	var dry *memory.Service
	if svc == nil && opts.DryRun {
		dry = memory.New()
		svc = dry
	}
	if svc == nil {
		cc := cfg.ClientConfig()
		cc.Logger = logger
		svc = remote.NewHTTPClient(cc)
	}

	buildOpts := []build.Option{build.WithPolicy(cfg.BuildPolicy()), build.WithLogger(logger)}
	if opts.RunIDs != nil {
		buildOpts = append(buildOpts, build.WithRunIDGenerator(opts.RunIDs))
	}
	o := build.New(svc, cache, reg, buildOpts...)

	run := o.NewRun()
	logger.Info("build started", "run_id", run.ID(), "items", reg.Len(), "dry_run", opts.DryRun)
	outcomes, buildErr := run.BuildAll(ctx, res.Tasks())
	if err := run.Close(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to persist cache", err)
	}

	report := BuildReport{RunID: run.ID(), DryRun: opts.DryRun, Items: make([]ItemReport, 0, len(outcomes))}
	for _, oc := range outcomes {
		item := ItemReport{Key: oc.Task.Key(), RemoteID: oc.Result.RemoteID, Status: ItemBuilt}
		switch {
		case oc.Err != nil:
			item.Status = ItemFailed
			item.Error = oc.Err.Error()
		case oc.Result.FromCache:
			item.Status = ItemCached
		}
		report.Items = append(report.Items, item)
	}
	if dry != nil {
		report.Calls = dry.Calls()
	}

	cached, built, failed := report.Counts()
	logger.Info("build finished", "run_id", run.ID(), "cached", cached, "built", built, "failed", failed)

	var failure *CLIError
	if buildErr != nil {
		failure = &CLIError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("%d item(s) failed", failed)}
	}
	if err := formatter.Result(run.ID(), report, failure, func(w io.Writer) { writeBuildReport(w, report) }); err != nil {
		return err
	}
	if buildErr != nil {
		return WrapExitError(ExitFailure, "build failed", buildErr)
	}
	return nil
}

func writeBuildReport(w io.Writer, r BuildReport) {
	if r.DryRun {
		fmt.Fprintln(w, "Dry run: no remote changes were made.")
	}
	for _, it := range r.Items {
		switch it.Status {
		case ItemFailed:
			fmt.Fprintf(w, "\u2717 %s: %s\n", it.Key, it.Error)
		case ItemCached:
			fmt.Fprintf(w, "= %s (%s, cached)\n", it.Key, it.RemoteID)
		default:
			fmt.Fprintf(w, "\u2713 %s (%s)\n", it.Key, it.RemoteID)
		}
	}
	for _, c := range r.Calls {
		fmt.Fprintf(w, "  would call %s %s\n", c.Op, c.Key)
	}
	cached, built, failed := r.Counts()
	fmt.Fprintf(w, "%d built, %d cached, %d failed\n", built, cached, failed)
}

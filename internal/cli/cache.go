package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/schemasync/internal/store"
)

// CacheOptions holds flags for the cache commands.
type CacheOptions struct {
	*RootOptions
	Database string
}

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the build cache",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the cache database (overrides cache.path)")

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List cached items",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "clear",
		Short:         "Delete the configured target's cache entries, forcing the next build to sync every item",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "prune",
		Short:         "Delete entries written by an older fingerprint version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePrune(opts, cmd)
		},
	})

	return cmd
}

// CacheListing is the cache list output.
type CacheListing struct {
	Entries []store.Record `json:"entries"`
	Stale   int            `json:"stale"`
}

// cacheLocation returns the cache path and the remote target whose
// entries the commands operate on.
func cacheLocation(opts *CacheOptions) (path, target string, err error) {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return "", "", err
	}
	path = cfg.Cache.Path
	if opts.Database != "" {
		path = opts.Database
	}
	return path, cfg.CacheTarget(), nil
}

func withCache(opts *CacheOptions, cmd *cobra.Command, fn func(ctx context.Context, st *store.Store, f *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	path, target, err := cacheLocation(opts)
	if err != nil {
		return err
	}
	st, err := openCache(path, target)
	if err != nil {
		_ = formatter.Error(ErrCodeCache, err.Error(), nil)
		return err
	}
	defer st.Close()

	formatter.VerboseLog("Using cache %s for target %q", path, target)
	if err := fn(ctx, st, formatter); err != nil {
		_ = formatter.Error(ErrCodeCache, err.Error(), nil)
		return WrapExitError(ExitCommandError, "cache operation failed", err)
	}
	return nil
}

func runCacheList(opts *CacheOptions, cmd *cobra.Command) error {
	return withCache(opts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
		records, err := st.List(ctx)
		if err != nil {
			return err
		}
		stale, err := st.Stale(ctx)
		if err != nil {
			return err
		}
		listing := CacheListing{Entries: records, Stale: stale}
		return f.Result("", listing, nil, func(w io.Writer) { writeCacheListing(w, listing) })
	})
}

func writeCacheListing(w io.Writer, l CacheListing) {
	if len(l.Entries) == 0 {
		fmt.Fprintln(w, "Cache is empty.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tREMOTE ID\tFINGERPRINT")
		for _, r := range l.Entries {
			fp := r.Fingerprint
			if len(fp) > 12 {
				fp = fp[:12]
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Key, r.RemoteID, fp)
		}
		tw.Flush()
	}
	if l.Stale > 0 {
		fmt.Fprintf(w, "%d stale entr(ies) from an older version; run cache prune\n", l.Stale)
	}
}

func runCacheClear(opts *CacheOptions, cmd *cobra.Command) error {
	return withCache(opts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
		if err := st.Clear(ctx); err != nil {
			return err
		}
		if f.Format == "json" {
			return f.Success(map[string]bool{"cleared": true})
		}
		return f.Success("Cache cleared.")
	})
}

func runCachePrune(opts *CacheOptions, cmd *cobra.Command) error {
	return withCache(opts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
		n, err := st.Prune(ctx)
		if err != nil {
			return err
		}
		if f.Format == "json" {
			return f.Success(map[string]int64{"pruned": n})
		}
		return f.Success(fmt.Sprintf("Pruned %d stale entr(ies).", n))
	})
}

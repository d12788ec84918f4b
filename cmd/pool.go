package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/staff-portal/internal/facematch"
	"github.com/kozaktomas/staff-portal/internal/login"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Inspect the enrolled face pool",
}

var poolBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the enrolled pool and report what was loaded",
	Long: `Build the enrolled pool exactly as a login session does and print load
statistics. With DATABASE_URL set, descriptors are read from and written to
the descriptor cache, so this also warms the cache before the portal starts.`,
	Args: cobra.NoArgs,
	RunE: runPoolBuild,
}

var poolLookalikesCmd = &cobra.Command{
	Use:   "lookalikes",
	Short: "List enrolled identities whose reference faces are close",
	Long: `List pairs of enrolled identities whose reference descriptors are within
--max-distance of each other. Such pairs tend to produce ambiguous face
logins and usually call for a better enrollment image.`,
	Args: cobra.NoArgs,
	RunE: runPoolLookalikes,
}

func init() {
	rootCmd.AddCommand(poolCmd)
	poolCmd.AddCommand(poolBuildCmd)
	poolCmd.AddCommand(poolLookalikesCmd)

	poolBuildCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
	poolLookalikesCmd.Flags().Float64("max-distance", 0, "Distance limit (defaults to the accept threshold)")
	poolLookalikesCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

// buildPool loads every eligible enrollment with a progress bar on stdout.
func buildPool(cmd *cobra.Command, b *backends) (*facematch.Pool, login.LoadStats, error) {
	ctx := cmd.Context()
	opts, err := b.options()
	if err != nil {
		return nil, login.LoadStats{}, err
	}

	users, err := b.directory.ListUsers(ctx)
	if err != nil {
		return nil, login.LoadStats{}, fmt.Errorf("reading directory: %w", err)
	}

	loader := &login.PoolLoader{
		Images:    b.images,
		Extractor: b.extractor,
		Logger:    b.log,
	}
	if b.descriptors != nil {
		loader.Descriptors = b.descriptors
	}

	loadOpts := login.LoadOptions{Kind: opts.Kind, ExcludeBlocked: opts.ExcludeBlocked}
	if !mustGetBool(cmd, "no-progress") {
		var bar *progressbar.ProgressBar
		loadOpts.Progress = func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Describing faces"),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetItsString("faces"),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionFullWidth(),
				)
			}
			_ = bar.Set(done)
			if done == total {
				fmt.Println()
			}
		}
	}

	return loader.Load(ctx, users, loadOpts)
}

func printLoadStats(stats login.LoadStats) {
	fmt.Printf("Users:            %d\n", stats.Users)
	fmt.Printf("Enrolled:         %d\n", stats.Enrolled)
	fmt.Printf("No face image:    %d\n", stats.NoFaceImage)
	fmt.Printf("Skipped blocked:  %d\n", stats.SkippedBlocked)
	fmt.Printf("Duplicates:       %d\n", stats.Duplicates)
	fmt.Printf("Failed:           %d\n", stats.Failed)
	fmt.Printf("Cache hits:       %d\n", stats.CacheHits)
}

func runPoolBuild(cmd *cobra.Command, args []string) error {
	b, err := loadBackends(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer b.Close()

	_, stats, err := buildPool(cmd, b)
	if err != nil {
		return fmt.Errorf("building pool: %w", err)
	}
	printLoadStats(stats)
	return nil
}

func runPoolLookalikes(cmd *cobra.Command, args []string) error {
	b, err := loadBackends(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer b.Close()

	maxDistance := mustGetFloat64(cmd, "max-distance")
	if maxDistance <= 0 {
		maxDistance = b.cfg.Match.AcceptThreshold
	}

	pool, stats, err := buildPool(cmd, b)
	if err != nil {
		return fmt.Errorf("building pool: %w", err)
	}
	if stats.Enrolled < 2 {
		fmt.Printf("Only %d enrolled faces, nothing to compare.\n", stats.Enrolled)
		return nil
	}

	index, err := facematch.NewLookalikeIndex(pool)
	if err != nil {
		return err
	}
	pairs := index.Pairs(maxDistance)
	if len(pairs) == 0 {
		fmt.Printf("No lookalikes within %.4f among %d enrolled faces.\n", maxDistance, stats.Enrolled)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tLOOKALIKE\tDISTANCE")
	fmt.Fprintln(w, "--------\t---------\t--------")
	for _, p := range pairs {
		fmt.Fprintf(w, "%s\t%s\t%.4f\n", p.A, p.B, p.Distance)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d pairs within %.4f\n", len(pairs), maxDistance)
	return nil
}

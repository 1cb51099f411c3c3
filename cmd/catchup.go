package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/novelmirror/internal/dispatcher"
)

func newCatchUpCmd() *cobra.Command {
	var site string
	cmd := &cobra.Command{
		Use:   "catchup",
		Short: "Catch every stored series up with its source",
		Long: `Series on different hosts are caught up in parallel; series on the
same host run one after another so the host's pacing holds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatchUp(cmd, site)
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "only catch up series hosted on this domain")
	return cmd
}

func runCatchUp(cmd *cobra.Command, site string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	series, err := a.Store.ListSeries(cmd.Context())
	if err != nil {
		return fmt.Errorf("list series: %w", err)
	}
	if site != "" {
		series, err = dispatcher.FilterSite(series, site)
		if err != nil {
			return err
		}
	}

	results, err := a.Dispatcher.CatchUpAll(cmd.Context(), series)
	out := cmd.OutOrStdout()
	failed, total := 0, 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(out, "%d\t%s\tfailed: %v\n", r.Series.ID, r.Series.Title, r.Err)
		default:
			total += r.Count
			fmt.Fprintf(out, "%d\t%s\t%d new chapters\n", r.Series.ID, r.Series.Title, r.Count)
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d series, %d new chapters, %d failed\n", len(results), total, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d series failed to catch up", failed, len(results))
	}
	return nil
}

package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSeriesCmd() *cobra.Command {
	var books bool
	cmd := &cobra.Command{
		Use:   "series",
		Short: "List stored series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			series, err := a.Store.ListSeries(cmd.Context())
			if err != nil {
				return fmt.Errorf("list series: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if books {
				fmt.Fprintln(w, "ID\tTITLE\tBOOKS\tCHAPTERS\tURL")
			} else {
				fmt.Fprintln(w, "ID\tTITLE\tURL")
			}
			for _, s := range series {
				if !books {
					fmt.Fprintf(w, "%d\t%s\t%s\n", s.ID, s.Title, s.URL)
					continue
				}
				scaffold, err := a.Store.Scaffold(cmd.Context(), s.ID)
				if err != nil {
					return fmt.Errorf("read series %d: %w", s.ID, err)
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", s.ID, s.Title, len(scaffold.Books()), len(scaffold), s.URL)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&books, "books", false, "include book and chapter counts")
	return cmd
}

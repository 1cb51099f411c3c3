package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/novelmirror/internal/syncer"
)

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <series-url|series-id>...",
		Short: "Mirror new series or catch up stored ones",
		Long: `Each argument is a series URL or the numeric id of a stored series.
Unknown URLs are mirrored from the first chapter; known series are caught up.
A failing target does not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runLoad,
	}
}

func runLoad(cmd *cobra.Command, args []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var errs []error
	for _, arg := range args {
		target := syncer.ParseTarget(arg)
		count, isNew, err := a.Engine.Load(cmd.Context(), target)
		if err != nil {
			if cmd.Context().Err() != nil {
				return err
			}
			a.Logger.Error("load failed", zap.String("target", target.String()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		state := "updated"
		if isNew {
			state = "new"
		}
		fmt.Fprintf(out, "%s\t%s\t%d chapters\n", target, state, count)
	}
	return errors.Join(errs...)
}

package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func statsCommand(a *app) *cobra.Command {
	var days, top int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print database and correction statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return errors.Errorf("--days must not be negative, got %d", days)
			}
			if top <= 0 {
				return errors.Errorf("--top must be positive, got %d", top)
			}
			st, err := a.store()
			if err != nil {
				return err
			}
			var since time.Time
			if days > 0 {
				since = time.Now().AddDate(0, 0, -days)
			}
			stats, err := st.Statistics(cmd.Context(), since, top)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "daily activity window in days, 0 for all time")
	cmd.Flags().IntVar(&top, "top", 5, "number of editors to list")
	return cmd
}

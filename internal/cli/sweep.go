package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
)

// NewSweepCommand runs a single sweep and prints its statistics as JSON.
func NewSweepCommand(root *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep and print the stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return err
				}
				now = t
			}

			cfg, log, err := root.load()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.engine.RunSweep(cmd.Context(), now)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	cmd.Flags().StringVar(&at, "now", "", "evaluate the sweep as of this RFC 3339 time instead of the clock")
	return cmd
}

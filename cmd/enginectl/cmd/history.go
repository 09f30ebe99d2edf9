package cmd

import (
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/enginectl/internal/repository/history"
	"github.com/oshokin/enginectl/internal/service/common"
)

const (
	tabMinWidth = 0
	tabWidth    = 8
	tabPadding  = 2
)

func newHistoryCommand(g *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded operations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetContext(g.queryContext(cmd.Context()))

			return withEnvironment(cmd.Context(), g, func(env *common.Environment) error {
				filter := history.Filter{Limit: limit}
				if len(g.targets) == 1 {
					filter.Host = g.targets[0]
				}

				events, err := env.History.List(cmd.Context(), filter)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), tabMinWidth, tabWidth, tabPadding, ' ', 0)
				_, _ = fmt.Fprintln(w, "TIME\tHOST\tACTION\tVERSION\tOUTCOME\tACTOR\tDETAIL")

				for _, e := range events {
					if len(g.targets) > 1 && !slices.Contains(g.targets, e.Host) {
						continue
					}

					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						e.Timestamp.Local().Format(time.DateTime),
						e.Host, e.Action, e.Version, e.Outcome, e.Actor, e.Detail)
				}

				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "maximum number of events to show")

	return cmd
}

package cli

import (
	"os"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/textileio/minion/api/jobsd/client"
	"github.com/textileio/minion/cmd"
	"github.com/textileio/minion/dashboard"
)

var lsCmd = &cobra.Command{
	Use: "ls",
	Aliases: []string{
		"list",
	},
	Short: "List jobs",
	Long:  `Lists a page of jobs, newest first.`,
	Args:  cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		status := statusFlag(c)
		page, err := c.Flags().GetInt64("page")
		cmd.ErrCheck(err)
		limit, err := c.Flags().GetInt64("limit")
		cmd.ErrCheck(err)

		opts := []client.ListOption{client.WithPage(page), client.WithLimit(limit)}
		if status != "" {
			opts = append(opts, client.WithStatus(status))
		}
		if cl := config.Viper.GetString("client"); cl != "" {
			opts = append(opts, client.WithClient(cl))
		}

		ctx, cancel := requestCtx()
		defer cancel()
		res, err := jc.List(ctx, opts...)
		cmd.ErrCheck(err)

		(&dashboard.StatsBar{Stats: &res.Stats, Selected: status}).Render(os.Stdout)
		(&dashboard.ListView{Jobs: res.Results}).Render(os.Stdout, time.Now())
		cmd.Message("Found %d of %d jobs", aurora.White(len(res.Results)).Bold(), aurora.White(res.Stats.Count(status)).Bold())
	},
}

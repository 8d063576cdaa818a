package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/textileio/minion/api/jobsd/client"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/cmd"
	"github.com/textileio/minion/dashboard"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts",
	Long:  `Shows job counts per status for all clients, or for --client.`,
	Args:  cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		cl := config.Viper.GetString("client")
		opts := []client.ListOption{client.WithPage(1), client.WithLimit(1)}
		if cl != "" {
			opts = append(opts, client.WithClient(cl))
		}
		ctx, cancel := requestCtx()
		defer cancel()
		res, err := jc.List(ctx, opts...)
		cmd.ErrCheck(err)

		interactive, err := c.Flags().GetBool("interactive")
		cmd.ErrCheck(err)
		if !interactive {
			var data [][]string
			for _, b := range dashboard.Buckets(res.Stats) {
				data = append(data, []string{
					dashboard.StatusIcon(b.Status) + " " + b.Paint(b.Status).String(),
					fmt.Sprintf("%d", b.Count),
				})
			}
			data = append(data, []string{"finished", fmt.Sprintf("%d", res.Stats.Finished)})
			cmd.RenderTable([]string{"status", "jobs"}, data)
			cmd.Message("%d jobs in total", aurora.White(res.Stats.Total).Bold())
			return
		}

		buckets := dashboard.Buckets(res.Stats)
		prompt := promptui.Select{
			Label: "Select a bucket",
			Items: buckets,
			Templates: &promptui.SelectTemplates{
				Active:   fmt.Sprintf(`{{ "%s" | cyan }} {{ .Status | bold }} {{ .Count | faint }}`, promptui.IconSelect),
				Inactive: `{{ .Status }} {{ .Count | faint }}`,
				Selected: aurora.Sprintf(aurora.BrightBlack("> Selected {{ .Status | white | bold }}")),
			},
		}
		index, _, err := prompt.Run()
		if err != nil {
			cmd.End("")
		}

		var selected model.Status
		bar := &dashboard.StatsBar{
			Stats:    &res.Stats,
			OnSelect: func(s model.Status) { selected = s },
		}
		cmd.ErrCheck(bar.Select(buckets[index].Status))
		bar.Selected = selected

		opts = []client.ListOption{client.WithPage(1), client.WithStatus(selected)}
		if cl != "" {
			opts = append(opts, client.WithClient(cl))
		}
		ctx2, cancel2 := requestCtx()
		defer cancel2()
		list, err := jc.List(ctx2, opts...)
		cmd.ErrCheck(err)
		bar.Render(os.Stdout)
		(&dashboard.ListView{Jobs: list.Results}).Render(os.Stdout, time.Now())
	},
}

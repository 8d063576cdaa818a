package cli

import (
	"fmt"

	"github.com/logrusorgru/aurora"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/cmd"
)

var clearCmd = &cobra.Command{
	Use:   "clear [pending|cancelled|failed]",
	Short: "Clear a status bucket",
	Long: `Cancels every pending job, or archives every cancelled or failed job.

Archived jobs are kept by the backend but no longer shown.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(model.StatusPending), string(model.StatusCancelled), string(model.StatusFailed)},
	Run: func(c *cobra.Command, args []string) {
		status := model.Status(args[0])
		var hard bool
		var verb, done string
		switch status {
		case model.StatusPending:
			verb, done = "Cancel", "Cancelled"
		case model.StatusCancelled, model.StatusFailed:
			hard = true
			verb, done = "Archive", "Archived"
		default:
			cmd.Fatal(fmt.Errorf("can only clear pending, cancelled, or failed jobs"))
		}

		yes, err := c.Flags().GetBool("yes")
		cmd.ErrCheck(err)
		if !yes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("%s every %s job", verb, status),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				cmd.End("")
			}
		}

		ctx, cancel := requestCtx()
		defer cancel()
		n, err := jc.Delete(ctx, string(status), hard)
		cmd.ErrCheck(err)
		cmd.Success("%s %d %s jobs", done, aurora.White(n).Bold(), status)
	},
}

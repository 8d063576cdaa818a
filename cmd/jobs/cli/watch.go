package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/textileio/minion/cmd"
	"github.com/textileio/minion/dashboard"
	"github.com/textileio/minion/dashboard/query"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch jobs",
	Long: `Shows a live dashboard of jobs that refreshes on a fixed interval.

Type a command and press enter to change filters or act on a job.`,
	Args: cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		status := statusFlag(c)

		q := query.New(query.ClientAPI(jc), query.NewCache(query.WithFetchTimeout(config.Viper.GetDuration("timeout"))))
		shell, err := dashboard.NewShell(dashboard.Config{
			Queries:     q,
			Out:         os.Stdout,
			In:          os.Stdin,
			Refresh:     config.Viper.GetDuration("refresh"),
			Client:      config.Viper.GetString("client"),
			Status:      status,
			ClearScreen: true,
		})
		cmd.ErrCheck(err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go cmd.HandleInterrupt(cancel)
		cmd.ErrCheck(shell.Run(ctx))
		q.Wait()
	},
}

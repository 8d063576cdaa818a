package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/textileio/minion/api/jobsd/client"
	"github.com/textileio/minion/cmd"
	"github.com/textileio/minion/dashboard"
)

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a job",
	Long:  `Shows a job with its attempt history and stack traces.`,
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		ctx, cancel := requestCtx()
		defer cancel()
		j, err := jc.Get(ctx, args[0])
		if errors.Is(err, client.ErrNotFound) {
			cmd.Fatal(fmt.Errorf("job %s not found", args[0]))
		}
		cmd.ErrCheck(err)
		fmt.Println()
		(&dashboard.DetailView{Job: j}).Render(os.Stdout, time.Now())
		fmt.Println()
	},
}

package cli

import (
	"errors"
	"fmt"

	"github.com/caarlos0/spin"
	"github.com/spf13/cobra"
	"github.com/textileio/minion/api/jobsd/client"
	"github.com/textileio/minion/cmd"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [kind]",
	Short: "Enqueue a job",
	Long:  `Asks the backend to run a job of the given kind for --client.`,
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		cl := config.Viper.GetString("client")
		if cl == "" {
			cmd.Fatal(fmt.Errorf("a client is required (use --client)"))
		}
		queue, err := c.Flags().GetString("queue")
		cmd.ErrCheck(err)
		jargs, err := c.Flags().GetString("args")
		cmd.ErrCheck(err)
		var opts []client.EnqueueOption
		if queue != "" {
			opts = append(opts, client.WithQueue(queue))
		}
		if jargs != "" {
			opts = append(opts, client.WithArgs(jargs))
		}

		s := spin.New("%s Enqueueing job")
		s.Start()
		ctx, cancel := requestCtx()
		defer cancel()
		id, err := jc.Enqueue(ctx, args[0], cl, opts...)
		s.Stop()
		cmd.ErrCheck(err)
		cmd.Success("Enqueued job %s", jobLabel(id))
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a job",
	Long:  `Cancels a job. The backend decides whether a running job can stop.`,
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		ctx, cancel := requestCtx()
		defer cancel()
		checkNotFound(jc.Cancel(ctx, args[0]), args[0])
		cmd.Success("Cancelled job %s", jobLabel(args[0]))
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a job",
	Long:  `Cancels a job, or archives it with --hard.`,
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		hard, err := c.Flags().GetBool("hard")
		cmd.ErrCheck(err)
		ctx, cancel := requestCtx()
		defer cancel()
		_, err = jc.Delete(ctx, args[0], hard)
		checkNotFound(err, args[0])
		if hard {
			cmd.Success("Archived job %s", jobLabel(args[0]))
		} else {
			cmd.Success("Cancelled job %s", jobLabel(args[0]))
		}
	},
}

func checkNotFound(err error, id string) {
	if errors.Is(err, client.ErrNotFound) {
		cmd.Fatal(fmt.Errorf("job %s not found", id))
	}
	cmd.ErrCheck(err)
}

package cli

import (
	"context"
	"fmt"
	"sync/atomic"

	pb "github.com/cheggaaa/pb/v3"
	"github.com/logrusorgru/aurora"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/textileio/minion/api/jobsd/client"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/cmd"
	"golang.org/x/sync/errgroup"
)

// bulkPageSize is the largest page the api serves.
const bulkPageSize = 1000

var requeueCmd = &cobra.Command{
	Use:   "requeue [id]",
	Short: "Requeue jobs",
	Long:  `Requeues a job, or every job with --status.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(c *cobra.Command, args []string) {
		status := statusFlag(c)
		if len(args) == 1 {
			if status != "" {
				cmd.Fatal(fmt.Errorf("pass either a job id or --status"))
			}
			ctx, cancel := requestCtx()
			defer cancel()
			checkNotFound(jc.Requeue(ctx, args[0]), args[0])
			cmd.Success("Requeued job %s", jobLabel(args[0]))
			return
		}
		if status == "" {
			cmd.Fatal(fmt.Errorf("pass a job id or --status"))
		}

		ctx, cancel := requestCtx()
		defer cancel()
		ids, err := listIDs(ctx, status, config.Viper.GetString("client"))
		cmd.ErrCheck(err)
		if len(ids) == 0 {
			cmd.End("No %s jobs", status)
		}

		yes, err := c.Flags().GetBool("yes")
		cmd.ErrCheck(err)
		if !yes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("Requeue %d %s jobs", len(ids), status),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				cmd.End("")
			}
		}

		concurrency, err := c.Flags().GetInt("concurrency")
		cmd.ErrCheck(err)
		failed := requeueAll(context.Background(), ids, concurrency)
		if failed > 0 {
			cmd.Warn("Failed to requeue %d jobs", failed)
		}
		cmd.Success("Requeued %d jobs", aurora.White(len(ids)-failed).Bold())
	},
}

// listIDs pages through every job with status.
func listIDs(ctx context.Context, status model.Status, cl string) ([]string, error) {
	var ids []string
	for page := int64(1); ; page++ {
		opts := []client.ListOption{
			client.WithPage(page),
			client.WithLimit(bulkPageSize),
			client.WithStatus(status),
		}
		if cl != "" {
			opts = append(opts, client.WithClient(cl))
		}
		res, err := jc.List(ctx, opts...)
		if err != nil {
			return nil, err
		}
		for _, j := range res.Results {
			ids = append(ids, j.ID)
		}
		if len(res.Results) < bulkPageSize {
			return ids, nil
		}
	}
}

// requeueAll requeues ids with at most concurrency requests in flight and
// returns how many failed.
func requeueAll(ctx context.Context, ids []string, concurrency int) int {
	if concurrency < 1 {
		concurrency = 1
	}
	bar := pb.StartNew(len(ids))
	defer bar.Finish()

	var failed int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			defer bar.Increment()
			rctx, cancel := context.WithTimeout(ctx, config.Viper.GetDuration("timeout"))
			defer cancel()
			if err := jc.Requeue(rctx, id); err != nil {
				atomic.AddInt64(&failed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failed)
}

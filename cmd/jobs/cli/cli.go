package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/minion/api/jobsd/client"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/cmd"
	"github.com/textileio/minion/util"
)

const Name = "jobs"

var (
	config = &cmd.Config{
		Viper: viper.New(),
		Dir:   "." + Name,
		Name:  "config",
		Flags: map[string]cmd.Flag{
			"api": {
				Key:      "api",
				DefValue: "http://127.0.0.1:9010",
			},
			"timeout": {
				Key:      "timeout",
				DefValue: time.Minute,
			},
			"refresh": {
				Key:      "refresh",
				DefValue: time.Second * 5,
			},
			"client": {
				Key:      "client",
				DefValue: "",
			},
			"debug": {
				Key:      "log.debug",
				DefValue: false,
			},
			"logFile": {
				Key:      "log.file",
				DefValue: "",
			},
		},
		EnvPre: "JOBS",
		Global: true,
	}

	jc *client.Client
)

func Init(rootCmd *cobra.Command) {
	rootCmd.AddCommand(lsCmd, statsCmd, showCmd, enqueueCmd, cancelCmd, deleteCmd, requeueCmd, clearCmd, watchCmd)

	rootCmd.PersistentFlags().StringVar(
		&config.File,
		"config",
		"",
		"Config file (default ${HOME}/"+config.Dir+"/"+config.Name+".yml)")
	rootCmd.PersistentFlags().String(
		"api",
		config.Flags["api"].DefValue.(string),
		"Jobs API target")
	rootCmd.PersistentFlags().Duration(
		"timeout",
		config.Flags["timeout"].DefValue.(time.Duration),
		"Request timeout")
	rootCmd.PersistentFlags().Duration(
		"refresh",
		config.Flags["refresh"].DefValue.(time.Duration),
		"Dashboard refresh interval")
	rootCmd.PersistentFlags().String(
		"client",
		config.Flags["client"].DefValue.(string),
		"Only show jobs enqueued by this client")
	rootCmd.PersistentFlags().BoolP(
		"debug",
		"d",
		config.Flags["debug"].DefValue.(bool),
		"Enable debug logging")
	rootCmd.PersistentFlags().String(
		"logFile",
		config.Flags["logFile"].DefValue.(string),
		"Write logs to file")
	cmd.ErrCheck(cmd.BindFlags(config.Viper, rootCmd, config.Flags))

	lsCmd.Flags().StringP("status", "s", "", "Only list jobs with this status")
	lsCmd.Flags().Int64P("page", "p", 1, "Page to list")
	lsCmd.Flags().Int64P("limit", "l", 25, "Page size")

	statsCmd.Flags().BoolP("interactive", "i", false, "Pick a bucket and list its jobs")

	enqueueCmd.Flags().StringP("queue", "q", "", "Queue to place the job in")
	enqueueCmd.Flags().StringP("args", "a", "", "Job arguments (JSON)")

	deleteCmd.Flags().Bool("hard", false, "Archive the job instead of cancelling it")

	requeueCmd.Flags().StringP("status", "s", "", "Requeue every job with this status")
	requeueCmd.Flags().Int("concurrency", 8, "Maximum concurrent requeue requests")
	requeueCmd.Flags().BoolP("yes", "y", false, "Skips the confirmation prompt if true")

	clearCmd.Flags().BoolP("yes", "y", false, "Skips the confirmation prompt if true")

	watchCmd.Flags().StringP("status", "s", "", "Start filtered to this status")
}

func Config() *cmd.Config {
	return config
}

func SetClient(c *client.Client) {
	jc = c
}

// SetupLogging writes logs to the configured file and raises the dashboard
// loggers to debug when asked.
func SetupLogging() {
	if logFile := config.Viper.GetString("log.file"); logFile != "" {
		cmd.ErrCheck(cmd.SetupDefaultLoggingConfig(logFile))
	}
	if config.Viper.GetBool("log.debug") {
		cmd.ErrCheck(util.SetLogLevels(map[string]string{
			"dashboard":       "debug",
			"dashboard.query": "debug",
		}))
	}
}

func requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), config.Viper.GetDuration("timeout"))
}

func statusFlag(c *cobra.Command) model.Status {
	str, err := c.Flags().GetString("status")
	cmd.ErrCheck(err)
	status := model.Status(str)
	if status != "" && !status.Valid() {
		names := make([]string, len(model.Statuses))
		for i, s := range model.Statuses {
			names[i] = string(s)
		}
		cmd.Fatal(fmt.Errorf("status must be one of: %s", strings.Join(names, ", ")))
	}
	return status
}

func jobLabel(id string) string {
	return aurora.White(id).Bold().String()
}

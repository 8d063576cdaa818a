package main

import (
	"github.com/spf13/cobra"
	"github.com/textileio/minion/api/jobsd/client"
	"github.com/textileio/minion/cmd"
	jobs "github.com/textileio/minion/cmd/jobs/cli"
)

func init() {
	cobra.OnInitialize(cmd.InitConfig(jobs.Config()))
	cmd.InitConfigCmd(rootCmd, jobs.Config().Viper, jobs.Config().Dir)
	jobs.Init(rootCmd)
}

func main() {
	cmd.ErrCheck(rootCmd.Execute())
}

var rootCmd = &cobra.Command{
	Use:   jobs.Name,
	Short: "Jobs client",
	Long: `The minion jobs client.

Lists and manages jobs on a minion jobs API.`,
	PersistentPreRun: func(c *cobra.Command, args []string) {
		conf := jobs.Config()
		conf.Viper.SetConfigType("yaml")
		cmd.ExpandConfigVars(conf.Viper, conf.Flags)

		jobs.SetupLogging()

		target := conf.Viper.GetString("api")
		cl, err := client.NewClient(target, client.WithTimeout(conf.Viper.GetDuration("timeout")))
		cmd.ErrCheck(err)
		jobs.SetClient(cl)
	},
	Args: cobra.ExactArgs(0),
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/textileio/minion/api/jobsd/service"
	"github.com/textileio/minion/cmd"
	"github.com/textileio/minion/util"
)

const daemonName = "jobsd"

var (
	log = logging.Logger(daemonName)

	config = &cmd.Config{
		Viper: viper.New(),
		Dir:   "." + daemonName,
		Name:  "config",
		Flags: map[string]cmd.Flag{
			"debug": {
				Key:      "log.debug",
				DefValue: false,
			},
			"logFile": {
				Key:      "log.file",
				DefValue: "", // no log file
			},

			// Addr config
			"addrApi": {
				Key:      "addr.api",
				DefValue: "/ip4/127.0.0.1/tcp/9010",
			},
			"addrMongoUri": {
				Key:      "addr.mongo_uri",
				DefValue: "mongodb://127.0.0.1:27017",
			},
			"addrMongoName": {
				Key:      "addr.mongo_name",
				DefValue: "minion_development",
			},
			"mongoCollection": {
				Key:      "mongo.collection",
				DefValue: "jobs",
			},

			// Gateway config
			"gatewayStaticDir": {
				Key:      "gateway.static_dir",
				DefValue: "",
			},

			// Cleanup config
			"cleanupSchedule": {
				Key:      "cleanup.schedule",
				DefValue: service.DefaultCleanupSchedule,
			},
			"cleanupKeepFinished": {
				Key:      "cleanup.keep_finished",
				DefValue: time.Hour * 2,
			},
			"cleanupKeepFailed": {
				Key:      "cleanup.keep_failed",
				DefValue: time.Hour * 48,
			},

			// Runner config
			"runnerConcurrency": {
				Key:      "runner.concurrency",
				DefValue: 5,
			},
			"runnerPollInterval": {
				Key:      "runner.poll_interval",
				DefValue: time.Second,
			},
			"runnerTimeout": {
				Key:      "runner.timeout",
				DefValue: time.Minute * 10,
			},

			"shutdownWait": {
				Key:      "shutdown.wait",
				DefValue: time.Second * 5,
			},
		},
		EnvPre: "JOBSD",
		Global: true,
	}
)

func init() {
	cobra.OnInitialize(cmd.InitConfig(config))
	cmd.InitConfigCmd(rootCmd, config.Viper, config.Dir)

	rootCmd.PersistentFlags().StringVar(
		&config.File,
		"config",
		"",
		"Config file (default ${HOME}/"+config.Dir+"/"+config.Name+".yml)")
	rootCmd.PersistentFlags().BoolP(
		"debug",
		"d",
		config.Flags["debug"].DefValue.(bool),
		"Enable debug logging")
	rootCmd.PersistentFlags().String(
		"logFile",
		config.Flags["logFile"].DefValue.(string),
		"Write logs to file")

	// Address settings
	rootCmd.PersistentFlags().String(
		"addrApi",
		config.Flags["addrApi"].DefValue.(string),
		"Jobs API listen address")
	rootCmd.PersistentFlags().String(
		"addrMongoUri",
		config.Flags["addrMongoUri"].DefValue.(string),
		"MongoDB connection URI")
	rootCmd.PersistentFlags().String(
		"addrMongoName",
		config.Flags["addrMongoName"].DefValue.(string),
		"MongoDB database name")
	rootCmd.PersistentFlags().String(
		"mongoCollection",
		config.Flags["mongoCollection"].DefValue.(string),
		"MongoDB jobs collection")

	// Gateway settings
	rootCmd.PersistentFlags().String(
		"gatewayStaticDir",
		config.Flags["gatewayStaticDir"].DefValue.(string),
		"Directory of dashboard assets served at the root")

	// Cleanup settings
	rootCmd.PersistentFlags().String(
		"cleanupSchedule",
		config.Flags["cleanupSchedule"].DefValue.(string),
		"Cron schedule (with seconds) of old job cleanup")
	rootCmd.PersistentFlags().Duration(
		"cleanupKeepFinished",
		config.Flags["cleanupKeepFinished"].DefValue.(time.Duration),
		"How long finished jobs are kept (0 keeps forever)")
	rootCmd.PersistentFlags().Duration(
		"cleanupKeepFailed",
		config.Flags["cleanupKeepFailed"].DefValue.(time.Duration),
		"How long failed jobs are kept (0 keeps forever)")

	// Runner settings
	rootCmd.PersistentFlags().Int(
		"runnerConcurrency",
		config.Flags["runnerConcurrency"].DefValue.(int),
		"Number of jobs run at once")
	rootCmd.PersistentFlags().Duration(
		"runnerPollInterval",
		config.Flags["runnerPollInterval"].DefValue.(time.Duration),
		"How often pending jobs are claimed")
	rootCmd.PersistentFlags().Duration(
		"runnerTimeout",
		config.Flags["runnerTimeout"].DefValue.(time.Duration),
		"Default job timeout")

	rootCmd.PersistentFlags().Duration(
		"shutdownWait",
		config.Flags["shutdownWait"].DefValue.(time.Duration),
		"How long to wait for in-flight requests on shutdown")

	err := cmd.BindFlags(config.Viper, rootCmd, config.Flags)
	cmd.ErrCheck(err)
}

func main() {
	cmd.ErrCheck(rootCmd.Execute())
}

var rootCmd = &cobra.Command{
	Use:   daemonName,
	Short: "Jobs daemon",
	Long:  `The minion jobs API daemon.`,
	PersistentPreRun: func(c *cobra.Command, args []string) {
		config.Viper.SetConfigType("yaml")
		cmd.ExpandConfigVars(config.Viper, config.Flags)

		if config.Viper.GetBool("log.debug") {
			err := util.SetLogLevels(map[string]string{
				daemonName: "debug",
			})
			cmd.ErrCheck(err)
		}
	},
	Run: func(c *cobra.Command, args []string) {
		settings, err := json.MarshalIndent(config.Viper.AllSettings(), "", "  ")
		cmd.ErrCheck(err)
		log.Debugf("loaded config: %s", string(settings))

		logFile := config.Viper.GetString("log.file")
		if logFile != "" {
			err = cmd.SetupDefaultLoggingConfig(logFile)
			cmd.ErrCheck(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		api, err := service.NewService(ctx, service.Config{
			ListenAddr: cmd.AddrFromStr(config.Viper.GetString("addr.api")),
			Debug:      config.Viper.GetBool("log.debug"),

			DBURI:        config.Viper.GetString("addr.mongo_uri"),
			DBName:       config.Viper.GetString("addr.mongo_name"),
			DBCollection: config.Viper.GetString("mongo.collection"),

			StaticDir: config.Viper.GetString("gateway.static_dir"),

			CleanupSchedule: config.Viper.GetString("cleanup.schedule"),
			KeepFinished:    config.Viper.GetDuration("cleanup.keep_finished"),
			KeepFailed:      config.Viper.GetDuration("cleanup.keep_failed"),

			Concurrency:  config.Viper.GetInt("runner.concurrency"),
			PollInterval: config.Viper.GetDuration("runner.poll_interval"),
			JobTimeout:   config.Viper.GetDuration("runner.timeout"),

			ShutdownWait: config.Viper.GetDuration("shutdown.wait"),
		})
		cmd.ErrCheck(err)

		err = api.Start()
		cmd.ErrCheck(err)

		fmt.Printf("Welcome to minion! Jobs API listening at %s\n", api.Addr())

		cmd.HandleInterrupt(func() {
			if err := api.Stop(); err != nil {
				log.Errorf("stopping service: %s", err)
			}
		})
	},
}

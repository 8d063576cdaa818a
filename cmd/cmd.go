package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
)

// Timeout is the default timeout for a single CLI request.
var Timeout = time.Minute

// Flag describes a config key and its default value.
type Flag struct {
	Key      string
	DefValue interface{}
}

// Config is a viper-backed config bound to a set of persistent flags.
type Config struct {
	Viper *viper.Viper
	// File overrides the config search when set.
	File string
	// Dir is the config directory name, searched upwards from the working
	// directory and, when Global is set, in the home directory.
	Dir    string
	Name   string
	Flags  map[string]Flag
	EnvPre string
	Global bool
}

// HandleInterrupt blocks until the process receives SIGINT or SIGTERM and then
// calls stop.
func HandleInterrupt(stop func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	Message("Gracefully stopping... (press Ctrl+C again to force)")
	go func() {
		<-quit
		Fatal(errForced)
	}()
	stop()
	Message("Stopped")
}

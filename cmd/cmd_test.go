package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "Job not found", ErrorMessage(errors.New("job not found")))
	assert.Equal(t, "Unavailable", ErrorMessage(errors.New("unavailable")))
	assert.Equal(t, "API down", ErrorMessage(errors.New("API down")))
}

func TestBindFlagsAndExpand(t *testing.T) {
	v := viper.New()
	root := &cobra.Command{Use: "test"}
	flags := map[string]Flag{
		"api": {Key: "api", DefValue: "http://127.0.0.1:9010"},
		"dir": {Key: "paths.dir", DefValue: "${JOBS_TEST_HOME}/jobs"},
	}
	root.PersistentFlags().String("api", flags["api"].DefValue.(string), "")
	root.PersistentFlags().String("dir", flags["dir"].DefValue.(string), "")
	require.NoError(t, BindFlags(v, root, flags))

	require.NoError(t, os.Setenv("JOBS_TEST_HOME", "/tmp/home"))
	defer os.Unsetenv("JOBS_TEST_HOME")
	ExpandConfigVars(v, flags)

	assert.Equal(t, "http://127.0.0.1:9010", v.GetString("api"))
	assert.Equal(t, "/tmp/home/jobs", v.GetString("paths.dir"))
}

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".jobs"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".jobs", "config.yml"), []byte("api: http://jobs.local\n"), 0644))

	conf := &Config{
		Viper:  viper.New(),
		File:   filepath.Join(dir, ".jobs", "config.yml"),
		Dir:    ".jobs",
		Name:   "config",
		EnvPre: "JOBSTEST",
	}
	conf.Viper.SetConfigType("yaml")
	InitConfig(conf)()
	assert.Equal(t, "http://jobs.local", conf.Viper.GetString("api"))
}

func TestRenderTableTo(t *testing.T) {
	var buf bytes.Buffer
	RenderTableTo(&buf, []string{"id", "status"}, [][]string{{"a", "failed"}, {"b", "pending"}})
	out := buf.String()
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "pending")
}

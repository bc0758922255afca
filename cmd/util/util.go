// Package util holds the viper and cobra glue shared by the topicflow commands.
package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// MustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func MustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func MustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// MustBindFlag binds the viper key of a flag of the same name and, when envs are given,
// the environment variables that may set it.
func MustBindFlag(flags *pflag.FlagSet, name string, envs ...string) {
	flag := flags.Lookup(name)
	if flag == nil {
		panic("unknown flag: " + name)
	}
	MustBindPFlag(name, flag)
	if len(envs) > 0 {
		MustBindEnv(append([]string{name}, envs...)...)
	}
}

// PrepareTempConfigDir points $HOME at a temporary directory and returns its .topicflow dir.
// It fails the test when a system wide config would shadow the one under test.
func PrepareTempConfigDir(t *testing.T) string {
	_, err := os.Stat("/etc/topicflow/config.yaml")
	require.ErrorIs(t, err, os.ErrNotExist, "Config file at /etc/topicflow/config.yaml would disturb test result.")

	homedir := t.TempDir()
	t.Setenv("HOME", homedir)

	confdir := filepath.Join(homedir, ".topicflow")
	require.NoError(t, os.Mkdir(confdir, 0750))

	return confdir
}

func PrepareTempConfigFile(t *testing.T, config string) {
	confdir := PrepareTempConfigDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(confdir, "config.yaml"), []byte(config), 0o600))
}

// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// config.yaml keys that seed the flags of the commands other than run.
var configSeededFlags = map[string]string{
	"datastore-engine": "datastore.engine",
	"datastore-uri":    "datastore.uri",
	"dir":              "meta.dir",
}

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with TOPICFLOW, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("TOPICFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/topicflow", "$HOME/.topicflow", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err == nil {
		for flag, key := range configSeededFlags {
			if viper.IsSet(key) {
				viper.SetDefault(flag, viper.Get(key))
			}
		}
	}

	return &cobra.Command{
		Use:   "topicflow",
		Short: "A multi-tenant data pipeline engine",
		Long: `A multi-tenant data pipeline engine.

Writes to a topic trigger the pipelines declared for it. Pipelines read, transform and write other
topics, and every write they make triggers the next round of pipelines until nothing changes.`,
		SilenceUsage: true,
	}
}

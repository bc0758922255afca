package main

import (
	"os"

	"github.com/topicflow/topicflow/cmd"
	"github.com/topicflow/topicflow/cmd/migrate"
	"github.com/topicflow/topicflow/cmd/run"
	"github.com/topicflow/topicflow/cmd/validate"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	runCmd := run.NewRunCommand()
	rootCmd.AddCommand(runCmd)

	migrateCmd := migrate.NewMigrateCommand()
	rootCmd.AddCommand(migrateCmd)

	validateCmd := validate.NewValidateCommand()
	rootCmd.AddCommand(validateCmd)

	versionCmd := cmd.NewVersionCommand()
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

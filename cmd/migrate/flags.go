package migrate

import (
	"github.com/spf13/cobra"

	"github.com/topicflow/topicflow/cmd/util"
)

// bindRunFlags exposes the migrate flags to viper so they can come from the environment too.
func bindRunFlags(command *cobra.Command, _ []string) {
	flags := command.Flags()

	util.MustBindFlag(flags, datastoreEngineFlag, "TOPICFLOW_DATASTORE_ENGINE")
	util.MustBindFlag(flags, datastoreURIFlag, "TOPICFLOW_DATASTORE_URI")
	util.MustBindFlag(flags, datastoreUsernameFlag, "TOPICFLOW_DATASTORE_USERNAME")
	util.MustBindFlag(flags, datastorePasswordFlag, "TOPICFLOW_DATASTORE_PASSWORD")
	util.MustBindFlag(flags, versionFlag)
	util.MustBindFlag(flags, timeoutFlag)
	util.MustBindFlag(flags, verboseMigrationFlag)
	util.MustBindFlag(flags, statusFlag)
}

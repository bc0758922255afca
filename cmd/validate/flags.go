package validate

import (
	"github.com/spf13/cobra"

	"github.com/topicflow/topicflow/cmd/util"
)

func bindRunFlags(command *cobra.Command, _ []string) {
	util.MustBindFlag(command.Flags(), dirFlag, "TOPICFLOW_META_DIR")
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/topicflow/topicflow/internal/build"
)

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`

	// SchemaRevision is the oldest datastore schema revision this binary runs against.
	SchemaRevision int `json:"schema_revision"`
}

func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the topicflow build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionInfo{
				Version:        build.Version,
				Commit:         build.Commit,
				Date:           build.Date,
				SchemaRevision: build.MinimumSupportedDatastoreSchemaRevision,
			}
			out := cmd.OutOrStdout()

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return json.NewEncoder(out).Encode(info)
			}
			_, err := fmt.Fprintf(out, "%s version %s date %s commit id %s\n", build.ProjectName, info.Version, info.Date, info.Commit)
			return err
		},
	}
	cmd.Flags().Bool("json", false, "print the build information as json")

	return cmd
}

package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/topicflow/topicflow/internal/build"
)

func TestVersionCommand(t *testing.T) {
	run := func(t *testing.T, args ...string) string {
		rootCmd := NewRootCommand()
		rootCmd.AddCommand(NewVersionCommand())

		out := &bytes.Buffer{}
		rootCmd.SetOut(out)
		rootCmd.SetArgs(append([]string{"version"}, args...))
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	t.Run("text", func(t *testing.T) {
		require.Equal(t, "topicflow version dev date unknown commit id none\n", run(t))
	})

	t.Run("json", func(t *testing.T) {
		var info versionInfo
		require.NoError(t, json.Unmarshal([]byte(run(t, "--json")), &info))
		require.Equal(t, build.Version, info.Version)
		require.Equal(t, build.MinimumSupportedDatastoreSchemaRevision, info.SchemaRevision)
	})
}

// Package build carries the version information injected at link time.
package build

// Overridden with -ldflags "-X github.com/topicflow/topicflow/internal/build.Version=..." by the release build.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// ProjectName is the name used for the binary, the config directory and the env prefix.
const ProjectName = "topicflow"

// MinimumSupportedDatastoreSchemaRevision is the lowest migration revision the datastores run against.
const MinimumSupportedDatastoreSchemaRevision = 1

// Package validate contains the command to compile every pipeline of a meta directory.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/topicflow/topicflow/internal/pipelinecache"
	"github.com/topicflow/topicflow/pkg/meta"
	"github.com/topicflow/topicflow/pkg/meta/file"
)

const dirFlag = "dir"

// ErrInvalidPipelines is returned when at least one pipeline fails to compile.
var ErrInvalidPipelines = errors.New("invalid pipelines found")

func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile every pipeline of a meta directory",
		Long:  "Load the topics and pipelines of every tenant under a meta directory, compile each pipeline and print the results as JSON.",
		RunE:  runValidate,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.String(dirFlag, "./meta", "the meta directory, laid out as <dir>/<tenant>/{topics,pipelines}/*.yaml")

	// NOTE: if you add a new flag here, update the function below, too

	cmd.PreRun = bindRunFlags

	return cmd
}

type validationResult struct {
	TenantID   string `json:"tenant_id"`
	PipelineID string `json:"pipeline_id"`
	Enabled    bool   `json:"enabled"`
	Error      string `json:"error,omitempty"`
}

func runValidate(cmd *cobra.Command, _ []string) error {
	dir := viper.GetString(dirFlag)

	reader, err := file.New(dir, nil)
	if err != nil {
		return err
	}

	results, err := ValidateAllPipelines(cmd.Context(), reader)
	if err != nil {
		return err
	}

	marshalled, err := json.MarshalIndent(results, " ", "    ")
	if err != nil {
		return fmt.Errorf("error gathering validation results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(marshalled))

	for _, r := range results {
		if r.Error != "" {
			return ErrInvalidPipelines
		}
	}
	return nil
}

type listingReader interface {
	meta.Reader
	meta.Lister
}

// ValidateAllPipelines lists all tenants and then, for each tenant, lists all pipelines.
// Then it compiles each pipeline.
func ValidateAllPipelines(ctx context.Context, reader listingReader) ([]validationResult, error) {
	resolver, err := pipelinecache.NewResolver(reader)
	if err != nil {
		return nil, err
	}
	defer resolver.Close()

	tenants, err := reader.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading tenants: %w", err)
	}

	results := make([]validationResult, 0)
	for _, tenantID := range tenants {
		pipelines, err := reader.ListPipelines(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("error reading pipelines of tenant '%s': %w", tenantID, err)
		}

		for _, p := range pipelines {
			result := validationResult{
				TenantID:   tenantID,
				PipelineID: p.PipelineID,
				Enabled:    p.Enabled,
			}
			if _, err := resolver.Resolve(ctx, tenantID, p); err != nil {
				result.Error = err.Error()
			}
			results = append(results, result)
		}
	}

	return results, nil
}

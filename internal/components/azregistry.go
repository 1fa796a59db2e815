package components

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/georgeannie/mlops-framework/internal/cloudcli"
)

// #region az-registry
// AzureCLIRegistry talks to an Azure ML workspace through the az CLI.
type AzureCLIRegistry struct {
	Runner        cloudcli.Runner
	ResourceGroup string
	Workspace     string
}

func (r *AzureCLIRegistry) ListVersions(ctx context.Context, name string) ([]string, error) {
	out, err := cloudcli.RunText(ctx, r.Runner, "az", r.args("ml", "component", "list",
		"--name", name, "--query", "[].version", "-o", "tsv")...)
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

func (r *AzureCLIRegistry) GetTags(ctx context.Context, name, version string) (map[string]string, error) {
	tags := map[string]string{}
	err := cloudcli.RunJSON(ctx, r.Runner, &tags, "az", r.args("ml", "component", "show",
		"--name", name, "--version", version, "--query", "tags", "-o", "json")...)
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// Publish writes document to a temporary file and runs az ml component create.
func (r *AzureCLIRegistry) Publish(ctx context.Context, name string, document []byte) (string, error) {
	tmp, err := os.CreateTemp("", "component-*.yaml")
	if err != nil {
		return "", fmt.Errorf("create temp descriptor: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(document); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp descriptor: %w", err)
	}

	return cloudcli.RunText(ctx, r.Runner, "az", r.args("ml", "component", "create",
		"--file", tmp.Name(), "--query", "version", "-o", "tsv")...)
}

func (r *AzureCLIRegistry) args(base ...string) []string {
	if r.ResourceGroup != "" {
		base = append(base, "--resource-group", r.ResourceGroup)
	}
	if r.Workspace != "" {
		base = append(base, "--workspace-name", r.Workspace)
	}
	return base
}

// #endregion az-registry

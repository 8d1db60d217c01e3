package app

import (
	"context"
	"fmt"
	"strconv"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/repo"
)

// ResolveProject picks the active project for a CLI invocation. An
// explicit --project id wins; otherwise a workspace holding exactly
// one project selects it.
func ResolveProject(ctx context.Context, r repo.Repo, projectFlag string) (domain.Project, error) {
	if projectFlag == "" {
		p, err := r.SingleProject(ctx)
		if err != nil {
			return domain.Project{}, fmt.Errorf("project not specified; use --project")
		}
		return p, nil
	}
	id, err := strconv.ParseInt(projectFlag, 10, 64)
	if err != nil {
		return domain.Project{}, fmt.Errorf("invalid project id %q", projectFlag)
	}
	return r.GetProject(ctx, id)
}

// LoadConfig reads planline.yml from the workspace, falling back to
// built-in defaults when the file is absent.
func LoadConfig(workspace string) (*config.Config, error) {
	return config.LoadOptional(workspace)
}

package ticktick

import (
	"context"
	"fmt"
	"net/url"
)

// ListProjects returns all projects visible to the authorized user.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.get(ctx, "/project", &projects); err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	return projects, nil
}

// GetProject returns a single project by ID.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var project Project
	if err := c.get(ctx, "/project/"+url.PathEscape(projectID), &project); err != nil {
		return nil, fmt.Errorf("getting project %s: %w", projectID, err)
	}

	return &project, nil
}

// GetProjectData returns a project with its undone tasks and columns.
func (c *Client) GetProjectData(ctx context.Context, projectID string) (*ProjectData, error) {
	var data ProjectData
	if err := c.get(ctx, "/project/"+url.PathEscape(projectID)+"/data", &data); err != nil {
		return nil, fmt.Errorf("getting project data %s: %w", projectID, err)
	}

	return &data, nil
}

// CreateProject creates a project and returns the provider's record.
func (c *Client) CreateProject(ctx context.Context, project *Project) (*Project, error) {
	var created Project
	if err := c.post(ctx, "/project", project, &created); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	return &created, nil
}

// UpdateProject updates a project in place and returns the result.
func (c *Client) UpdateProject(ctx context.Context, project *Project) (*Project, error) {
	if project.ID == "" {
		return nil, fmt.Errorf("project id is required for update")
	}

	var updated Project
	if err := c.post(ctx, "/project/"+url.PathEscape(project.ID), project, &updated); err != nil {
		return nil, fmt.Errorf("updating project %s: %w", project.ID, err)
	}

	return &updated, nil
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	if err := c.delete(ctx, "/project/"+url.PathEscape(projectID)); err != nil {
		return fmt.Errorf("deleting project %s: %w", projectID, err)
	}

	return nil
}

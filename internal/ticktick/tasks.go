package ticktick

import (
	"context"
	"fmt"
	"net/url"
)

// GetTask returns a task by project and task ID.
func (c *Client) GetTask(ctx context.Context, projectID, taskID string) (*Task, error) {
	endpoint := "/project/" + url.PathEscape(projectID) + "/task/" + url.PathEscape(taskID)

	var task Task
	if err := c.get(ctx, endpoint, &task); err != nil {
		return nil, fmt.Errorf("getting task %s: %w", taskID, err)
	}

	return &task, nil
}

// CreateTask creates a task and returns the provider's record.
func (c *Client) CreateTask(ctx context.Context, task *Task) (*Task, error) {
	if task.Title == "" {
		return nil, fmt.Errorf("task title is required")
	}

	var created Task
	if err := c.post(ctx, "/task", task, &created); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	return &created, nil
}

// UpdateTask updates a task in place and returns the result. The task
// must carry both its ID and project ID.
func (c *Client) UpdateTask(ctx context.Context, task *Task) (*Task, error) {
	if task.ID == "" || task.ProjectID == "" {
		return nil, fmt.Errorf("task id and projectId are required for update")
	}

	var updated Task
	if err := c.post(ctx, "/task/"+url.PathEscape(task.ID), task, &updated); err != nil {
		return nil, fmt.Errorf("updating task %s: %w", task.ID, err)
	}

	return &updated, nil
}

// CompleteTask marks a task completed.
func (c *Client) CompleteTask(ctx context.Context, projectID, taskID string) error {
	endpoint := "/project/" + url.PathEscape(projectID) + "/task/" + url.PathEscape(taskID) + "/complete"

	if err := c.post(ctx, endpoint, nil, nil); err != nil {
		return fmt.Errorf("completing task %s: %w", taskID, err)
	}

	return nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, projectID, taskID string) error {
	endpoint := "/project/" + url.PathEscape(projectID) + "/task/" + url.PathEscape(taskID)

	if err := c.delete(ctx, endpoint); err != nil {
		return fmt.Errorf("deleting task %s: %w", taskID, err)
	}

	return nil
}

package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/alexjbarnes/ticktick-mcp/internal/batch"
	"github.com/alexjbarnes/ticktick-mcp/internal/dates"
	"github.com/alexjbarnes/ticktick-mcp/internal/ticktick"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerFilterTool(server *mcp.Server, client *ticktick.Client) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_filter_tasks",
		Description: "Filter undone tasks by due-date preset (today, tomorrow, this_week, next_7_days, overdue, no_date, all), priority, and keyword. Searches one project or all projects.",
	}, filterTasksHandler(client))
}

// FilterTasksInput holds parameters for ticktick_filter_tasks.
type FilterTasksInput struct {
	ProjectID  string `json:"project_id,omitempty" jsonschema:"limit to one project, all projects when empty"`
	DatePreset string `json:"date_preset,omitempty" jsonschema:"today, tomorrow, this_week, next_7_days, overdue, no_date or all (default)"`
	Priority   *int   `json:"priority,omitempty" jsonschema:"exact priority: 0 none, 1 low, 3 medium, 5 high"`
	Keyword    string `json:"keyword,omitempty" jsonschema:"case-insensitive substring of title or content"`
}

// FilterResult is the output of ticktick_filter_tasks.
type FilterResult struct {
	Tasks []ticktick.Task `json:"tasks"`
	Total int             `json:"total"`
}

func filterTasksHandler(client *ticktick.Client) mcp.ToolHandlerFor[FilterTasksInput, *FilterResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input FilterTasksInput) (*mcp.CallToolResult, *FilterResult, error) {
		preset := dates.Preset(input.DatePreset)
		if preset == "" {
			preset = dates.PresetAll
		}

		if !preset.Valid() {
			return nil, nil, fmt.Errorf("unknown date_preset %q, valid values: %v", input.DatePreset, dates.Presets())
		}

		tasks, err := gatherTasks(ctx, client, input.ProjectID)
		if err != nil {
			return errorResult(err), nil, nil
		}

		now := time.Now()
		matched := make([]ticktick.Task, 0, len(tasks))

		for _, task := range tasks {
			if !dates.Matches(task.DueDate, preset, now) {
				continue
			}

			if input.Priority != nil && task.Priority != *input.Priority {
				continue
			}

			if !dates.ContainsKeyword(input.Keyword, task.Title, task.Content, task.Desc) {
				continue
			}

			matched = append(matched, task)
		}

		result := &FilterResult{Tasks: matched, Total: len(matched)}

		return textResult(result), result, nil
	}
}

// gatherTasks collects the undone tasks of one project, or of every
// project when projectID is empty. Project data fetches fan out with
// bounded parallelism; a single failing project fails the whole call so
// the agent never sees a silently partial result.
func gatherTasks(ctx context.Context, client *ticktick.Client, projectID string) ([]ticktick.Task, error) {
	if projectID != "" {
		data, err := client.GetProjectData(ctx, projectID)
		if err != nil {
			return nil, err
		}

		return data.Tasks, nil
	}

	projects, err := client.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	results := batch.Run(ctx, projects, batch.DefaultConcurrency,
		func(ctx context.Context, project ticktick.Project) (*ticktick.ProjectData, error) {
			return client.GetProjectData(ctx, project.ID)
		})

	var tasks []ticktick.Task

	for _, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("fetching tasks for project %s: %w", projects[r.Index].ID, r.Err)
		}

		tasks = append(tasks, r.Value.Tasks...)
	}

	return tasks, nil
}

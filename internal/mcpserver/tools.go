// Package mcpserver registers the MCP tools and resources that expose
// TickTick projects and tasks to an agent. It adapts the ticktick and
// oauth packages to the MCP SDK's tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/alexjbarnes/ticktick-mcp/internal/errors"
	"github.com/alexjbarnes/ticktick-mcp/internal/oauth"
	"github.com/alexjbarnes/ticktick-mcp/internal/ticktick"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools adds all TickTick tools to the given MCP server.
func RegisterTools(server *mcp.Server, authMgr *oauth.Manager, client *ticktick.Client) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_authorize",
		Description: "Start (or resume) the OAuth authorization flow. Returns a URL the user must open in a browser; the flow completes in the background. Idempotent while a flow is pending.",
	}, authorizeHandler(authMgr))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_auth_status",
		Description: "Check the current authorization state (not_authorized, pending, authorized, expired, error). Includes the pending authorization URL while a flow is in progress.",
	}, authStatusHandler(authMgr))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_revoke_auth",
		Description: "Delete the stored access token and reset authorization state. Local only; the token is not revoked at the provider.",
	}, revokeHandler(authMgr))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_list_projects",
		Description: "List all projects (task lists) visible to the authorized user.",
	}, listProjectsHandler(client))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_get_project",
		Description: "Get a single project. Set with_data to also return its undone tasks and kanban columns.",
	}, getProjectHandler(client))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_create_project",
		Description: "Create a new project (task list).",
	}, createProjectHandler(client))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_update_project",
		Description: "Update an existing project's name, color, view mode, or kind.",
	}, updateProjectHandler(client))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_delete_project",
		Description: "Delete a project and everything in it. Irreversible.",
	}, deleteProjectHandler(client))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_get_task",
		Description: "Get a single task by project ID and task ID.",
	}, getTaskHandler(client))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_create_task",
		Description: "Create a task. Dates use the format 2019-11-13T03:00:00+0000. Priority: 0 none, 1 low, 3 medium, 5 high.",
	}, createTaskHandler(client))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_update_task",
		Description: "Update fields of an existing task. Unspecified fields keep their current values.",
	}, updateTaskHandler(client))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_complete_task",
		Description: "Mark a task as completed.",
	}, completeTaskHandler(client))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_delete_task",
		Description: "Delete a task. Irreversible.",
	}, deleteTaskHandler(client))

	registerBatchTools(server, client)
	registerFilterTool(server, client)
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// AuthorizeInput has no parameters.
type AuthorizeInput struct{}

// AuthStatusInput has no parameters.
type AuthStatusInput struct{}

// RevokeInput has no parameters.
type RevokeInput struct{}

// ListProjectsInput has no parameters.
type ListProjectsInput struct{}

// GetProjectInput holds parameters for ticktick_get_project.
type GetProjectInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,project identifier"`
	WithData  bool   `json:"with_data,omitempty" jsonschema:"also return undone tasks and columns"`
}

// CreateProjectInput holds parameters for ticktick_create_project.
type CreateProjectInput struct {
	Name     string `json:"name" jsonschema:"required,project name"`
	Color    string `json:"color,omitempty" jsonschema:"hex color like #F18181"`
	ViewMode string `json:"view_mode,omitempty" jsonschema:"list, kanban or timeline"`
	Kind     string `json:"kind,omitempty" jsonschema:"TASK or NOTE"`
}

// UpdateProjectInput holds parameters for ticktick_update_project.
type UpdateProjectInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,project identifier"`
	Name      string `json:"name,omitempty" jsonschema:"new project name"`
	Color     string `json:"color,omitempty" jsonschema:"new hex color"`
	ViewMode  string `json:"view_mode,omitempty" jsonschema:"list, kanban or timeline"`
	Kind      string `json:"kind,omitempty" jsonschema:"TASK or NOTE"`
}

// DeleteProjectInput holds parameters for ticktick_delete_project.
type DeleteProjectInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,project identifier"`
}

// GetTaskInput holds parameters for ticktick_get_task.
type GetTaskInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,project identifier"`
	TaskID    string `json:"task_id" jsonschema:"required,task identifier"`
}

// CreateTaskInput holds parameters for ticktick_create_task.
type CreateTaskInput struct {
	ProjectID string   `json:"project_id,omitempty" jsonschema:"target project, defaults to the inbox"`
	Title     string   `json:"title" jsonschema:"required,task title"`
	Content   string   `json:"content,omitempty" jsonschema:"task content"`
	Desc      string   `json:"desc,omitempty" jsonschema:"checklist description"`
	StartDate string   `json:"start_date,omitempty" jsonschema:"start date, e.g. 2019-11-13T03:00:00+0000"`
	DueDate   string   `json:"due_date,omitempty" jsonschema:"due date, e.g. 2019-11-13T03:00:00+0000"`
	IsAllDay  bool     `json:"is_all_day,omitempty" jsonschema:"all-day task"`
	TimeZone  string   `json:"time_zone,omitempty" jsonschema:"IANA time zone, e.g. Europe/London"`
	Priority  int      `json:"priority,omitempty" jsonschema:"0 none, 1 low, 3 medium, 5 high"`
	Reminders []string `json:"reminders,omitempty" jsonschema:"reminder triggers, e.g. TRIGGER:-PT30M"`
	Subtasks  []string `json:"subtasks,omitempty" jsonschema:"checklist item titles"`
}

// UpdateTaskInput holds parameters for ticktick_update_task. Pointer
// fields distinguish "leave unchanged" from an explicit zero value.
type UpdateTaskInput struct {
	ProjectID string  `json:"project_id" jsonschema:"required,project identifier"`
	TaskID    string  `json:"task_id" jsonschema:"required,task identifier"`
	Title     *string `json:"title,omitempty" jsonschema:"new title"`
	Content   *string `json:"content,omitempty" jsonschema:"new content"`
	Desc      *string `json:"desc,omitempty" jsonschema:"new checklist description"`
	StartDate *string `json:"start_date,omitempty" jsonschema:"new start date, empty string clears it"`
	DueDate   *string `json:"due_date,omitempty" jsonschema:"new due date, empty string clears it"`
	IsAllDay  *bool   `json:"is_all_day,omitempty" jsonschema:"all-day task"`
	TimeZone  *string `json:"time_zone,omitempty" jsonschema:"new IANA time zone"`
	Priority  *int    `json:"priority,omitempty" jsonschema:"0 none, 1 low, 3 medium, 5 high"`
}

// CompleteTaskInput holds parameters for ticktick_complete_task.
type CompleteTaskInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,project identifier"`
	TaskID    string `json:"task_id" jsonschema:"required,task identifier"`
}

// DeleteTaskInput holds parameters for ticktick_delete_task.
type DeleteTaskInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,project identifier"`
	TaskID    string `json:"task_id" jsonschema:"required,task identifier"`
}

// --- Auth handlers ---

// AuthorizeResult is the output of ticktick_authorize.
type AuthorizeResult struct {
	AuthURL string `json:"auth_url"`
	Message string `json:"message"`
}

func authorizeHandler(authMgr *oauth.Manager) mcp.ToolHandlerFor[AuthorizeInput, *AuthorizeResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ AuthorizeInput) (*mcp.CallToolResult, *AuthorizeResult, error) {
		url, err := authMgr.AuthorizationURL()
		if err != nil {
			return errorResult(err), nil, nil
		}

		result := &AuthorizeResult{
			AuthURL: url,
			Message: "Open this URL in a browser to authorize. The flow completes in the background; check ticktick_auth_status.",
		}

		return textResult(result), result, nil
	}
}

// AuthStatusResult is the output of ticktick_auth_status. The state is
// reported by name (not_authorized, pending, authorized, expired, error).
type AuthStatusResult struct {
	State      string `json:"state"`
	Authorized bool   `json:"authorized"`
	Message    string `json:"message"`
	AuthURL    string `json:"auth_url,omitempty"`
}

func authStatusHandler(authMgr *oauth.Manager) mcp.ToolHandlerFor[AuthStatusInput, *AuthStatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ AuthStatusInput) (*mcp.CallToolResult, *AuthStatusResult, error) {
		info := authMgr.Status()

		result := &AuthStatusResult{
			State:      info.State.String(),
			Authorized: info.Authorized,
			Message:    info.Message,
			AuthURL:    info.AuthURL,
		}

		return textResult(result), result, nil
	}
}

// RevokeResult is the output of ticktick_revoke_auth.
type RevokeResult struct {
	Message string `json:"message"`
}

func revokeHandler(authMgr *oauth.Manager) mcp.ToolHandlerFor[RevokeInput, *RevokeResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ RevokeInput) (*mcp.CallToolResult, *RevokeResult, error) {
		if err := authMgr.Revoke(); err != nil {
			return errorResult(err), nil, nil
		}

		result := &RevokeResult{Message: "Authorization revoked. The stored token has been deleted."}

		return textResult(result), result, nil
	}
}

// --- Project handlers ---

// ProjectListResult is the output of ticktick_list_projects.
type ProjectListResult struct {
	Projects []ticktick.Project `json:"projects,omitzero"`
	Total    int                `json:"total"`
}

func listProjectsHandler(client *ticktick.Client) mcp.ToolHandlerFor[ListProjectsInput, *ProjectListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListProjectsInput) (*mcp.CallToolResult, *ProjectListResult, error) {
		projects, err := client.ListProjects(ctx)
		if err != nil {
			return errorResult(err), nil, nil
		}

		result := &ProjectListResult{Projects: projects, Total: len(projects)}

		return textResult(result), result, nil
	}
}

func getProjectHandler(client *ticktick.Client) mcp.ToolHandlerFor[GetProjectInput, *ticktick.ProjectData] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetProjectInput) (*mcp.CallToolResult, *ticktick.ProjectData, error) {
		if input.WithData {
			data, err := client.GetProjectData(ctx, input.ProjectID)
			if err != nil {
				return errorResult(err), nil, nil
			}

			return textResult(data), data, nil
		}

		project, err := client.GetProject(ctx, input.ProjectID)
		if err != nil {
			return errorResult(err), nil, nil
		}

		data := &ticktick.ProjectData{Project: project}

		return textResult(data), data, nil
	}
}

func createProjectHandler(client *ticktick.Client) mcp.ToolHandlerFor[CreateProjectInput, *ticktick.Project] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CreateProjectInput) (*mcp.CallToolResult, *ticktick.Project, error) {
		created, err := client.CreateProject(ctx, &ticktick.Project{
			Name:     input.Name,
			Color:    input.Color,
			ViewMode: input.ViewMode,
			Kind:     input.Kind,
		})
		if err != nil {
			return errorResult(err), nil, nil
		}

		return textResult(created), created, nil
	}
}

func updateProjectHandler(client *ticktick.Client) mcp.ToolHandlerFor[UpdateProjectInput, *ticktick.Project] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input UpdateProjectInput) (*mcp.CallToolResult, *ticktick.Project, error) {
		updated, err := client.UpdateProject(ctx, &ticktick.Project{
			ID:       input.ProjectID,
			Name:     input.Name,
			Color:    input.Color,
			ViewMode: input.ViewMode,
			Kind:     input.Kind,
		})
		if err != nil {
			return errorResult(err), nil, nil
		}

		return textResult(updated), updated, nil
	}
}

// DeleteResult confirms a deletion.
type DeleteResult struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

func deleteProjectHandler(client *ticktick.Client) mcp.ToolHandlerFor[DeleteProjectInput, *DeleteResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DeleteProjectInput) (*mcp.CallToolResult, *DeleteResult, error) {
		if err := client.DeleteProject(ctx, input.ProjectID); err != nil {
			return errorResult(err), nil, nil
		}

		result := &DeleteResult{Deleted: true, ID: input.ProjectID}

		return textResult(result), result, nil
	}
}

// --- Task handlers ---

func getTaskHandler(client *ticktick.Client) mcp.ToolHandlerFor[GetTaskInput, *ticktick.Task] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetTaskInput) (*mcp.CallToolResult, *ticktick.Task, error) {
		task, err := client.GetTask(ctx, input.ProjectID, input.TaskID)
		if err != nil {
			return errorResult(err), nil, nil
		}

		return textResult(task), task, nil
	}
}

func taskFromCreateInput(input CreateTaskInput) *ticktick.Task {
	task := &ticktick.Task{
		ProjectID: input.ProjectID,
		Title:     input.Title,
		Content:   input.Content,
		Desc:      input.Desc,
		StartDate: input.StartDate,
		DueDate:   input.DueDate,
		IsAllDay:  input.IsAllDay,
		TimeZone:  input.TimeZone,
		Priority:  input.Priority,
		Reminders: input.Reminders,
	}

	for _, title := range input.Subtasks {
		task.Items = append(task.Items, ticktick.ChecklistItem{Title: title})
	}

	return task
}

func createTaskHandler(client *ticktick.Client) mcp.ToolHandlerFor[CreateTaskInput, *ticktick.Task] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CreateTaskInput) (*mcp.CallToolResult, *ticktick.Task, error) {
		created, err := client.CreateTask(ctx, taskFromCreateInput(input))
		if err != nil {
			return errorResult(err), nil, nil
		}

		return textResult(created), created, nil
	}
}

// applyTaskUpdate overlays the set fields of input onto task.
func applyTaskUpdate(task *ticktick.Task, input UpdateTaskInput) {
	if input.Title != nil {
		task.Title = *input.Title
	}

	if input.Content != nil {
		task.Content = *input.Content
	}

	if input.Desc != nil {
		task.Desc = *input.Desc
	}

	if input.StartDate != nil {
		task.StartDate = *input.StartDate
	}

	if input.DueDate != nil {
		task.DueDate = *input.DueDate
	}

	if input.IsAllDay != nil {
		task.IsAllDay = *input.IsAllDay
	}

	if input.TimeZone != nil {
		task.TimeZone = *input.TimeZone
	}

	if input.Priority != nil {
		task.Priority = *input.Priority
	}
}

func updateTask(ctx context.Context, client *ticktick.Client, input UpdateTaskInput) (*ticktick.Task, error) {
	// The update endpoint replaces the task, so fetch the current state
	// first and overlay only the fields the agent set.
	task, err := client.GetTask(ctx, input.ProjectID, input.TaskID)
	if err != nil {
		return nil, err
	}

	applyTaskUpdate(task, input)
	task.ID = input.TaskID
	task.ProjectID = input.ProjectID

	return client.UpdateTask(ctx, task)
}

func updateTaskHandler(client *ticktick.Client) mcp.ToolHandlerFor[UpdateTaskInput, *ticktick.Task] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input UpdateTaskInput) (*mcp.CallToolResult, *ticktick.Task, error) {
		updated, err := updateTask(ctx, client, input)
		if err != nil {
			return errorResult(err), nil, nil
		}

		return textResult(updated), updated, nil
	}
}

// CompleteResult confirms a completion.
type CompleteResult struct {
	Completed bool   `json:"completed"`
	TaskID    string `json:"task_id"`
}

func completeTaskHandler(client *ticktick.Client) mcp.ToolHandlerFor[CompleteTaskInput, *CompleteResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CompleteTaskInput) (*mcp.CallToolResult, *CompleteResult, error) {
		if err := client.CompleteTask(ctx, input.ProjectID, input.TaskID); err != nil {
			return errorResult(err), nil, nil
		}

		result := &CompleteResult{Completed: true, TaskID: input.TaskID}

		return textResult(result), result, nil
	}
}

func deleteTaskHandler(client *ticktick.Client) mcp.ToolHandlerFor[DeleteTaskInput, *DeleteResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DeleteTaskInput) (*mcp.CallToolResult, *DeleteResult, error) {
		if err := client.DeleteTask(ctx, input.ProjectID, input.TaskID); err != nil {
			return errorResult(err), nil, nil
		}

		result := &DeleteResult{Deleted: true, ID: input.TaskID}

		return textResult(result), result, nil
	}
}

// --- Result helpers ---

// errorResult turns a failure into an agent-actionable tool error. Token
// failures are translated into guidance so the agent knows whether to
// start or restart the authorization flow.
func errorResult(err error) *mcp.CallToolResult {
	var msg string

	switch oauth.KindOf(err) {
	case oauth.KindNoToken:
		msg = "Not authorized with TickTick. Call ticktick_authorize, have the user open the returned URL, then retry."
	case oauth.KindTokenExpired:
		msg = "TickTick authorization has expired. Call ticktick_authorize to re-authorize, then retry."
	default:
		switch {
		case errors.Is(err, apperrors.ErrUnauthorized):
			msg = "TickTick rejected the stored credentials. Call ticktick_revoke_auth, then ticktick_authorize to re-authorize."
		case ticktick.IsTransient(err):
			msg = fmt.Sprintf("Temporary provider failure, safe to retry: %v", err)
		default:
			msg = err.Error()
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alexjbarnes/ticktick-mcp/internal/oauth"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	terminologyURI = "ticktick://terminology"
	authStatusURI  = "ticktick://auth/status"
)

// terminologyDoc explains provider vocabulary to the agent so it maps
// user language onto the right tool parameters.
const terminologyDoc = `# TickTick terminology

- **Project**: a task list. What users call a "list" or "folder" is a project.
  Every task lives in exactly one project. Tasks without an explicit project go
  to the built-in Inbox.
- **Task**: a to-do item inside a project. Tasks carry a title, optional
  content, dates, a priority, and optional checklist items (subtasks).
- **Priority**: numeric. 0 = none, 1 = low, 3 = medium, 5 = high. Other values
  are invalid.
- **Status**: 0 = normal (undone), 2 = completed. Project data endpoints return
  only undone tasks.
- **Dates**: timestamps use the form 2019-11-13T03:00:00+0000. All-day tasks
  set is_all_day and typically use midnight in the task's time zone.
- **Checklist item**: a subtask line inside a task. Items have their own
  titles and completion status but are not standalone tasks.
- **View mode**: how a project renders: list, kanban, or timeline.
- **Column**: a kanban column inside a project, only meaningful for projects
  with the kanban view mode.
`

// RegisterResources adds the static terminology document and the live
// authorization status resource.
func RegisterResources(server *mcp.Server, authMgr *oauth.Manager) {
	server.AddResource(&mcp.Resource{
		URI:         terminologyURI,
		Name:        "ticktick-terminology",
		Description: "Glossary mapping TickTick vocabulary to tool parameters",
		MIMEType:    "text/markdown",
	}, func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      terminologyURI,
				MIMEType: "text/markdown",
				Text:     terminologyDoc,
			}},
		}, nil
	})

	server.AddResource(&mcp.Resource{
		URI:         authStatusURI,
		Name:        "ticktick-auth-status",
		Description: "Current OAuth authorization state as JSON",
		MIMEType:    "application/json",
	}, func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		info := authMgr.Status()

		data, err := json.Marshal(info)
		if err != nil {
			return nil, fmt.Errorf("marshaling auth status: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      authStatusURI,
				MIMEType: "application/json",
				Text:     string(data),
			}},
		}, nil
	})
}

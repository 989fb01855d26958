package mcpserver

import (
	"context"
	"fmt"

	"github.com/alexjbarnes/ticktick-mcp/internal/batch"
	"github.com/alexjbarnes/ticktick-mcp/internal/ticktick"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerBatchTools(server *mcp.Server, client *ticktick.Client) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_batch_create_tasks",
		Description: "Create several tasks in one call. Items run with bounded parallelism; each outcome is reported separately, so partial success is possible.",
	}, batchCreateHandler(client))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ticktick_batch_update_tasks",
		Description: "Update several tasks in one call. Items run with bounded parallelism; each outcome is reported separately, so partial success is possible.",
	}, batchUpdateHandler(client))
}

// BatchCreateInput holds parameters for ticktick_batch_create_tasks.
type BatchCreateInput struct {
	Tasks []CreateTaskInput `json:"tasks" jsonschema:"required,tasks to create"`
}

// BatchUpdateInput holds parameters for ticktick_batch_update_tasks.
type BatchUpdateInput struct {
	Tasks []UpdateTaskInput `json:"tasks" jsonschema:"required,task updates to apply"`
}

// BatchItem reports the outcome of a single batch item, in input order.
type BatchItem struct {
	Index int            `json:"index"`
	OK    bool           `json:"ok"`
	Error string         `json:"error,omitempty"`
	Task  *ticktick.Task `json:"task,omitempty"`
}

// BatchResult is the output of the batch tools.
type BatchResult struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Items     []BatchItem `json:"items"`
}

func collectBatch(results []batch.Result[*ticktick.Task]) *BatchResult {
	out := &BatchResult{Items: make([]BatchItem, len(results))}

	for _, r := range results {
		item := BatchItem{Index: r.Index, OK: r.Err == nil, Task: r.Value}
		if r.Err != nil {
			item.Error = r.Err.Error()
			item.Task = nil
			out.Failed++
		} else {
			out.Succeeded++
		}

		out.Items[r.Index] = item
	}

	return out
}

func batchCreateHandler(client *ticktick.Client) mcp.ToolHandlerFor[BatchCreateInput, *BatchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input BatchCreateInput) (*mcp.CallToolResult, *BatchResult, error) {
		if len(input.Tasks) == 0 {
			return nil, nil, fmt.Errorf("tasks must not be empty")
		}

		results := batch.Run(ctx, input.Tasks, batch.DefaultConcurrency,
			func(ctx context.Context, item CreateTaskInput) (*ticktick.Task, error) {
				return client.CreateTask(ctx, taskFromCreateInput(item))
			})

		result := collectBatch(results)

		return textResult(result), result, nil
	}
}

func batchUpdateHandler(client *ticktick.Client) mcp.ToolHandlerFor[BatchUpdateInput, *BatchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input BatchUpdateInput) (*mcp.CallToolResult, *BatchResult, error) {
		if len(input.Tasks) == 0 {
			return nil, nil, fmt.Errorf("tasks must not be empty")
		}

		results := batch.Run(ctx, input.Tasks, batch.DefaultConcurrency,
			func(ctx context.Context, item UpdateTaskInput) (*ticktick.Task, error) {
				return updateTask(ctx, client, item)
			})

		result := collectBatch(results)

		return textResult(result), result, nil
	}
}

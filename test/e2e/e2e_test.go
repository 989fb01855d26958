package e2e_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/alexjbarnes/ticktick-mcp/internal/ticktick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// Full lifecycle: authorize through the browser round trip, use the API
// tools, survive a process restart on the persisted token, then revoke.
func TestAuthorizeUseRestartRevoke(t *testing.T) {
	p := newProvider(t)
	path := tokenFile(t)
	port := freePort(t)

	h := newHarness(t, p, path, port)

	// Fresh start: no token, API tools refuse with guidance.
	result := h.callTool(t, "ticktick_list_projects", nil)
	assert.True(t, result.IsError)

	// Kick off the flow and approve it.
	var auth struct {
		AuthURL string `json:"auth_url"`
	}
	h.toolJSON(t, "ticktick_authorize", nil, &auth)
	require.NotEmpty(t, auth.AuthURL)

	h.approve(t, auth.AuthURL)
	h.waitAuthorized(t)

	// The token file exists and is bound to the active credentials.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testClientID, gjson.GetBytes(data, "client_id").String())
	assert.Equal(t, "ticktick", gjson.GetBytes(data, "region").String())

	// API tools now work end to end.
	var project ticktick.Project
	h.toolJSON(t, "ticktick_create_project", map[string]interface{}{"name": "E2E"}, &project)
	require.NotEmpty(t, project.ID)

	var task ticktick.Task
	h.toolJSON(t, "ticktick_create_task", map[string]interface{}{
		"project_id": project.ID,
		"title":      "end to end",
	}, &task)
	require.NotEmpty(t, task.ID)

	var fetched ticktick.Task
	h.toolJSON(t, "ticktick_get_task", map[string]interface{}{
		"project_id": project.ID,
		"task_id":    task.ID,
	}, &fetched)
	assert.Equal(t, "end to end", fetched.Title)

	// "Restart": a fresh wiring over the same token file is authorized
	// immediately, without a new flow.
	h2 := newHarness(t, p, path, freePort(t))

	var status struct {
		Authorized bool `json:"authorized"`
	}
	h2.toolJSON(t, "ticktick_auth_status", nil, &status)
	assert.True(t, status.Authorized)

	var projects struct {
		Total int `json:"total"`
	}
	h2.toolJSON(t, "ticktick_list_projects", nil, &projects)
	assert.Equal(t, 1, projects.Total)

	// Revoke deletes the file and downgrades both wirings.
	h2.callTool(t, "ticktick_revoke_auth", nil)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	h.toolJSON(t, "ticktick_auth_status", nil, &status)
	assert.False(t, status.Authorized)
}

// A token minted under one set of credentials is invisible to a server
// configured with different credentials.
func TestRestartWithRotatedCredentials(t *testing.T) {
	p := newProvider(t)
	path := tokenFile(t)

	h := newHarness(t, p, path, freePort(t))

	var auth struct {
		AuthURL string `json:"auth_url"`
	}
	h.toolJSON(t, "ticktick_authorize", nil, &auth)
	h.approve(t, auth.AuthURL)
	h.waitAuthorized(t)

	// Corrupt the binding as a credential rotation would.
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &record))
	record["client_id"] = "some-other-client"
	rotated, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, rotated, 0o600))

	h2 := newHarness(t, p, path, freePort(t))

	var status struct {
		State string `json:"state"`
	}
	h2.toolJSON(t, "ticktick_auth_status", nil, &status)
	assert.Equal(t, "not_authorized", status.State)

	// The foreign token was deleted on startup, not left around.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// Deleting the token file by hand is observed on the next call with no
// restart.
func TestExternalTokenDeletion(t *testing.T) {
	p := newProvider(t)
	path := tokenFile(t)

	h := newHarness(t, p, path, freePort(t))

	var auth struct {
		AuthURL string `json:"auth_url"`
	}
	h.toolJSON(t, "ticktick_authorize", nil, &auth)
	h.approve(t, auth.AuthURL)
	h.waitAuthorized(t)

	require.NoError(t, os.Remove(path))

	result := h.callTool(t, "ticktick_list_projects", nil)
	assert.True(t, result.IsError)

	var status struct {
		State string `json:"state"`
	}
	h.toolJSON(t, "ticktick_auth_status", nil, &status)
	assert.Equal(t, "not_authorized", status.State)
}

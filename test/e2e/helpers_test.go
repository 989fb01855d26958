package e2e_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/ticktick-mcp/internal/mcpserver"
	"github.com/alexjbarnes/ticktick-mcp/internal/oauth"
	"github.com/alexjbarnes/ticktick-mcp/internal/ticktick"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "e2e-client"
	testSecret   = "e2e-secret"
)

// provider is a fake TickTick backend: the OAuth token endpoint plus a
// minimal projects/tasks API guarded by the tokens it mints.
type provider struct {
	mu       sync.Mutex
	nextID   int
	minted   map[string]bool
	projects map[string]*ticktick.Project
	tasks    map[string]*ticktick.Task
	server   *httptest.Server
}

func newProvider(t *testing.T) *provider {
	t.Helper()

	p := &provider{
		minted:   make(map[string]bool),
		projects: make(map[string]*ticktick.Project),
		tasks:    make(map[string]*ticktick.Task),
	}
	p.server = httptest.NewServer(p.handler())
	t.Cleanup(p.server.Close)

	return p
}

func (p *provider) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "authorization_code" ||
			r.Form.Get("client_id") != testClientID ||
			r.Form.Get("client_secret") != testSecret {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
			return
		}

		p.mu.Lock()
		p.nextID++
		token := "e2e-token-" + strconv.Itoa(p.nextID)
		p.minted[token] = true
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer","expires_in":3600}`, token)
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p.mu.Lock()
			ok := p.minted[trimBearer(r.Header.Get("Authorization"))]
			p.mu.Unlock()

			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			next(w, r)
		}
	}

	mux.HandleFunc("GET /open/v1/project", authed(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()

		list := []*ticktick.Project{}
		for _, project := range p.projects {
			list = append(list, project)
		}
		writeJSON(w, list)
	}))

	mux.HandleFunc("POST /open/v1/project", authed(func(w http.ResponseWriter, r *http.Request) {
		var project ticktick.Project
		_ = json.NewDecoder(r.Body).Decode(&project)

		p.mu.Lock()
		p.nextID++
		project.ID = "p" + strconv.Itoa(p.nextID)
		p.projects[project.ID] = &project
		p.mu.Unlock()

		writeJSON(w, &project)
	}))

	mux.HandleFunc("POST /open/v1/task", authed(func(w http.ResponseWriter, r *http.Request) {
		var task ticktick.Task
		_ = json.NewDecoder(r.Body).Decode(&task)

		p.mu.Lock()
		p.nextID++
		task.ID = "t" + strconv.Itoa(p.nextID)
		p.tasks[task.ID] = &task
		p.mu.Unlock()

		writeJSON(w, &task)
	}))

	mux.HandleFunc("GET /open/v1/project/{pid}/task/{tid}", authed(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()

		task, ok := p.tasks[r.PathValue("tid")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, task)
	}))

	return mux
}

func trimBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) {
		return header[len(prefix):]
	}

	return ""
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// harness is the full server wiring plus a connected MCP session.
type harness struct {
	provider  *provider
	session   *mcp.ClientSession
	manager   *oauth.Manager
	tokenPath string
	port      int
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	return port
}

// newHarness wires store, token manager, state machine, OAuth manager,
// API client, and MCP server exactly like the main command does, all
// pointed at the fake provider.
func newHarness(t *testing.T, p *provider, tokenPath string, port int) *harness {
	t.Helper()

	store := oauth.NewStore(tokenPath)
	vc := oauth.NewValidationContext(testClientID, testSecret, "ticktick")
	tokens := oauth.NewTokenManager(store, vc, testLogger())
	machine := oauth.NewStateMachine(tokens)

	manager := oauth.NewManager(oauth.Options{
		ClientID:     testClientID,
		ClientSecret: testSecret,
		Scopes:       []string{"tasks:read", "tasks:write"},
		CallbackPort: port,
		Endpoints: oauth.Endpoints{
			AuthURL:  p.server.URL + "/oauth/authorize",
			TokenURL: p.server.URL + "/oauth/token",
		},
		HTTPClient: p.server.Client(),
	}, tokens, machine, testLogger())
	t.Cleanup(manager.Close)

	client := ticktick.NewClient(p.server.Client(), p.server.URL, manager)

	server := mcp.NewServer(
		&mcp.Implementation{Name: "ticktick-mcp-e2e", Version: "test"},
		nil,
	)
	mcpserver.RegisterTools(server, manager, client)
	mcpserver.RegisterResources(server, manager)

	ctx := context.Background()
	t1, t2 := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, t1, nil)
	require.NoError(t, err)

	mcpClient := mcp.NewClient(&mcp.Implementation{Name: "e2e-client", Version: "test"}, nil)
	session, err := mcpClient.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return &harness{provider: p, session: session, manager: manager, tokenPath: tokenPath, port: port}
}

func (h *harness) callTool(t *testing.T, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()

	result, err := h.session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)

	return result
}

func (h *harness) toolJSON(t *testing.T, name string, args map[string]interface{}, dest interface{}) *mcp.CallToolResult {
	t.Helper()

	result := h.callTool(t, name, args)
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(tc.Text), dest))

	return result
}

// approve simulates the user approving in the browser: the provider
// redirects straight back to the local callback server.
func (h *harness) approve(t *testing.T, authURL string) {
	t.Helper()

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?code=e2e-code&state=%s", h.port, state))
	require.NoError(t, err)
	resp.Body.Close()
}

func (h *harness) waitAuthorized(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		var status struct {
			Authorized bool `json:"authorized"`
		}
		h.toolJSON(t, "ticktick_auth_status", nil, &status)
		return status.Authorized
	}, 5*time.Second, 20*time.Millisecond)
}

func tokenFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "token.json")
}

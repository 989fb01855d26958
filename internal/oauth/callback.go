package oauth

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"
)

// CallbackPath is the fixed path the provider redirects back to.
const CallbackPath = "/callback"

//go:embed pages
var pagesFS embed.FS

var errorPageTmpl = template.Must(template.ParseFS(pagesFS, "pages/error.html"))

// staticExts is the small set of asset types the callback server will
// pass through alongside the outcome pages.
var staticExts = map[string]string{
	".css": "text/css; charset=utf-8",
	".svg": "image/svg+xml",
	".png": "image/png",
	".ico": "image/x-icon",
}

// Result carries the authorization code echoed back by the provider.
type Result struct {
	Code  string
	State string
}

// CallbackServer is a single-use local HTTP listener for the OAuth
// redirect. It resolves or rejects exactly once and closes itself after
// success, failure, or timeout.
type CallbackServer struct {
	addr     string
	port     int
	expected string
	logger   *slog.Logger

	server   *http.Server
	listener net.Listener
	resultCh chan *Result
	errCh    chan error

	handleOnce sync.Once
	closeOnce  sync.Once
}

// NewCallbackServer creates a server that will accept a callback
// carrying expectedState on 127.0.0.1:port.
func NewCallbackServer(port int, expectedState string, logger *slog.Logger) *CallbackServer {
	return &CallbackServer{
		addr:     fmt.Sprintf("127.0.0.1:%d", port),
		port:     port,
		expected: expectedState,
		logger:   logger,
		resultCh: make(chan *Result, 1),
		errCh:    make(chan error, 1),
	}
}

// RedirectURI returns the redirect URI to register in the authorization
// request.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, CallbackPath)
}

// Start binds the listener and begins serving. A bind failure surfaces
// as a FlowError of kind PortInUse.
func (s *CallbackServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &FlowError{Kind: KindPortInUse, Detail: "binding " + s.addr, Err: err}
	}

	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, s.handleCallback)
	mux.HandleFunc("/", s.handleStatic)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errCh <- &FlowError{Kind: KindNetworkError, Detail: "callback server", Err: err}:
			default:
			}
		}
	}()

	return nil
}

// Wait blocks until the callback resolves, the timeout elapses, or ctx
// is cancelled. The server is closed in every case; on success the
// close is delayed briefly so the browser can render the confirmation
// page.
func (s *CallbackServer) Wait(ctx context.Context, timeout time.Duration) (*Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.resultCh:
		go func() {
			time.Sleep(time.Second)
			s.Close()
		}()

		return result, nil
	case err := <-s.errCh:
		s.Close()
		return nil, err
	case <-timer.C:
		s.Close()
		return nil, flowErr(KindCallbackTimeout, fmt.Sprintf("no callback received within %s", timeout))
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// Close shuts the server down. Safe to call more than once.
func (s *CallbackServer) Close() {
	s.closeOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}

		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// handleCallback processes the redirect. Exactly one resolution or
// rejection happens; later hits get a plain 400.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	handled := false

	s.handleOnce.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "callback already processed", http.StatusBadRequest)
	}
}

func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()

	switch {
	case query.Get("error") != "":
		detail := query.Get("error")
		if desc := query.Get("error_description"); desc != "" {
			detail += ": " + desc
		}

		s.renderError(w, query.Get("error"), query.Get("error_description"))
		s.reject(flowErr(KindProviderDenied, detail))
	case query.Get("code") == "" || query.Get("state") == "":
		s.renderError(w, "invalid_callback", "The callback is missing the code or state parameter.")
		s.reject(flowErr(KindCsrfMismatch, "callback missing code or state"))
	case query.Get("state") != s.expected:
		s.logger.Warn("callback state mismatch, rejecting as CSRF failure")
		s.renderError(w, "state_mismatch", "The callback did not originate from this authorization request.")
		s.reject(flowErr(KindCsrfMismatch, "callback state does not match the pending request"))
	default:
		s.renderPage(w, http.StatusOK, "pages/success.html")
		s.resolve(&Result{Code: query.Get("code"), State: query.Get("state")})
	}
}

func (s *CallbackServer) resolve(result *Result) {
	select {
	case s.resultCh <- result:
	default:
	}
}

func (s *CallbackServer) reject(err error) {
	select {
	case s.errCh <- err:
	default:
	}
}

// handleStatic serves the not-found page for unknown paths and passes
// through the small embedded asset set. Anything that walks outside the
// pages root answers not-found rather than being served.
func (s *CallbackServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")

	if name == "" || strings.Contains(r.URL.Path, "..") {
		s.renderPage(w, http.StatusNotFound, "pages/not_found.html")
		return
	}

	contentType, ok := staticExts[path.Ext(name)]
	if !ok {
		s.renderPage(w, http.StatusNotFound, "pages/not_found.html")
		return
	}

	cleaned := path.Clean(name)
	if strings.Contains(cleaned, "..") || strings.Contains(cleaned, "/") {
		s.renderPage(w, http.StatusNotFound, "pages/not_found.html")
		return
	}

	data, err := pagesFS.ReadFile("pages/" + cleaned)
	if err != nil {
		s.renderPage(w, http.StatusNotFound, "pages/not_found.html")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *CallbackServer) renderPage(w http.ResponseWriter, status int, name string) {
	data, err := pagesFS.ReadFile(name)
	if err != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *CallbackServer) renderError(w http.ResponseWriter, code, description string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)

	err := errorPageTmpl.Execute(w, map[string]string{
		"Error":       code,
		"Description": description,
	})
	if err != nil {
		s.logger.Error("rendering error page", slog.String("error", err.Error()))
	}
}

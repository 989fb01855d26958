// Command ticktick-mcp runs the TickTick MCP server over stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alexjbarnes/ticktick-mcp/internal/config"
	"github.com/alexjbarnes/ticktick-mcp/internal/logging"
	"github.com/alexjbarnes/ticktick-mcp/internal/mcpserver"
	"github.com/alexjbarnes/ticktick-mcp/internal/oauth"
	"github.com/alexjbarnes/ticktick-mcp/internal/ticktick"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	store := oauth.NewStore(cfg.TokenPath)
	vc := oauth.NewValidationContext(cfg.ClientID, cfg.ClientSecret, cfg.Region)
	tokens := oauth.NewTokenManager(store, vc, logger)
	machine := oauth.NewStateMachine(tokens)

	authURL, tokenURL := ticktick.OAuthEndpoints(cfg.Region)
	authMgr := oauth.NewManager(oauth.Options{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       strings.Fields(cfg.Scope),
		CallbackPort: cfg.CallbackPort,
		Endpoints:    oauth.Endpoints{AuthURL: authURL, TokenURL: tokenURL},
	}, tokens, machine, logger)
	defer authMgr.Close()

	client := ticktick.NewClient(nil, ticktick.BaseURL(cfg.Region), authMgr)

	server := mcp.NewServer(
		&mcp.Implementation{Name: "ticktick-mcp", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(server, authMgr, client)
	mcpserver.RegisterResources(server, authMgr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting MCP server",
		slog.String("region", cfg.Region),
		slog.String("token_path", cfg.TokenPath),
		slog.Int("callback_port", cfg.CallbackPort),
		slog.String("version", Version),
	)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")

	return nil
}

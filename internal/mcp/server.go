package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/usher/internal/server/middleware"
	"github.com/faucetdb/usher/internal/service"
)

// EndpointPath is where the Streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

// MCPServer wraps the mcp-go server with the account administration tools
// and resources, so agents can browse and moderate users.
type MCPServer struct {
	accounts *service.AccountService
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all usher tools and
// resources. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(accounts *service.AccountService, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		accounts: accounts,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"Usher User Administration",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// HTTPHandler returns the Streamable HTTP transport behind the same token
// gate as /api/users: callers must send "Authorization: Token <key>" (or
// Bearer) for an active staff account.
func (s *MCPServer) HTTPHandler(tokens middleware.TokenResolver) http.Handler {
	streamable := server.NewStreamableHTTPServer(s.server,
		server.WithEndpointPath(EndpointPath),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if p := middleware.GetPrincipal(r.Context()); p != nil {
				return middleware.WithPrincipal(ctx, p)
			}
			return ctx
		}),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Authenticate(tokens))
	r.Use(middleware.RequireAuth)
	r.Use(middleware.RequireStaff)
	r.Handle(EndpointPath, streamable)
	return r
}

// ListenAndServe serves HTTPHandler on addr (e.g. "127.0.0.1:3001") until
// ctx is cancelled.
func (s *MCPServer) ListenAndServe(ctx context.Context, addr string, tokens middleware.TokenResolver) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(tokens),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("MCP HTTP server starting", "addr", addr, "path", EndpointPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// actor names the principal calling a tool, for audit logs. stdio callers
// have no principal.
func actor(ctx context.Context) string {
	if p := middleware.GetPrincipal(ctx); p != nil {
		return p.Account.Username
	}
	return "stdio"
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:   boolPtr(false),
		IdempotentHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}

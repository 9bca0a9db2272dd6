package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/usher/internal/model"
	"github.com/faucetdb/usher/internal/service"
)

// registerTools registers all usher MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Read tools -----

	srv.AddTool(
		mcp.NewTool("usher_list_users",
			mcp.WithDescription(
				"List user accounts, newest first, one page at a time. Returns the total "+
					"count, the page number, the number of pages and the accounts on the "+
					"requested page.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("page",
				mcp.Description("Page number, starting at 1 (default 1)"),
			),
		),
		s.handleListUsers,
	)

	srv.AddTool(
		mcp.NewTool("usher_get_user",
			mcp.WithDescription("Get a single user account by numeric ID."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("id",
				mcp.Required(),
				mcp.Description("Account ID"),
			),
		),
		s.handleGetUser,
	)

	srv.AddTool(
		mcp.NewTool("usher_user_stats",
			mcp.WithDescription("Get order statistics (total orders and revenue) for a user account."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("id",
				mcp.Required(),
				mcp.Description("Account ID"),
			),
		),
		s.handleUserStats,
	)

	// ----- Moderation tools -----

	srv.AddTool(
		mcp.NewTool("usher_suspend_user",
			mcp.WithDescription(
				"Suspend a user account. A suspended account cannot log in and its "+
					"token stops working. Superuser accounts cannot be suspended.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithNumber("id",
				mcp.Required(),
				mcp.Description("Account ID"),
			),
		),
		s.handleSuspendUser,
	)

	srv.AddTool(
		mcp.NewTool("usher_unsuspend_user",
			mcp.WithDescription("Reactivate a suspended user account."),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithNumber("id",
				mcp.Required(),
				mcp.Description("Account ID"),
			),
		),
		s.handleUnsuspendUser,
	)
}

// userList is the tool result for usher_list_users.
type userList struct {
	Count    int64           `json:"count"`
	Page     int             `json:"page"`
	NumPages int             `json:"num_pages"`
	Results  []model.Account `json:"results"`
}

func (s *MCPServer) handleListUsers(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	page := optionalInt(request, "page", 1)
	p, err := s.accounts.List(ctx, page)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return toolError("Invalid page %d", page)
		}
		return toolError("Failed to list users: %v", err)
	}

	results := p.Accounts
	if results == nil {
		results = []model.Account{}
	}
	return successJSON(userList{
		Count:    p.Count,
		Page:     p.Page,
		NumPages: p.NumPages,
		Results:  results,
	})
}

func (s *MCPServer) handleGetUser(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireID(request)
	if err != nil {
		return toolError("%v", err)
	}
	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return accountError(id, err)
	}
	return successJSON(acct)
}

func (s *MCPServer) handleUserStats(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireID(request)
	if err != nil {
		return toolError("%v", err)
	}
	stats, err := s.accounts.Stats(ctx, id)
	if err != nil {
		return accountError(id, err)
	}
	return successJSON(stats)
}

func (s *MCPServer) handleSuspendUser(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireID(request)
	if err != nil {
		return toolError("%v", err)
	}
	if err := s.accounts.Suspend(ctx, id); err != nil {
		return accountError(id, err)
	}
	s.logger.Info("user suspended via MCP", "account_id", id, "actor", actor(ctx))
	return successJSON(model.StatusResponse{Status: "user suspended"})
}

func (s *MCPServer) handleUnsuspendUser(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireID(request)
	if err != nil {
		return toolError("%v", err)
	}
	if err := s.accounts.Unsuspend(ctx, id); err != nil {
		return accountError(id, err)
	}
	s.logger.Info("user unsuspended via MCP", "account_id", id, "actor", actor(ctx))
	return successJSON(model.StatusResponse{Status: "user unsuspended"})
}

// accountError turns a service error into a tool error the agent can read.
func accountError(id int64, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return toolError("User %d not found", id)
	case errors.Is(err, service.ErrForbidden):
		return toolError("Cannot suspend superuser account %d", id)
	default:
		return toolError("Operation on user %d failed: %v", id, err)
	}
}

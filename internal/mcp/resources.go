package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	usersURI       = "usher://users"
	userURIPrefix  = "usher://users/"
	userURIPattern = "usher://users/{id}"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// usher://users: first page of accounts
	srv.AddResource(
		mcp.NewResource(
			usersURI,
			"User Accounts",
			mcp.WithResourceDescription(
				"The newest user accounts (first page) with the total account count.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleUsersResource,
	)

	// usher://users/{id}: a single account (template)
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			userURIPattern,
			"User Account",
			mcp.WithTemplateDescription("A single user account by numeric ID."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleUserResource,
	)
}

func (s *MCPServer) handleUsersResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	p, err := s.accounts.List(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	summaries := make([]interface{}, 0, len(p.Accounts))
	for _, a := range p.Accounts {
		summaries = append(summaries, a.Summary())
	}
	return jsonContents(usersURI, map[string]interface{}{
		"count":     p.Count,
		"num_pages": p.NumPages,
		"results":   summaries,
	})
}

func (s *MCPServer) handleUserResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	raw := strings.TrimPrefix(uri, userURIPrefix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == uri || err != nil || id < 1 {
		return nil, fmt.Errorf("invalid user URI %q: expected %s", uri, userURIPattern)
	}

	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	return jsonContents(uri, acct)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

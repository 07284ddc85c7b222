// Package api exposes the profile store to an MCP-capable editor over
// stdio, so the editor side of the sync pair needs no bespoke plumbing.
// Every tool goes through the same Manager operations as the HTTP and file
// channels; there are no extra mutation paths.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stylist-dev/stylist/internal/profile"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *profile.Manager
	Version string
}

// NewMCPServer creates an MCP server with the stylist tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"stylist",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("stylist: persona/style profiles with self-adjusting topic affinities, synced to a companion extension."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_profiles",
			mcp.WithDescription("List all writing profiles with their ids, personas, and topic affinities."),
		),
		mcpListProfiles(deps),
	)

	s.AddTool(
		mcp.NewTool("set_active_profile",
			mcp.WithDescription("Select the active writing profile, or pass an empty id to clear the selection."),
			mcp.WithString("id", mcp.Description("Profile id to activate (empty clears)")),
		),
		mcpSetActiveProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("record_usage",
			mcp.WithDescription("Record one use of a profile: updates its topic affinities and usage counters. Safe to call for a deleted profile."),
			mcp.WithString("id", mcp.Description("Profile id"), mcp.Required()),
			mcp.WithString("prompt", mcp.Description("The prompt text that was refined")),
			mcp.WithArray("topics", mcp.Description("Topic names extracted from the prompt (1-6 expected)")),
		),
		mcpRecordUsage(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"profiles://config",
			"Profile Collection",
			mcp.WithResourceDescription("Current profile collection as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceConfig(deps),
	)

	return s
}

func mcpListProfiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cfg, err := deps.Store.GetAll()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read profiles: %v", err)), nil
		}

		b, err := json.Marshal(cfg)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profiles: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetActiveProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("id", "")

		if err := deps.Store.SetActive(id); err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				return mcpError(fmt.Sprintf("no profile with id %q", id)), nil
			}
			return mcpError(fmt.Sprintf("failed to set active profile: %v", err)), nil
		}

		if id == "" {
			return mcpText("Cleared active profile"), nil
		}
		return mcpText(fmt.Sprintf("Active profile is now %s", id)), nil
	}
}

func mcpRecordUsage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		prompt := req.GetString("prompt", "")
		topics := req.GetStringSlice("topics", nil)

		if err := deps.Store.Evolve(id, prompt, topics); err != nil {
			return mcpError(fmt.Sprintf("failed to record usage: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded usage for %s", id)), nil
	}
}

func mcpResourceConfig(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		cfg, err := deps.Store.GetAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read profiles: %w", err)
		}

		b, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profiles: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

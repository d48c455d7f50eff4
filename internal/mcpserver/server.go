// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes comicshelf tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/comicshelf/internal/library"
	"github.com/starford/comicshelf/internal/storage"
)

const contractURI = "comicshelf://execution-string"

// Server wraps the MCP server with comicshelf tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *library.Service
	covers storage.Provider
}

// New creates a new MCP server with all tools registered. covers receives
// images uploaded with set_cover; when nil the tool is not offered.
func New(svc *library.Service, covers storage.Provider, version string) *Server {
	s := &Server{svc: svc, covers: covers}

	s.mcp = server.NewMCPServer(
		"comicshelf",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_comics",
		mcp.WithDescription("List comics in the library, optionally filtered by tag or a title/author query."),
		mcp.WithString("tag", mcp.Description("Only comics carrying this tag")),
		mcp.WithString("query", mcp.Description("Case-insensitive match on title or author")),
		mcp.WithString("sort", mcp.Description("Sort field"), mcp.Enum("title", "author", "category", "random", "added")),
		mcp.WithBoolean("loved", mcp.Description("Only loved comics")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 50)")),
	), s.listComics)

	s.mcp.AddTool(mcp.NewTool("get_comic",
		mcp.WithDescription("Get full details of one comic, including its files and reading progress."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Comic identifier (author/title)")),
	), s.getComic)

	s.mcp.AddTool(mcp.NewTool("set_tags",
		mcp.WithDescription("Replace the tags of a comic."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Comic identifier")),
		mcp.WithArray("tags", mcp.Required(), mcp.WithStringItems(), mcp.Description("Complete new tag set")),
	), s.setTags)

	s.mcp.AddTool(mcp.NewTool("set_loved",
		mcp.WithDescription("Mark or unmark a comic as loved. Loving a comic clears disliked."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Comic identifier")),
		mcp.WithBoolean("loved", mcp.Required(), mcp.Description("New flag value")),
	), s.setLoved)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List all tags with the number of comics carrying each."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("tokenize",
		mcp.WithDescription("Expand an execution string into an argument list. "+
			"Read the grammar first via get_execution_string_contract or the "+contractURI+" resource."),
		mcp.WithString("format", mcp.Required(), mcp.Description("Execution string, e.g. {all:,}")),
		mcp.WithString("id", mcp.Description("Comic to expand against; placeholders when empty")),
	), s.tokenize)

	s.mcp.AddTool(mcp.NewTool("get_execution_string_contract",
		mcp.WithDescription("Returns the execution string grammar used for launch commands."),
	), s.getContract)

	s.mcp.AddTool(mcp.NewTool("rescan",
		mcp.WithDescription("Scan the library folders and reconcile the catalog."),
	), s.rescan)

	s.mcp.AddTool(mcp.NewTool("run_extension",
		mcp.WithDescription("Run a configured extension over comics and return its status line."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Extension name")),
		mcp.WithArray("ids", mcp.WithStringItems(), mcp.Description("Comic identifiers; empty runs over all")),
	), s.runExtension)

	if covers != nil {
		s.mcp.AddTool(mcp.NewTool("set_cover",
			mcp.WithDescription("Download an image (http/https URL or base64 data URI) and use it as a comic's thumbnail."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Comic identifier")),
			mcp.WithString("url", mcp.Required(), mcp.Description("Image URL or data URI")),
		), s.setCover)
	}

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Execution String Format",
			mcp.WithResourceDescription("Grammar of the launch command execution strings."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listComics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.List(ctx, library.ListOptions{
		Tag:       req.GetString("tag", ""),
		Query:     req.GetString("query", ""),
		Sort:      req.GetString("sort", ""),
		LovedOnly: req.GetBool("loved", false),
		Limit:     req.GetInt("limit", 50),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"comics": items, "total": total})
}

func (s *Server) getComic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(c)
}

func (s *Server) setTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := req.RequireStringSlice("tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.SetTags(ctx, id, tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("tagged %s: %s", id, strings.Join(c.Tags, ", "))), nil
}

func (s *Server) setLoved(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	loved, err := req.RequireBool("loved")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.SetLoved(ctx, id, loved); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("loved %s: %t", id, loved)), nil
}

func (s *Server) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.Tags(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("no tags found"), nil
	}
	lines := make([]string, len(tags))
	for i, t := range tags {
		lines[i] = fmt.Sprintf("%s\t%d", t.Name, t.Count)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) tokenize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args, err := s.svc.Tokenize(ctx, format, req.GetString("id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(args)
}

func (s *Server) rescan(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Rescan(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("scan %s: %d added, %d removed, %d unchanged",
		res.ScanID, len(res.Additions), len(res.Removals), res.Unchanged)), nil
}

func (s *Server) runExtension(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := s.svc.RunExtension(ctx, name, req.GetStringSlice("ids", nil))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(status), nil
}

func (s *Server) getContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ExecutionStringContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ExecutionStringContract,
		},
	}, nil
}

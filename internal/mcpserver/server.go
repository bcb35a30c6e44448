// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the character store to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/charforge/internal/apperr"
	"github.com/starford/charforge/internal/charservice"
	"github.com/starford/charforge/internal/models"
)

const formatURI = "charforge://character-format"

// Server wraps the MCP server with character tools.
type Server struct {
	mcp *server.MCPServer
	svc *charservice.Service
}

// New creates a new MCP server with all character tools registered.
func New(svc *charservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Charforge",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_characters",
		mcp.WithDescription("List stored characters, most recently updated first."),
	), s.listCharacters)

	s.mcp.AddTool(mcp.NewTool("get_character",
		mcp.WithDescription("Read the full JSON record of one character."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Character id")),
	), s.getCharacter)

	s.mcp.AddTool(mcp.NewTool("save_character",
		mcp.WithDescription("Create or replace a character. The record MUST follow the "+
			"character format; read it first via get_character_format or the "+
			formatURI+" resource."),
		mcp.WithString("character", mcp.Required(), mcp.Description("Full character record as JSON")),
		mcp.WithString("if_match", mcp.Description("updatedAt of the version you last read")),
		mcp.WithBoolean("force", mcp.Description("Overwrite regardless of the stored version")),
	), s.saveCharacter)

	s.mcp.AddTool(mcp.NewTool("delete_character",
		mcp.WithDescription("Delete one character."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Character id")),
	), s.deleteCharacter)

	s.mcp.AddTool(mcp.NewTool("get_character_format",
		mcp.WithDescription("Returns the character record format. "+
			"Call this before saving characters to ensure correct structure."),
	), s.getCharacterFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Character Record Format",
			mcp.WithResourceDescription("JSON format that all character records must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listCharacters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items), nil
}

func (s *Server) getCharacter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sheet, err := s.svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sheet), nil
}

func (s *Server) saveCharacter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("character")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var sheet models.CharacterSheet
	if err := json.Unmarshal([]byte(raw), &sheet); err != nil {
		return mcp.NewToolResultError("character is not valid JSON: " + err.Error()), nil
	}

	var pre charservice.Precondition
	if tag := req.GetString("if_match", ""); tag != "" {
		at, err := models.ParseETag(tag)
		if err != nil {
			return mcp.NewToolResultError("if_match is not a timestamp: " + tag), nil
		}
		pre.IfMatch = at
	}

	saved, err := s.svc.Save(ctx, &sheet, pre, req.GetBool("force", false))
	if err != nil {
		var conflict *apperr.ConflictError
		var invalid *apperr.ValidationError
		switch {
		case errors.As(err, &conflict):
			out, _ := json.MarshalIndent(conflict.Current, "", "  ")
			return mcp.NewToolResultError("conflict: stored record is newer\n" + string(out)), nil
		case errors.As(err, &invalid):
			return mcp.NewToolResultError("invalid character:\n" + strings.Join(invalid.Problems, "\n")), nil
		default:
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return jsonResult(saved), nil
}

func (s *Server) deleteCharacter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) getCharacterFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CharacterFormatContract), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     CharacterFormatContract,
		},
	}, nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kalambet/cvmatch/internal/cv"
	"github.com/kalambet/cvmatch/internal/logger"
	"github.com/kalambet/cvmatch/internal/matcher"
)

const currentCVURI = "cv://current"

// NewMCPServer creates an MCP server exposing the CV store and the match
// analyzer as tools. It shares deps with the HTTP handler, so both see the
// same current CV when run in one process.
func NewMCPServer(deps Deps) *server.MCPServer {
	deps.Logger = logger.OrNop(deps.Logger)

	s := server.NewMCPServer(
		serviceName,
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cvmatch stores a candidate CV and scores job descriptions against it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("has_cv",
			mcp.WithDescription("Report whether a current CV is stored."),
		),
		mcpHasCV(deps),
	)

	s.AddTool(
		mcp.NewTool("get_current_cv",
			mcp.WithDescription("Return the current CV record as JSON."),
		),
		mcpGetCurrentCV(deps),
	)

	s.AddTool(
		mcp.NewTool("store_cv",
			mcp.WithDescription("Store a CV and make it the current one."),
			mcp.WithString("raw_text", mcp.Description("Full CV text"), mcp.Required()),
			mcp.WithArray("tech_stack", mcp.Description("Optional list of technologies")),
		),
		mcpStoreCV(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_job",
			mcp.WithDescription("Score a job description against the current CV. Returns match score, strengths, gaps and recommendations."),
			mcp.WithString("job_description", mcp.Description("Job description text"), mcp.Required()),
		),
		mcpAnalyzeJob(deps),
	)

	s.AddResource(
		mcp.NewResource(
			currentCVURI,
			"Current CV",
			mcp.WithResourceDescription("The current CV record as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCurrentCV(deps),
	)

	return s
}

func mcpHasCV(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, _ := json.Marshal(map[string]bool{"has_cv": deps.CVs.HasCurrent()})
		return mcpText(string(b)), nil
	}
}

func mcpGetCurrentCV(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec, ok := deps.CVs.Current()
		if !ok {
			return mcpError("no CV data stored yet"), nil
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal CV: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpStoreCV(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("raw_text")
		if err != nil || strings.TrimSpace(raw) == "" {
			return mcpError("raw_text is required"), nil
		}

		rc := deps.CVs.Save(cv.Input{
			RawText:   raw,
			TechStack: req.GetStringSlice("tech_stack", nil),
		})
		deps.Logger.Info("cv stored via mcp", zap.String("cv_id", rc.ID))

		return mcpText(fmt.Sprintf("Stored CV %s", rc.ID)), nil
	}
}

func mcpAnalyzeJob(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jd, err := req.RequireString("job_description")
		if err != nil || strings.TrimSpace(jd) == "" {
			return mcpError("job_description is required"), nil
		}

		resp, err := runAnalysis(ctx, deps, strings.TrimSpace(jd), sourceText)
		if errors.Is(err, matcher.ErrUnavailable) {
			return mcpError("analysis not available: no API key configured"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("analysis failed: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceCurrentCV(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		rec, ok := deps.CVs.Current()
		if !ok {
			return nil, errors.New("no CV data stored yet")
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal CV: %w", err)
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

package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/copperline/tagmap/internal/report"
)

func registerLatestRunResource(s *server.MCPServer, engine *report.Engine) {
	resource := mcp.NewResource(
		"tagmap://runs/latest",
		"Latest Analysis Run",
		mcp.WithResourceDescription("Report for the most recent analysis run: cluster tables for both labelings, explained variance per component, and the agreement between the labelings."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		rep, err := engine.GetRunReport(ctx, "")
		if err != nil {
			payload := map[string]interface{}{
				"available": false,
				"message":   err.Error(),
			}
			data, _ := json.MarshalIndent(payload, "", "  ")
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
			}, nil
		}

		data, _ := json.MarshalIndent(rep, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerStatsResource(s *server.MCPServer, engine *report.Engine) {
	resource := mcp.NewResource(
		"tagmap://stats",
		"Corpus Statistics",
		mcp.WithResourceDescription("Counts of imported talks, tag assignments, distinct tags, and analysis runs, plus the most common tags."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := engine.GetStats(ctx)
		if err != nil {
			return nil, err
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

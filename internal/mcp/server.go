// Package mcp provides a Model Context Protocol server for tagmap.
//
// It exposes the analysis results (runs, cluster labelings, component
// variance, talk lookup) as read-only MCP tools, and the latest run and
// corpus statistics as MCP resources. Supports the stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/copperline/tagmap/internal/report"
	"github.com/copperline/tagmap/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   store.Store
	DBPath  string
	Version string // version string for MCP server info
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines,
// and in-memory SQLite databases see one connection at a time. A global
// mutex keeps reads ordered behind whatever wrote before them.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all tagmap tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"tagmap",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = store.DefaultDBPath
	}
	reportEngine := report.NewEngine(cfg.Store, dbPath)

	// Register tools
	registerListRunsTool(s, cfg.Store)
	registerRunReportTool(s, reportEngine)
	registerClusterMembersTool(s, cfg.Store)
	registerTopTagsTool(s, cfg.Store)
	registerVarianceTool(s, cfg.Store)
	registerFindTalksTool(s, cfg.Store)

	// Register resources
	registerLatestRunResource(s, reportEngine)
	registerStatsResource(s, reportEngine)

	return s
}

// resolveRun turns an id, a unique prefix, or the empty string (latest)
// into a run row, or an error result ready to return to the client.
func resolveRun(ctx context.Context, st store.Store, idOrPrefix string) (*store.Run, *mcp.CallToolResult) {
	run, err := st.FindRun(ctx, idOrPrefix)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("resolving run: %v", err))
	}
	if run == nil {
		if idOrPrefix == "" {
			return nil, mcp.NewToolResultError("no analysis runs found (run 'tagmap analyze' first)")
		}
		return nil, mcp.NewToolResultError(fmt.Sprintf("run %q not found", idOrPrefix))
	}
	return run, nil
}

// --- Tools ---

func registerListRunsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("tagmap_list_runs",
		mcp.WithDescription("List persisted analysis runs, newest first, with their linkage, cut height, and talk/tag counts."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to return (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		limit := 20
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			if l := int(limitVal); l > 0 {
				limit = l
			}
		}
		if limit > 100 {
			limit = 100
		}

		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing runs: %v", err)), nil
		}

		data, _ := json.MarshalIndent(runs, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRunReportTool(s *server.MCPServer, engine *report.Engine) {
	tool := mcp.NewTool("tagmap_run_report",
		mcp.WithDescription("Full report for one analysis run: cluster tables for both labelings with top tags, the variance ladder, and the agreement between the labelings."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("run",
			mcp.Description("Run id or unique prefix. Empty = latest run."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		runID := ""
		if r, err := req.RequireString("run"); err == nil {
			runID = r
		}

		rep, err := engine.GetRunReport(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("report error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(rep, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerClusterMembersTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("tagmap_cluster_members",
		mcp.WithDescription("List the talks assigned to one cluster of a run's labeling."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("cluster",
			mcp.Required(),
			mcp.Description("Cluster id from the run report"),
		),
		mcp.WithString("run",
			mcp.Description("Run id or unique prefix. Empty = latest run."),
		),
		mcp.WithString("variant",
			mcp.Description("Labeling variant: tags (raw tag space) or pca (component space). Default: tags."),
			mcp.Enum(store.VariantTags, store.VariantPCA),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of members to return (default: 50, max: 500)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		clusterVal, err := req.RequireFloat("cluster")
		if err != nil {
			return mcp.NewToolResultError("cluster is required"), nil
		}
		cluster := int(clusterVal)

		runID := ""
		if r, err := req.RequireString("run"); err == nil {
			runID = r
		}
		variant := store.VariantTags
		if v, err := req.RequireString("variant"); err == nil && v != "" {
			if v != store.VariantTags && v != store.VariantPCA {
				return mcp.NewToolResultError(fmt.Sprintf("invalid variant %q: use tags or pca", v)), nil
			}
			variant = v
		}
		limit := 50
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			if l := int(limitVal); l > 0 {
				limit = l
			}
		}
		if limit > 500 {
			limit = 500
		}

		run, errResult := resolveRun(ctx, st, runID)
		if errResult != nil {
			return errResult, nil
		}

		members, err := st.ClusterMembers(ctx, run.ID, variant, cluster, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading members: %v", err)), nil
		}

		payload := map[string]interface{}{
			"run":     run.ID,
			"variant": variant,
			"cluster": cluster,
			"count":   len(members),
			"members": members,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerTopTagsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("tagmap_top_tags",
		mcp.WithDescription("The most frequently assigned tags across the imported talks, most common first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of tags to return (default: 10, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		limit := 10
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			if l := int(limitVal); l > 0 {
				limit = l
			}
		}
		if limit > 100 {
			limit = 100
		}

		tags, err := st.TopTags(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading top tags: %v", err)), nil
		}

		data, _ := json.MarshalIndent(tags, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerVarianceTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("tagmap_variance",
		mcp.WithDescription("Explained variance per principal component for one run, with the cumulative fraction."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("run",
			mcp.Description("Run id or unique prefix. Empty = latest run."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		runID := ""
		if r, err := req.RequireString("run"); err == nil {
			runID = r
		}

		run, errResult := resolveRun(ctx, st, runID)
		if errResult != nil {
			return errResult, nil
		}

		comps, err := st.ComponentSummary(ctx, run.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading variance: %v", err)), nil
		}

		type varianceRow struct {
			Component  int     `json:"component"`
			Variance   float64 `json:"variance"`
			Fraction   float64 `json:"fraction"`
			Cumulative float64 `json:"cumulative"`
		}
		rows := make([]varianceRow, 0, len(comps))
		cumulative := 0.0
		for _, c := range comps {
			cumulative += c.Fraction
			rows = append(rows, varianceRow{
				Component:  c.Ordinal,
				Variance:   c.Variance,
				Fraction:   c.Fraction,
				Cumulative: cumulative,
			})
		}

		payload := map[string]interface{}{
			"run":        run.ID,
			"components": rows,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerFindTalksTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("tagmap_find_talks",
		mcp.WithDescription("Find imported talks whose URL, title, or tags contain a substring."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Substring to search for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of talks to return (default: 25, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		limit := 25
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			if l := int(limitVal); l > 0 {
				limit = l
			}
		}
		if limit > 100 {
			limit = 100
		}

		talks, err := st.FindTalks(ctx, query, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("finding talks: %v", err)), nil
		}

		payload := map[string]interface{}{
			"query": query,
			"count": len(talks),
			"talks": talks,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/waypoint/internal/adapters/server/common"
	"github.com/hylla/waypoint/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the planning tools.
func NewHandler(cfg Config, service common.PlanningService) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("planning service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerMilestoneTools(mcpSrv, service)
	registerDependencyTools(mcpSrv, service)
	registerRoadmapTools(mcpSrv, service)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "waypoint"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerMilestoneTools registers milestone listing and progress tools.
func registerMilestoneTools(srv *mcpserver.MCPServer, service common.PlanningService) {
	srv.AddTool(
		mcp.NewTool(
			"waypoint.list_milestones",
			mcp.WithDescription("List a tenant's milestones with derived progress, overdue flag and dependency ids."),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tenantID, err := req.RequireString("tenant_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			milestones, err := service.ListMilestones(ctx, tenantID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"milestones": milestones,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_milestones result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"waypoint.milestone_progress",
			mcp.WithDescription("Explain one milestone's progress: mode, weighted linked tasks and the rounded percentage."),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant identifier")),
			mcp.WithString("milestone_id", mcp.Required(), mcp.Description("Milestone identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tenantID, err := req.RequireString("tenant_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			milestoneID, err := req.RequireString("milestone_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			report, err := service.MilestoneProgress(ctx, tenantID, milestoneID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(report)
			if err != nil {
				return nil, fmt.Errorf("encode milestone_progress result: %w", err)
			}
			return result, nil
		},
	)
}

// dependencyToolOptions lists the shared arguments of the dependency tools.
func dependencyToolOptions(description string) []mcp.ToolOption {
	types := make([]string, 0, 4)
	for _, t := range domain.DependencyTypes() {
		types = append(types, string(t))
	}
	return []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant identifier")),
		mcp.WithString("milestone_id", mcp.Required(), mcp.Description("Dependent milestone")),
		mcp.WithString("depends_on_milestone_id", mcp.Required(), mcp.Description("Prerequisite milestone")),
		mcp.WithString("type", mcp.Description("Dependency type (defaults to finish_to_start)"), mcp.Enum(types...)),
		mcp.WithNumber("lag_days", mcp.Description("Descriptive lag in days")),
	}
}

// dependencyRequestFrom reads the shared dependency tool arguments.
func dependencyRequestFrom(req mcp.CallToolRequest) (common.DependencyRequest, error) {
	tenantID, err := req.RequireString("tenant_id")
	if err != nil {
		return common.DependencyRequest{}, err
	}
	milestoneID, err := req.RequireString("milestone_id")
	if err != nil {
		return common.DependencyRequest{}, err
	}
	dependsOn, err := req.RequireString("depends_on_milestone_id")
	if err != nil {
		return common.DependencyRequest{}, err
	}
	return common.DependencyRequest{
		TenantID:             tenantID,
		MilestoneID:          milestoneID,
		DependsOnMilestoneID: dependsOn,
		Type:                 req.GetString("type", ""),
		LagDays:              req.GetInt("lag_days", 0),
	}, nil
}

// registerDependencyTools registers the dry-run and committing dependency tools.
func registerDependencyTools(srv *mcpserver.MCPServer, service common.PlanningService) {
	srv.AddTool(
		mcp.NewTool(
			"waypoint.check_dependency",
			dependencyToolOptions("Validate a proposed dependency without storing it. Returns accepted or the rejection reason.")...,
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			in, err := dependencyRequestFrom(req)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			decision, err := service.CheckDependency(ctx, in)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(decision)
			if err != nil {
				return nil, fmt.Errorf("encode check_dependency result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"waypoint.add_dependency",
			dependencyToolOptions("Validate and store a dependency. Rejections name the reason, and cycles include the closing path.")...,
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			in, err := dependencyRequestFrom(req)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			dep, err := service.AddDependency(ctx, in)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(dep)
			if err != nil {
				return nil, fmt.Errorf("encode add_dependency result: %w", err)
			}
			return result, nil
		},
	)
}

// registerRoadmapTools registers the layout and rollup tools.
func registerRoadmapTools(srv *mcpserver.MCPServer, service common.PlanningService) {
	srv.AddTool(
		mcp.NewTool(
			"waypoint.roadmap",
			mcp.WithDescription("Compute the tenant roadmap: window, row placements, dependency arrows and schedule warnings."),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tenantID, err := req.RequireString("tenant_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			roadmap, err := service.Roadmap(ctx, tenantID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(roadmap)
			if err != nil {
				return nil, fmt.Errorf("encode roadmap result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"waypoint.rollup",
			mcp.WithDescription("Summarize dependency health: blocked milestones, unresolved edges and schedule warnings."),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tenantID, err := req.RequireString("tenant_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rollup, err := service.Rollup(ctx, tenantID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(rollup)
			if err != nil {
				return nil, fmt.Errorf("encode rollup result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	var rejected *common.RejectionError
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.As(err, &rejected):
		return mcp.NewToolResultError(rejected.Reason + ": " + rejected.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("conflict: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

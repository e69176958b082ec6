package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/tablekeeper/internal/maintainer"
	"github.com/faucetdb/tablekeeper/internal/model"
)

// registerTools registers the maintenance tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("tablekeeper_list_targets",
			mcp.WithDescription(
				"List the configured database targets. Use this first to discover "+
					"which MySQL or MariaDB servers can be inspected.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListTargets,
	)

	srv.AddTool(
		mcp.NewTool("tablekeeper_features",
			mcp.WithDescription(
				"Show the detected feature matrix of a target (flavor, persistent "+
					"statistics, histograms, page compression, privileges) together with "+
					"the global maintenance settings.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			targetParam(),
		),
		s.handleFeatures,
	)

	// ----- Planning tools -----

	srv.AddTool(
		mcp.NewTool("tablekeeper_suggest",
			mcp.WithDescription(
				"Refresh the diagnostics of a schema and return the tables with pending "+
					"maintenance suggestions (repair, check, compress, optimize, analyze, "+
					"histogram, fulltext rebuild), smallest tables first.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			targetParam(),
			schemaParam(),
			tablesParam(),
		),
		s.handleSuggest,
	)

	srv.AddTool(
		mcp.NewTool("tablekeeper_commands",
			mcp.WithDescription(
				"Render the SQL statements that a maintenance run would execute, "+
					"without executing anything. Set flatten to get one script wrapped in "+
					"maintenance mode; set integrate to include the bookkeeping updates.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			targetParam(),
			schemaParam(),
			tablesParam(),
			mcp.WithBoolean("integrate",
				mcp.Description("Include bookkeeping UPDATE statements for the tracking store"),
			),
			mcp.WithBoolean("flatten",
				mcp.Description("Return a single ordered script instead of per-table commands"),
			),
		),
		s.handleCommands,
	)

	// ----- Execution tool -----

	if s.allowRun {
		srv.AddTool(
			mcp.NewTool("tablekeeper_run",
				mcp.WithDescription(
					"Execute the auto-run maintenance actions of a schema and return the "+
						"per-table result tree. Only actions whose auto-run flag is enabled "+
						"are executed; the others are reported as skipped.",
				),
				mcp.WithToolAnnotation(mutatingAnnotation()),
				targetParam(),
				schemaParam(),
				tablesParam(),
			),
			s.handleRun,
		)
	}
}

func targetParam() mcp.ToolOption {
	return mcp.WithString("target",
		mcp.Required(),
		mcp.Description("Name of the configured database target"),
	)
}

func schemaParam() mcp.ToolOption {
	return mcp.WithString("schema",
		mcp.Required(),
		mcp.Description("Schema (database) to maintain"),
	)
}

func tablesParam() mcp.ToolOption {
	return mcp.WithArray("tables",
		mcp.Description("Restrict to these tables. Omit for the whole schema."),
		mcp.WithStringItems(),
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

// handleListTargets returns the configured targets.
func (s *MCPServer) handleListTargets(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	targets := s.sessions.Targets()
	if targets == nil {
		targets = []string{}
	}
	return successJSON(targets)
}

// handleFeatures returns the feature matrix and settings of a target.
func (s *MCPServer) handleFeatures(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	target, err := requireString(request, "target")
	if err != nil {
		return toolError("%v. Available targets: %v", err, s.sessions.Targets())
	}

	var out struct {
		Features model.FeatureMatrix `json:"features"`
		Settings model.Settings      `json:"settings"`
	}
	err = s.sessions.With(ctx, target, func(m *maintainer.Maintainer) error {
		out.Features = m.Features()
		out.Settings = m.Settings()
		return nil
	})
	if err != nil {
		return s.failure(target, err)
	}
	return successJSON(out)
}

// handleSuggest refreshes diagnostics and returns the pending suggestions.
func (s *MCPServer) handleSuggest(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	target, schema, err := s.targetAndSchema(request)
	if err != nil {
		return toolError("%v", err)
	}

	var out []model.Suggestion
	err = s.sessions.With(ctx, target, func(m *maintainer.Maintainer) error {
		var err error
		out, err = m.Suggest(ctx, schema, optionalTables(request))
		return err
	})
	if err != nil {
		return s.failure(target, err)
	}
	if out == nil {
		out = []model.Suggestion{}
	}
	return successJSON(out)
}

// handleCommands renders the maintenance plan.
func (s *MCPServer) handleCommands(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	target, schema, err := s.targetAndSchema(request)
	if err != nil {
		return toolError("%v", err)
	}

	var plan *model.Plan
	err = s.sessions.With(ctx, target, func(m *maintainer.Maintainer) error {
		var err error
		plan, err = m.GetCommands(ctx, schema, optionalTables(request),
			optionalBool(request, "integrate"), optionalBool(request, "flatten"))
		return err
	})
	if err != nil {
		return s.failure(target, err)
	}
	return successJSON(plan)
}

// handleRun executes an auto-run maintenance pass.
func (s *MCPServer) handleRun(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	target, schema, err := s.targetAndSchema(request)
	if err != nil {
		return toolError("%v", err)
	}

	var res *model.RunResult
	err = s.sessions.With(ctx, target, func(m *maintainer.Maintainer) error {
		var err error
		res, err = m.AutoProcess(ctx, schema, optionalTables(request))
		return err
	})
	if err != nil {
		return s.failure(target, err)
	}
	s.logger.Info("run finished via MCP", "target", target, "schema", schema,
		"run_id", res.RunID, "failures", res.Failures())
	return successJSON(res)
}

func (s *MCPServer) targetAndSchema(request mcp.CallToolRequest) (string, string, error) {
	target, err := requireString(request, "target")
	if err != nil {
		return "", "", err
	}
	schema, err := requireString(request, "schema")
	if err != nil {
		return "", "", err
	}
	return target, schema, nil
}

// failure turns a domain error into a tool error with a hint the agent can
// act on.
func (s *MCPServer) failure(target string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, model.ErrLocked):
		return toolError("Another run holds the maintenance lock on %q: %v. Retry later.", target, err)
	case errors.Is(err, model.ErrValidation):
		return toolError("%v. Available targets: %v", err, s.sessions.Targets())
	default:
		return toolError("Target %q: %v", target, err)
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/tablekeeper/internal/maintainer"
)

const (
	targetsURI     = "tablekeeper://targets"
	featuresPrefix = "tablekeeper://features/"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			targetsURI,
			"Configured Targets",
			mcp.WithResourceDescription("Names of the database targets available for maintenance."),
			mcp.WithMIMEType("application/json"),
		),
		s.handleTargetsResource,
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			featuresPrefix+"{target}",
			"Target Features",
			mcp.WithTemplateDescription(
				"Detected feature matrix of a target: flavor, statistics and "+
					"histogram support, compression and privileges.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleFeaturesResource,
	)
}

// handleTargetsResource returns a JSON list of the configured targets.
func (s *MCPServer) handleTargetsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	return jsonResource(targetsURI, s.sessions.Targets())
}

// handleFeaturesResource returns the feature matrix of one target.
func (s *MCPServer) handleFeaturesResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	target := strings.TrimPrefix(uri, featuresPrefix)
	if target == "" || target == uri {
		return nil, fmt.Errorf("invalid features URI %q: expected %s{target}", uri, featuresPrefix)
	}

	var features interface{}
	err := s.sessions.With(ctx, target, func(m *maintainer.Maintainer) error {
		features = m.Features()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", target, err)
	}
	return jsonResource(uri, features)
}

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
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

package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/faucetdb/tablekeeper/internal/model"
)

const (
	tagTargets     = "targets"
	tagMaintenance = "maintenance"
)

// Generate builds the OpenAPI 3.1 document of the HTTP API.
func Generate(version, baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "tablekeeper API",
			Description: "Maintenance suggestions, plans and runs for MySQL and MariaDB schemas.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
	}

	doc.Components.Schemas["ErrorResponse"] = SchemaOf(model.ErrorResponse{})
	doc.Components.Schemas["Suggestion"] = SchemaOf(model.Suggestion{})
	doc.Components.Schemas["Plan"] = SchemaOf(model.Plan{})
	doc.Components.Schemas["RunResult"] = SchemaOf(model.RunResult{})
	doc.Components.Schemas["Features"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"features": SchemaOf(model.FeatureMatrix{}),
				"settings": SchemaOf(model.Settings{}),
			},
		},
	}

	doc.Paths = openapi3.NewPaths()
	addPaths(doc)
	return doc
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func addPaths(doc *openapi3.T) {
	targetParam := pathParameter("target", "Name of the configured database target.")
	schemaParam := pathParameter("schema", "Schema (database) to maintain.")
	tableParam := &openapi3.ParameterRef{Value: openapi3.NewQueryParameter("table").
		WithDescription("Restrict to these tables. Repeat or comma-separate for several.").
		WithSchema(openapi3.NewStringSchema())}

	doc.Paths.Set("/api/v1/targets", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{tagTargets},
			Summary:     "List targets",
			OperationID: "list_targets",
			Responses:   newResponses("200", "Configured target names", listSchema(openapi3.NewStringSchema().NewRef())),
		},
	})

	doc.Paths.Set("/api/v1/{target}/features", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{tagTargets},
			Summary:     "Show the feature matrix and global settings of a target",
			OperationID: "get_features",
			Parameters:  openapi3.Parameters{targetParam},
			Responses:   newResponses("200", "Feature matrix and settings", ref("Features")),
		},
	})

	doc.Paths.Set("/api/v1/{target}/{schema}/suggestions", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{tagMaintenance},
			Summary:     "Refresh diagnostics and list pending suggestions",
			Description: "Tables with at least one pending action, smallest first.",
			OperationID: "get_suggestions",
			Parameters:  openapi3.Parameters{targetParam, schemaParam, tableParam},
			Responses:   newResponses("200", "Pending suggestions", listSchema(ref("Suggestion"))),
		},
	})

	doc.Paths.Set("/api/v1/{target}/{schema}/commands", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{tagMaintenance},
			Summary:     "Render the maintenance plan without executing it",
			OperationID: "get_commands",
			Parameters: openapi3.Parameters{
				targetParam, schemaParam, tableParam,
				boolQueryParameter("integrate", "Include bookkeeping UPDATE statements."),
				boolQueryParameter("flatten", "Return one ordered script wrapped in maintenance mode."),
			},
			Responses: newResponses("200", "Maintenance plan", ref("Plan")),
		},
	})

	runResponses := newResponses("200", "Run result tree", ref("RunResult"))
	conflict := "Another run holds the maintenance lock"
	runResponses.Set("409", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &conflict,
			Content:     openapi3.NewContentWithJSONSchemaRef(ref("ErrorResponse")),
		},
	})
	doc.Paths.Set("/api/v1/{target}/{schema}/run", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{tagMaintenance},
			Summary:     "Execute the auto-run maintenance actions",
			Description: "Requires a token with the run scope. Actions without auto-run are reported as skipped.",
			OperationID: "run_maintenance",
			Parameters:  openapi3.Parameters{targetParam, schemaParam, tableParam},
			Responses:   runResponses,
		},
	})
}

func pathParameter(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewPathParameter(name).
		WithDescription(description).
		WithSchema(openapi3.NewStringSchema())}
}

func boolQueryParameter(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(name).
		WithDescription(description).
		WithSchema(openapi3.NewBoolSchema())}
}

func listSchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: items,
					},
				},
				"meta": SchemaOf(model.ResponseMeta{}),
			},
		},
	}
}

// newResponses builds a response set with the given success response plus
// the standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := ref("ErrorResponse")
	for _, e := range []struct{ code, desc string }{
		{"400", "Bad request"},
		{"401", "Unauthorized"},
		{"404", "Not found"},
		{"500", "Internal server error"},
		{"502", "Database error"},
	} {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

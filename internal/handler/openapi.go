package handler

import (
	"net/http"

	"github.com/faucetdb/tablekeeper/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI document of the HTTP API.
type OpenAPIHandler struct {
	version string
}

// NewOpenAPIHandler creates an OpenAPIHandler reporting version.
func NewOpenAPIHandler(version string) *OpenAPIHandler {
	return &OpenAPIHandler{version: version}
}

// ServeSpec handles GET /openapi.json.
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	doc := openapi.Generate(h.version, scheme+"://"+r.Host)
	writeJSON(w, http.StatusOK, doc)
}

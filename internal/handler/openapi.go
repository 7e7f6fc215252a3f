package handler

import (
	"net/http"

	"github.com/wardenmcp/warden/internal/gateway"
	"github.com/wardenmcp/warden/internal/openapi"
)

// OpenAPIHandler serves the generated API document.
type OpenAPIHandler struct {
	registry *gateway.Registry
	version  string
}

// NewOpenAPIHandler creates an OpenAPIHandler.
func NewOpenAPIHandler(registry *gateway.Registry, version string) *OpenAPIHandler {
	return &OpenAPIHandler{registry: registry, version: version}
}

// ServeSpec renders the OpenAPI document for the running instance.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	doc := openapi.Generate(scheme+"://"+r.Host, h.version, h.registry.Names())
	writeJSON(w, http.StatusOK, doc)
}

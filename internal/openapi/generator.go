// Package openapi generates the OpenAPI 3.1 document describing Warden's
// gateway and management API.
package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Generate builds the OpenAPI spec for the gateway API, listing the
// registered backend names in the description of the call endpoint.
func Generate(baseURL, version string, backendNames []string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Warden API",
			Description: "Governance gateway for MCP and JSON-RPC backend servers.",
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

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerAuth": {}},
	}

	doc.Components.Schemas["ErrorResponse"] = errorResponseSchema()
	doc.Components.Schemas["CallRequest"] = callRequestSchema(backendNames)
	doc.Components.Schemas["CallResult"] = callResultSchema()
	doc.Components.Schemas["ApprovalRequest"] = approvalRequestSchema()

	doc.Paths = openapi3.NewPaths()
	addCallPath(doc)
	addApprovalPaths(doc)
	addAuditPath(doc)

	return doc
}

func addCallPath(doc *openapi3.T) {
	op := openapi3.NewOperation()
	op.OperationID = "call"
	op.Summary = "Invoke an operation on a backend through the governance pipeline"
	op.Tags = []string{"gateway"}
	op.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(refSchema("CallRequest")),
	}
	op.AddResponse(200, jsonResponse("Operation result", "CallResult"))
	op.AddResponse(202, jsonResponse("Approval pending", "CallResult"))
	op.AddResponse(403, jsonResponse("Permission denied or approval refused", "ErrorResponse"))
	op.AddResponse(429, jsonResponse("Rate limit exceeded", "ErrorResponse"))
	op.AddResponse(502, jsonResponse("Backend unavailable", "ErrorResponse"))

	doc.Paths.Set("/api/v1/call", &openapi3.PathItem{Post: op})
}

func addApprovalPaths(doc *openapi3.T) {
	idParam := &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter("approvalId").
			WithSchema(openapi3.NewStringSchema()),
	}

	get := openapi3.NewOperation()
	get.OperationID = "getApproval"
	get.Summary = "Fetch one approval request"
	get.Tags = []string{"approval"}
	get.AddParameter(idParam.Value)
	get.AddResponse(200, jsonResponse("Approval request", "ApprovalRequest"))
	get.AddResponse(404, jsonResponse("Not found", "ErrorResponse"))
	doc.Paths.Set("/api/v1/approval/{approvalId}", &openapi3.PathItem{Get: get})

	list := openapi3.NewOperation()
	list.OperationID = "listApprovals"
	list.Summary = "List approval requests"
	list.Tags = []string{"approval"}
	list.AddParameter(openapi3.NewQueryParameter("state").WithSchema(openapi3.NewStringSchema()))
	list.AddResponse(200, jsonResponse("Approval requests", "ApprovalRequest"))
	doc.Paths.Set("/api/v1/approval", &openapi3.PathItem{Get: list})

	for _, action := range []string{"approve", "reject", "cancel"} {
		op := openapi3.NewOperation()
		op.OperationID = action + "Approval"
		op.Summary = "Transition an approval request (" + action + ")"
		op.Tags = []string{"approval"}
		op.AddParameter(idParam.Value)
		op.AddResponse(200, jsonResponse("Updated approval request", "ApprovalRequest"))
		op.AddResponse(409, jsonResponse("Already in a terminal state", "ErrorResponse"))
		doc.Paths.Set("/api/v1/approval/{approvalId}/"+action, &openapi3.PathItem{Post: op})
	}
}

func addAuditPath(doc *openapi3.T) {
	op := openapi3.NewOperation()
	op.OperationID = "searchAudit"
	op.Summary = "Search the audit trail"
	op.Tags = []string{"audit"}
	for _, name := range []string{"principal", "server", "status", "since", "until"} {
		op.AddParameter(openapi3.NewQueryParameter(name).WithSchema(openapi3.NewStringSchema()))
	}
	op.AddParameter(openapi3.NewQueryParameter("limit").WithSchema(openapi3.NewIntegerSchema()))
	op.AddParameter(openapi3.NewQueryParameter("offset").WithSchema(openapi3.NewIntegerSchema()))
	op.AddResponse(200, openapi3.NewResponse().WithDescription("Matching audit records"))
	doc.Paths.Set("/api/v1/system/audit", &openapi3.PathItem{Get: op})

	rules := openapi3.NewOperation()
	rules.OperationID = "listApprovalRules"
	rules.Summary = "List the configured approval rules"
	rules.Tags = []string{"audit"}
	rules.AddResponse(200, openapi3.NewResponse().WithDescription("Configured approval rules"))
	doc.Paths.Set("/api/v1/system/rule", &openapi3.PathItem{Get: rules})
}

func refSchema(name string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + name}
}

func jsonResponse(desc, schema string) *openapi3.Response {
	return openapi3.NewResponse().
		WithDescription(desc).
		WithContent(openapi3.NewContentWithJSONSchemaRef(refSchema(schema)))
}

func callRequestSchema(backendNames []string) *openapi3.SchemaRef {
	server := openapi3.NewStringSchema()
	server.Description = "Backend name"
	if len(backendNames) > 0 {
		for _, n := range backendNames {
			server.Enum = append(server.Enum, n)
		}
	}
	return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
		WithPropertyRef("server", &openapi3.SchemaRef{Value: server}).
		WithProperty("method", openapi3.NewStringSchema()).
		WithProperty("params", openapi3.NewObjectSchema()).
		WithProperty("approval_id", openapi3.NewStringSchema()).
		WithRequired([]string{"server", "method"})}
}

func callResultSchema() *openapi3.SchemaRef {
	status := openapi3.NewStringSchema()
	status.Enum = []interface{}{"success", "pending_approval", "denied", "rate_limited", "error"}
	return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
		WithPropertyRef("status", &openapi3.SchemaRef{Value: status}).
		WithProperty("result", openapi3.NewObjectSchema()).
		WithProperty("approval_id", openapi3.NewStringSchema()).
		WithProperty("retry_after", openapi3.NewStringSchema())}
}

func approvalRequestSchema() *openapi3.SchemaRef {
	state := openapi3.NewStringSchema()
	state.Enum = []interface{}{"pending", "approved", "rejected", "timed_out", "canceled"}
	return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("rule_name", openapi3.NewStringSchema()).
		WithProperty("requester", openapi3.NewStringSchema()).
		WithProperty("server", openapi3.NewStringSchema()).
		WithProperty("method", openapi3.NewStringSchema()).
		WithPropertyRef("state", &openapi3.SchemaRef{Value: state}).
		WithProperty("require", openapi3.NewIntegerSchema()).
		WithProperty("approvers", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("approved_by", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("created_at", openapi3.NewDateTimeSchema()).
		WithProperty("deadline", openapi3.NewDateTimeSchema())}
}

func errorResponseSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
		WithPropertyRef("error", &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
			WithProperty("code", openapi3.NewIntegerSchema()).
			WithProperty("message", openapi3.NewStringSchema()).
			WithProperty("context", openapi3.NewObjectSchema())})}
}

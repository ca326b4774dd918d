// Package api embeds the HTTP API description.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3.0 document served at /api/docs/openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPISpec []byte

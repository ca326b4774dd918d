package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestOpenAPISpec(t *testing.T) {
	var doc struct {
		OpenAPI string                    `yaml:"openapi"`
		Paths   map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(OpenAPISpec, &doc))
	assert.Equal(t, "3.0.3", doc.OpenAPI)

	for path, method := range map[string]string{
		"/health":                     "get",
		"/preview":                    "post",
		"/sources":                    "post",
		"/sources/{id}/refresh":       "post",
		"/sources/{id}/cleanup-names": "post",
		"/sources/{id}/playlist.m3u":  "get",
		"/sources/{id}/sync":          "post",
		"/channels":                   "get",
		"/channels/search":            "get",
		"/channels/selection":         "post",
		"/channels/{id}":              "patch",
		"/jobs/{id}":                  "get",
	} {
		require.Contains(t, doc.Paths, path)
		assert.Contains(t, doc.Paths[path], method, path)
	}
}

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/", "/"},
		{"/login", "/login"},
		{"/register", "/register"},
		{"/metrics", "/metrics"},
		{"/api/top_warns", "/api/top_warns"},
		{"/api/generate_graph", "/api/generate_graph"},
		{"/admin.html", "/static/*"},
		{"/css/site.css", "/static/*"},
		{"/../../etc/passwd", "/static/*"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePath(tt.input))
		})
	}
}

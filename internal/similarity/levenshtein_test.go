package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"acme-sync", "acme-sink", 2},
		{"weather-mcp", "weather-mcp2", 1},
		{"天气工具", "天气助手", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Distance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"browser-use", "browser-user"},
		{"pdf-tools", "pdf-tool"},
		{"搜索", "搜索引擎"},
	}
	for _, p := range pairs {
		assert.Equal(t, Distance(p[0], p[1]), Distance(p[1], p[0]))
	}
}

func TestClosest(t *testing.T) {
	names := []string{"weather-mcp", "pdf-tools", "browser-use"}

	m, ok := Closest("weather-mcp2", names, 3)
	require.True(t, ok)
	assert.Equal(t, "weather-mcp", m.Name)
	assert.Equal(t, 1, m.Distance)
}

func TestClosestNoneWithinThreshold(t *testing.T) {
	names := []string{"weather-mcp", "pdf-tools"}

	_, ok := Closest("image-generator", names, 3)
	assert.False(t, ok)
}

func TestClosestCaseInsensitive(t *testing.T) {
	names := []string{"Weather-MCP"}

	m, ok := Closest("weather-mcp2", names, 3)
	require.True(t, ok)
	assert.Equal(t, "Weather-MCP", m.Name)
	assert.Equal(t, 1, m.Distance)
}

func TestClosestSkipsExactMatch(t *testing.T) {
	names := []string{"weather-mcp", "weather-mcpx"}

	m, ok := Closest("weather-mcp", names, 3)
	require.True(t, ok)
	assert.Equal(t, "weather-mcpx", m.Name)
	assert.Equal(t, 1, m.Distance)
}

func TestClosestPicksNearest(t *testing.T) {
	names := []string{"pdf-toolz", "pdf-tool", "pdf-tools-pro"}

	m, ok := Closest("pdf-tools", names, 3)
	require.True(t, ok)
	assert.Equal(t, 1, m.Distance)
	assert.Equal(t, "pdf-toolz", m.Name)
}

package version

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, GitCommit, info.GitCommit)
	assert.Equal(t, BuildTime, info.BuildTime)
	assert.NotEmpty(t, info.GoVersion, "Go version should not be empty")
	assert.Contains(t, info.GoVersion, "go", "Go version should contain 'go'")
}

func TestInfo_String(t *testing.T) {
	info := Info{
		Version:   "1.0.0",
		GitCommit: "abc123",
		BuildTime: "Sun Aug 25 09:34:29 AM UTC 2025",
		GoVersion: "go1.25.1",
	}

	result := info.String()
	expected := "Version: 1.0.0, GitCommit: abc123, BuildTime: Sun Aug 25 09:34:29 AM UTC 2025, GoVersion: go1.25.1"
	assert.Equal(t, expected, result)
}

func TestInfo_JSON(t *testing.T) {
	info := Info{
		Version:   "1.0.0",
		GitCommit: "abc123",
		BuildTime: "Sun Aug 25 09:34:29 AM UTC 2025",
		GoVersion: "go1.25.1",
	}

	jsonString, err := info.JSON()
	require.NoError(t, err)

	// Verify it's valid JSON
	var parsed Info
	err = json.Unmarshal([]byte(jsonString), &parsed)
	require.NoError(t, err)

	assert.Equal(t, info.Version, parsed.Version)
	assert.Equal(t, info.GitCommit, parsed.GitCommit)
	assert.Equal(t, info.BuildTime, parsed.BuildTime)
	assert.Equal(t, info.GoVersion, parsed.GoVersion)

	// Verify all fields are present in JSON
	assert.True(t, strings.Contains(jsonString, `"version"`))
	assert.True(t, strings.Contains(jsonString, `"gitCommit"`))
	assert.True(t, strings.Contains(jsonString, `"buildTime"`))
	assert.True(t, strings.Contains(jsonString, `"goVersion"`))
}

func TestSatisfies(t *testing.T) {
	original := Version
	defer func() { Version = original }()

	tests := []struct {
		name       string
		version    string
		constraint string
		want       bool
		wantErr    bool
	}{
		{name: "empty constraint passes", version: "1.2.3", constraint: "", want: true},
		{name: "met lower bound", version: "1.2.3", constraint: ">=1.0.0", want: true},
		{name: "unmet lower bound", version: "0.9.0", constraint: ">=1.0.0", want: false},
		{name: "exact match", version: "2.0.0", constraint: "=2.0.0", want: true},
		{name: "dev build passes everything", version: "dev", constraint: ">=99.0.0", want: true},
		{name: "bad constraint errors", version: "1.0.0", constraint: "banana", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version = tt.version
			got, err := Satisfies(tt.constraint)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

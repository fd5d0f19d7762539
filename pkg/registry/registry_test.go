package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

func loadedUnit(id string, exports map[string][]captypes.SymbolDecl) *captypes.Unit {
	return &captypes.Unit{
		ID:      id,
		Kind:    captypes.KindSingleFile,
		Path:    "/nonexistent/" + id,
		State:   captypes.StateLoaded,
		Exports: exports,
	}
}

func decl(name, description string, params ...captypes.ParamHint) captypes.SymbolDecl {
	return captypes.SymbolDecl{
		Name:        name,
		Description: description,
		Parameters:  params,
		Returns:     "object",
	}
}

func TestNew_RegistrationOrder(t *testing.T) {
	a := loadedUnit("a", map[string][]captypes.SymbolDecl{
		"tools":  {decl("x", "x tool"), decl("y", "y tool")},
		"agents": {decl("planner", "plans work")},
	})
	b := loadedUnit("b", map[string][]captypes.SymbolDecl{
		"tools": {decl("z", "z tool")},
	})

	r := New([]*captypes.Unit{a, b})
	require.Equal(t, 4, r.Len())

	// Discovery order, categories sorted within a unit, declaration
	// order within a category.
	assert.Equal(t, []string{"a.planner", "a.x", "a.y", "b.z"}, r.QualifiedNames())
}

func TestNew_SkipsUnloadedUnits(t *testing.T) {
	failed := loadedUnit("broken", map[string][]captypes.SymbolDecl{
		"tools": {decl("x", "x tool")},
	})
	failed.State = captypes.StateFailed

	r := New([]*captypes.Unit{failed, nil})
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Units())
}

func TestNew_FirstCategoryWinsConflicts(t *testing.T) {
	u := loadedUnit("dup", map[string][]captypes.SymbolDecl{
		"tools":     {decl("work", "the tool flavor")},
		"utilities": {decl("work", "the utility flavor")},
	})

	r := New([]*captypes.Unit{u})
	require.Equal(t, 1, r.Len())

	desc, ok := r.Resolve("dup.work")
	require.True(t, ok)
	assert.Equal(t, "tools", desc.Category)
	assert.Equal(t, "the tool flavor", desc.Description)

	conflicts := r.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "dup.work", conflicts[0].QualifiedName)
	assert.Equal(t, "tools", conflicts[0].KeptCategory)
	assert.Equal(t, "utilities", conflicts[0].DroppedCategory)
}

func TestResolve_Miss(t *testing.T) {
	r := New(nil)
	_, ok := r.Resolve("ghost.symbol")
	assert.False(t, ok)
}

func TestSymbols_FilterAndRestart(t *testing.T) {
	u := loadedUnit("u", map[string][]captypes.SymbolDecl{
		"tools":  {decl("a", "a"), decl("b", "b")},
		"agents": {decl("c", "c")},
	})
	r := New([]*captypes.Unit{u})

	tools := slices.Collect(r.Symbols("tools"))
	require.Len(t, tools, 2)
	assert.Equal(t, "u.a", tools[0].QualifiedName)

	// Early stop does not consume the sequence; it restarts cleanly.
	var first *captypes.SymbolDescriptor
	for desc := range r.Symbols() {
		first = desc
		break
	}
	require.NotNil(t, first)
	assert.Equal(t, "u.c", first.QualifiedName) // agents sorts before tools

	assert.Len(t, slices.Collect(r.Symbols()), 3)
}

func TestCategories(t *testing.T) {
	u := loadedUnit("u", map[string][]captypes.SymbolDecl{
		"tools":  {decl("a", "a"), decl("b", "b")},
		"agents": {decl("c", "c")},
	})
	r := New([]*captypes.Unit{u})

	assert.Equal(t, []string{"agents", "tools"}, r.Categories())
	assert.Equal(t, map[string]int{"tools": 2, "agents": 1}, r.CategoryCounts())
}

func TestInputSchema_DerivedFromHints(t *testing.T) {
	u := loadedUnit("net", map[string][]captypes.SymbolDecl{
		"tools": {decl("ping", "Ping a host.",
			captypes.ParamHint{Name: "host", Type: "string", Description: "Target host", Required: true},
			captypes.ParamHint{Name: "verbose", Type: "boolean", Description: "Chatty output"},
		)},
	})
	r := New([]*captypes.Unit{u})

	desc, ok := r.Resolve("net.ping")
	require.True(t, ok)
	require.NotNil(t, desc.InputSchema)

	b, err := json.Marshal(desc.InputSchema)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "object", m["type"])

	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "host")
	assert.Contains(t, props, "verbose")

	assert.Equal(t, []any{"host"}, m["required"])
}

func TestInputSchema_DeclaredWins(t *testing.T) {
	d := decl("add", "Add numbers.")
	d.InputSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"n": map[string]any{"type": "integer"},
		},
		"required": []any{"n"},
	}
	u := loadedUnit("math", map[string][]captypes.SymbolDecl{"tools": {d}})
	r := New([]*captypes.Unit{u})

	desc, ok := r.Resolve("math.add")
	require.True(t, ok)

	b, err := json.Marshal(desc.InputSchema)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"integer"`)
}

func writeCallScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "echoer")
	script := `#!/bin/bash
if [ "$1" = "call" ]; then
    input=$(cat)
    echo "{\"symbol\": \"$2\", \"args\": $input}"
fi
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestInvoke(t *testing.T) {
	u := loadedUnit("echoer", map[string][]captypes.SymbolDecl{
		"tools": {decl("ping", "Ping a host.",
			captypes.ParamHint{Name: "host", Type: "string", Description: "Target host", Required: true},
		)},
	})
	u.Path = writeCallScript(t)
	r := New([]*captypes.Unit{u})

	out, err := r.Invoke(context.Background(), "echoer.ping", []byte(`{"host":"example.org"}`))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "ping", decoded["symbol"])
}

func TestInvoke_RejectsBadArguments(t *testing.T) {
	u := loadedUnit("echoer", map[string][]captypes.SymbolDecl{
		"tools": {decl("ping", "Ping a host.",
			captypes.ParamHint{Name: "host", Type: "string", Description: "Target host", Required: true},
		)},
	})
	u.Path = writeCallScript(t)
	r := New([]*captypes.Unit{u})

	_, err := r.Invoke(context.Background(), "echoer.ping", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "echoer.ping")

	_, err = r.Invoke(context.Background(), "echoer.ping", []byte(`{"host": 42}`))
	require.Error(t, err)

	_, err = r.Invoke(context.Background(), "echoer.ping", []byte(`not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestInvoke_UnknownSymbol(t *testing.T) {
	r := New(nil)
	_, err := r.Invoke(context.Background(), "ghost.symbol", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestValidateArgs(t *testing.T) {
	u := loadedUnit("echoer", map[string][]captypes.SymbolDecl{
		"tools": {decl("ping", "Ping a host.",
			captypes.ParamHint{Name: "host", Type: "string", Description: "Target host", Required: true},
		)},
	})
	r := New([]*captypes.Unit{u})

	assert.NoError(t, r.ValidateArgs("echoer.ping", []byte(`{"host":"example.org"}`)))
	assert.Error(t, r.ValidateArgs("echoer.ping", []byte(`{}`)))
	assert.Error(t, r.ValidateArgs("ghost.symbol", []byte(`{}`)))
}

package tui

import (
	"github.com/ld-agent/ld-agent-go/pkg/loader"
	"github.com/ld-agent/ld-agent-go/pkg/registry"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// NewFixtureUnit builds an in-memory loaded unit for testing the
// browser without spawning any subprocess.
func NewFixtureUnit(id string) *captypes.Unit {
	return &captypes.Unit{
		ID:    id,
		Kind:  captypes.KindSingleFile,
		Path:  "/plugins/" + id + ".sh",
		State: captypes.StateLoaded,
		Info: &captypes.ModuleInfo{
			Name:        id + "-tools",
			Description: "Helpers for " + id,
			Author:      "Fixture Author",
			Version:     "1.0.0",
			Platform:    "any",
		},
		EnvVars: map[string]captypes.EnvVarSchema{
			"FIXTURE_TOKEN": {Description: "API token", Required: true},
		},
		Dependencies: []string{"curl>=7.0"},
		Exports: map[string][]captypes.SymbolDecl{
			"tools": {
				{
					Name:        "ping",
					Description: "Answer with a pong.",
					Parameters: []captypes.ParamHint{
						{Name: "host", Type: "string", Description: "Target host", Required: true},
					},
					Returns: "object",
				},
			},
		},
	}
}

// NewFixtureFailedUnit builds a unit whose describe step failed.
func NewFixtureFailedUnit(id string) *captypes.Unit {
	return &captypes.Unit{
		ID:      id,
		Kind:    captypes.KindSingleFile,
		Path:    "/plugins/" + id,
		State:   captypes.StateFailed,
		LoadErr: captypes.NewLoadError(captypes.LoadErrSpawn, "describe failed: exit status 3"),
	}
}

// NewFixtureSession builds a session plus registry over fixture units.
func NewFixtureSession(ids ...string) (*loader.Session, *registry.Registry) {
	units := make([]*captypes.Unit, 0, len(ids))
	for _, id := range ids {
		units = append(units, NewFixtureUnit(id))
	}
	session := &loader.Session{ID: "fixture-session", Root: "/plugins", Units: units}
	return session, registry.New(units)
}

// Package capability defines the shared data model for the dynamic
// capability linker: units discovered on disk, their self-declared
// metadata, exported symbols, and the reports produced while linking.
package capability

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Kind describes how a unit is laid out on disk.
type Kind string

const (
	// KindSingleFile is a standalone executable in the plugin root.
	KindSingleFile Kind = "single_file"
	// KindPackage is a directory with a plugin.yaml manifest naming an entrypoint.
	KindPackage Kind = "package"
)

// LoadState tracks a unit through the link pipeline.
type LoadState string

const (
	StateDiscovered LoadState = "discovered"
	StateLoading    LoadState = "loading"
	StateLoaded     LoadState = "loaded"
	StateFailed     LoadState = "failed"
)

// Recognized platform values for ModuleInfo.Platform.
const (
	PlatformAny     = "any"
	PlatformLinux   = "linux"
	PlatformWindows = "windows"
	PlatformMacOS   = "macos"
)

// KnownPlatform reports whether p is one of the recognized platform literals.
func KnownPlatform(p string) bool {
	switch p {
	case PlatformAny, PlatformLinux, PlatformWindows, PlatformMacOS:
		return true
	}
	return false
}

// Standard symbol categories. Units may declare custom categories, which
// registers fine but draws a validation warning.
const (
	CategoryTools      = "tools"
	CategoryAgents     = "agents"
	CategoryResources  = "resources"
	CategoryMiddleware = "middleware"
	CategoryModels     = "models"
	CategoryUtilities  = "utilities"
)

// StandardCategory reports whether c is one of the well-known categories.
func StandardCategory(c string) bool {
	switch c {
	case CategoryTools, CategoryAgents, CategoryResources, CategoryMiddleware, CategoryModels, CategoryUtilities:
		return true
	}
	return false
}

// EnvVarSchema describes a single environment variable a unit consumes.
type EnvVarSchema struct {
	Description string `json:"description" mapstructure:"description"`
	Default     string `json:"default" mapstructure:"default"`
	Required    bool   `json:"required" mapstructure:"required"`
}

// ModuleInfo is the metadata block every unit declares about itself.
// Validation requires every field to be present.
type ModuleInfo struct {
	Name                 string                  `json:"name" mapstructure:"name"`
	Description          string                  `json:"description" mapstructure:"description"`
	Author               string                  `json:"author" mapstructure:"author"`
	Version              string                  `json:"version" mapstructure:"version"`
	Platform             string                  `json:"platform" mapstructure:"platform"`
	RuntimeRequires      string                  `json:"runtime_requires" mapstructure:"runtime_requires"`
	Dependencies         []string                `json:"dependencies" mapstructure:"dependencies"`
	EnvironmentVariables map[string]EnvVarSchema `json:"environment_variables" mapstructure:"environment_variables"`
}

// RawDeclarations is the undecoded payload a unit emits from `describe`.
// The two declaration blocks stay raw so the validator can turn shape
// problems into findings instead of decode failures.
type RawDeclarations struct {
	ModuleInfo json.RawMessage `json:"module_info"`
	Exports    json.RawMessage `json:"module_exports"`
	Doc        string          `json:"doc,omitempty"`

	// HasDocFile is set by the loader when the unit ships a README; it
	// satisfies the module-documentation check the same way Doc does.
	HasDocFile bool `json:"-"`
}

// ParamHint is one entry of a symbol's declared signature.
type ParamHint struct {
	Name        string `json:"name" mapstructure:"name"`
	Type        string `json:"type,omitempty" mapstructure:"type"`
	Description string `json:"description,omitempty" mapstructure:"description"`
	Required    bool   `json:"required,omitempty" mapstructure:"required"`
}

// SymbolDecl is a unit's declaration of one exported symbol, as found
// under a category key of module_exports.
type SymbolDecl struct {
	Name        string         `json:"name" mapstructure:"name"`
	Description string         `json:"description" mapstructure:"description"`
	Parameters  []ParamHint    `json:"parameters,omitempty" mapstructure:"parameters"`
	Returns     string         `json:"returns,omitempty" mapstructure:"returns"`
	InputSchema map[string]any `json:"input_schema,omitempty" mapstructure:"input_schema"`
}

// SymbolDescriptor is a registered symbol: a unit's declaration bound to
// its qualified name and a usable input schema.
type SymbolDescriptor struct {
	QualifiedName string             `json:"qualified_name"`
	UnitID        string             `json:"unit_id"`
	LocalName     string             `json:"local_name"`
	Category      string             `json:"category"`
	Description   string             `json:"description"`
	Parameters    []ParamHint        `json:"parameters,omitempty"`
	Returns       string             `json:"returns,omitempty"`
	InputSchema   *jsonschema.Schema `json:"input_schema,omitempty"`
}

// QualifiedName joins a unit id and a local symbol name into the
// registry key, e.g. "weather.get_forecast".
func QualifiedName(unitID, localName string) string {
	return fmt.Sprintf("%s.%s", unitID, localName)
}

// Unit is one discovered capability unit and everything the pipeline
// learned about it. Records are mutated only while the unit is being
// loaded; afterwards they are read-only.
type Unit struct {
	ID    string    `json:"id"`
	Kind  Kind      `json:"kind"`
	Path  string    `json:"path"`
	Dir   string    `json:"dir,omitempty"`
	State LoadState `json:"state"`

	// Info is the fully validated metadata, present only once the unit
	// reached Loaded.
	Info *ModuleInfo `json:"module_info,omitempty"`

	// Report is present once validation ran, whatever its outcome.
	Report *ValidationReport `json:"report,omitempty"`

	// LoadErr is the terminal error for Failed units.
	LoadErr *LoadError `json:"load_error,omitempty"`

	// Doc is the unit's long-form documentation, from the describe
	// payload or a README shipped next to the entrypoint.
	Doc string `json:"doc,omitempty"`

	// Best-effort declarations kept even for Failed units so the
	// environment and dependency aggregators can reconcile across every
	// unit that managed to declare anything.
	EnvVars      map[string]EnvVarSchema `json:"environment_variables,omitempty"`
	Dependencies []string                `json:"dependencies,omitempty"`

	// Exports holds the decoded symbol declarations by category for
	// units that passed validation, in declaration order.
	Exports map[string][]SymbolDecl `json:"exports,omitempty"`

	// InitFunction optionally names an exported symbol invoked once
	// after the unit registers.
	InitFunction string `json:"init_function,omitempty"`
}

// Registrable reports whether the unit's symbols may enter the registry.
func (u *Unit) Registrable() bool {
	return u.State == StateLoaded
}

// DeclaredName returns the self-declared module name when available,
// falling back to the unit id.
func (u *Unit) DeclaredName() string {
	if u.Info != nil && u.Info.Name != "" {
		return u.Info.Name
	}
	return u.ID
}

// Package registry holds the symbol table built from one load session.
// A registry is immutable once built: lookups are O(1), iteration is
// lazy and restartable, and reload means building a fresh registry and
// swapping the pointer.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ld-agent/ld-agent-go/pkg/loader"
	"github.com/ld-agent/ld-agent-go/pkg/telemetry"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// Conflict records a qualified name that was claimed twice. Duplicate
// unit ids are resolved at discovery, so conflicts only arise when one
// unit declares the same symbol name under two categories.
type Conflict struct {
	QualifiedName   string `json:"qualified_name"`
	KeptCategory    string `json:"kept_category"`
	DroppedCategory string `json:"dropped_category"`
}

// Registry maps qualified names to symbol descriptors and keeps the
// units that back them so symbols can be invoked.
type Registry struct {
	units     []*captypes.Unit
	unitsByID map[string]*captypes.Unit

	symbols    map[string]*captypes.SymbolDescriptor
	order      []string // qualified names in registration order
	validators map[string]*schemavalidate.Schema
	conflicts  []Conflict

	callTimeout time.Duration
	maxOutput   int
}

// Option customizes a Registry.
type Option func(*Registry)

// WithCallTimeout bounds each symbol invocation.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// WithMaxOutputSize caps invocation output before truncation.
func WithMaxOutputSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// New builds the registry for a session's units. Units that did not
// reach the loaded state contribute no symbols. Registration order is
// discovery order, categories sorted within a unit, declaration order
// within a category.
func New(units []*captypes.Unit, opts ...Option) *Registry {
	r := &Registry{
		unitsByID:   map[string]*captypes.Unit{},
		symbols:     map[string]*captypes.SymbolDescriptor{},
		validators:  map[string]*schemavalidate.Schema{},
		callTimeout: loader.DefaultCallTimeout,
		maxOutput:   loader.DefaultMaxOutputSize,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, unit := range units {
		if unit == nil || !unit.Registrable() {
			continue
		}
		r.units = append(r.units, unit)
		r.unitsByID[unit.ID] = unit
		r.registerUnit(unit)
	}
	return r
}

func (r *Registry) registerUnit(unit *captypes.Unit) {
	categories := make([]string, 0, len(unit.Exports))
	for c := range unit.Exports {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, category := range categories {
		for _, decl := range unit.Exports[category] {
			qn := captypes.QualifiedName(unit.ID, decl.Name)
			if existing, taken := r.symbols[qn]; taken {
				r.conflicts = append(r.conflicts, Conflict{
					QualifiedName:   qn,
					KeptCategory:    existing.Category,
					DroppedCategory: category,
				})
				continue
			}

			schema := inputSchema(decl)
			r.symbols[qn] = &captypes.SymbolDescriptor{
				QualifiedName: qn,
				UnitID:        unit.ID,
				LocalName:     decl.Name,
				Category:      category,
				Description:   decl.Description,
				Parameters:    decl.Parameters,
				Returns:       decl.Returns,
				InputSchema:   schema,
			}
			r.order = append(r.order, qn)
			if v := compileValidator(schema); v != nil {
				r.validators[qn] = v
			}
		}
	}
}

// inputSchema returns the schema arguments are validated against. A
// declared input_schema wins; otherwise one is derived from the
// parameter hints.
func inputSchema(decl captypes.SymbolDecl) *jsonschema.Schema {
	if len(decl.InputSchema) > 0 {
		if s := schemaFromMap(decl.InputSchema); s != nil {
			return s
		}
	}

	props := jsonschema.NewProperties()
	var required []string
	for _, p := range decl.Parameters {
		ps := &jsonschema.Schema{Description: p.Description}
		if p.Type != "" {
			ps.Type = p.Type
		}
		props.Set(p.Name, ps)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func schemaFromMap(m map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	return &s
}

// compileValidator turns the descriptor schema into a validating form.
// A schema that does not compile simply skips argument validation; the
// unit's own shape checks already ran during linking.
func compileValidator(s *jsonschema.Schema) *schemavalidate.Schema {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	compiled, err := schemavalidate.CompileString("input_schema.json", string(b))
	if err != nil {
		return nil
	}
	return compiled
}

// Resolve returns the descriptor registered under a qualified name.
func (r *Registry) Resolve(qualifiedName string) (*captypes.SymbolDescriptor, bool) {
	desc, ok := r.symbols[qualifiedName]
	return desc, ok
}

// Symbols iterates descriptors in registration order. With categories
// given, only symbols in those categories are yielded. The sequence is
// restartable and stops early when the consumer does.
func (r *Registry) Symbols(categories ...string) iter.Seq[*captypes.SymbolDescriptor] {
	var filter map[string]bool
	if len(categories) > 0 {
		filter = make(map[string]bool, len(categories))
		for _, c := range categories {
			filter[c] = true
		}
	}
	return func(yield func(*captypes.SymbolDescriptor) bool) {
		for _, qn := range r.order {
			desc := r.symbols[qn]
			if filter != nil && !filter[desc.Category] {
				continue
			}
			if !yield(desc) {
				return
			}
		}
	}
}

// QualifiedNames returns the registration order.
func (r *Registry) QualifiedNames() []string {
	return append([]string(nil), r.order...)
}

// Units returns the registered units in discovery order.
func (r *Registry) Units() []*captypes.Unit {
	return append([]*captypes.Unit(nil), r.units...)
}

// Unit returns a registered unit by id.
func (r *Registry) Unit(id string) (*captypes.Unit, bool) {
	u, ok := r.unitsByID[id]
	return u, ok
}

// Conflicts returns the qualified-name collisions recorded at build time.
func (r *Registry) Conflicts() []Conflict {
	return append([]Conflict(nil), r.conflicts...)
}

// Len reports how many symbols are registered.
func (r *Registry) Len() int {
	return len(r.order)
}

// Categories returns the categories with at least one registered
// symbol, sorted.
func (r *Registry) Categories() []string {
	counts := r.CategoryCounts()
	out := make([]string, 0, len(counts))
	for c := range counts {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CategoryCounts tallies registered symbols per category.
func (r *Registry) CategoryCounts() map[string]int {
	counts := map[string]int{}
	for _, qn := range r.order {
		counts[r.symbols[qn].Category]++
	}
	return counts
}

// ValidateArgs checks an argument payload against a symbol's declared
// input schema without spawning the unit. Symbols without a usable
// schema accept anything.
func (r *Registry) ValidateArgs(qualifiedName string, args []byte) error {
	if _, ok := r.symbols[qualifiedName]; !ok {
		return errors.Errorf("symbol %s is not registered", qualifiedName)
	}
	v := r.validators[qualifiedName]
	if v == nil {
		return nil
	}
	var doc any = map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &doc); err != nil {
			return errors.Wrapf(err, "arguments for %s are not valid JSON", qualifiedName)
		}
	}
	if err := v.Validate(doc); err != nil {
		return errors.Wrapf(err, "arguments for %s do not match the declared schema", qualifiedName)
	}
	return nil
}

// Invoke validates args against the symbol's input schema and executes
// it in the owning unit's subprocess. The raw stdout bytes come back;
// interpreting them is the caller's business.
func (r *Registry) Invoke(ctx context.Context, qualifiedName string, args []byte) ([]byte, error) {
	desc, ok := r.symbols[qualifiedName]
	if !ok {
		return nil, errors.Errorf("symbol %s is not registered", qualifiedName)
	}
	unit := r.unitsByID[desc.UnitID]

	if err := r.ValidateArgs(qualifiedName, args); err != nil {
		return nil, err
	}

	var out []byte
	err := telemetry.WithSpan(ctx, "registry.invoke", func(ctx context.Context) error {
		var callErr error
		out, callErr = loader.Call(ctx, unit.Path, desc.LocalName, args, r.callTimeout, r.maxOutput)
		return callErr
	}, attribute.String("symbol.qualified_name", qualifiedName), attribute.String("unit.id", unit.ID))
	if err != nil {
		return nil, errors.Wrapf(err, "invoke %s", qualifiedName)
	}
	return out, nil
}

// String renders a one-line summary, handy in logs.
func (r *Registry) String() string {
	return fmt.Sprintf("registry(%d units, %d symbols, %d conflicts)", len(r.units), len(r.order), len(r.conflicts))
}

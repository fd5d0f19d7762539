// Package envtable reconciles the environment variable declarations of
// every unit in a session into one table. Declarations merge first-wins:
// the earliest unit to declare a name owns its description, default, and
// required flag, and later disagreeing declarations flag the variable as
// conflicted. Failed units still contribute; an operator fixing their
// environment is often what un-fails them.
package envtable

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/subosito/gotenv"

	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// Var is one reconciled environment variable.
type Var struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default"`
	Required    bool   `json:"required"`

	// Owners lists every unit that declared the variable, in discovery
	// order. The first owner's declaration is the authoritative one.
	Owners []string `json:"owners"`

	// Conflict marks the variable when a later owner disagreed on the
	// default or the required flag.
	Conflict bool `json:"conflict,omitempty"`
}

// Table is the reconciled set of variables, ordered by first
// declaration: units in discovery order, names sorted within a unit.
type Table struct {
	vars   map[string]*Var
	order  []string
	groups []group
}

// group keeps the vars a unit declared first, for template sections.
type group struct {
	unitID string
	label  string
	names  []string
}

// New builds the table from a session's units in discovery order.
func New(units []*captypes.Unit) *Table {
	t := &Table{vars: map[string]*Var{}}

	for _, unit := range units {
		if unit == nil || len(unit.EnvVars) == 0 {
			continue
		}
		names := make([]string, 0, len(unit.EnvVars))
		for name := range unit.EnvVars {
			names = append(names, name)
		}
		sort.Strings(names)

		var owned []string
		for _, name := range names {
			schema := unit.EnvVars[name]
			if existing, ok := t.vars[name]; ok {
				existing.Owners = append(existing.Owners, unit.ID)
				if existing.Default != schema.Default || existing.Required != schema.Required {
					existing.Conflict = true
				}
				continue
			}
			v := &Var{
				Name:        name,
				Description: schema.Description,
				Default:     schema.Default,
				Required:    schema.Required,
				Owners:      []string{unit.ID},
			}
			t.vars[name] = v
			t.order = append(t.order, name)
			owned = append(owned, name)
		}
		if len(owned) > 0 {
			t.groups = append(t.groups, group{unitID: unit.ID, label: unit.DeclaredName(), names: owned})
		}
	}
	return t
}

// Vars returns the table in declaration order.
func (t *Table) Vars() []*Var {
	out := make([]*Var, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.vars[name])
	}
	return out
}

// Lookup returns the reconciled variable by name.
func (t *Table) Lookup(name string) (*Var, bool) {
	v, ok := t.vars[name]
	return v, ok
}

// Conflicts returns the variables with disagreeing declarations.
func (t *Table) Conflicts() []*Var {
	var out []*Var
	for _, name := range t.order {
		if v := t.vars[name]; v.Conflict {
			out = append(out, v)
		}
	}
	return out
}

// Len reports how many distinct variables are declared.
func (t *Table) Len() int {
	return len(t.order)
}

// Stats summarizes the table for presenters.
type Stats struct {
	Total     int `json:"total"`
	Required  int `json:"required"`
	Conflicts int `json:"conflicts"`
}

func (t *Table) Stats() Stats {
	s := Stats{Total: len(t.order)}
	for _, name := range t.order {
		v := t.vars[name]
		if v.Required {
			s.Required++
		}
		if v.Conflict {
			s.Conflicts++
		}
	}
	return s
}

// Template renders the table as a .env file. Every variable appears as
// an uncommented NAME=default assignment, grouped under the unit that
// declared it first, so parsing the template back yields exactly the
// table's names.
func (t *Table) Template() string {
	var b strings.Builder
	b.WriteString("# Environment variables declared by linked capability units.\n")
	b.WriteString("# Generated by ldagent. Fill in values before linking.\n")

	for _, g := range t.groups {
		b.WriteString("\n# ---- " + g.label + " ----\n")
		for _, name := range g.names {
			v := t.vars[name]
			b.WriteString("\n")
			if v.Description != "" {
				b.WriteString("# " + v.Description + "\n")
			}
			switch {
			case v.Required:
				b.WriteString("# REQUIRED\n")
			case v.Default != "":
				b.WriteString("# Optional (default: " + v.Default + ")\n")
			default:
				b.WriteString("# Optional\n")
			}
			if v.Conflict {
				b.WriteString("# NOTE: declared differently by " + strings.Join(v.Owners, ", ") + "; first declaration wins\n")
			}
			b.WriteString(v.Name + "=" + envValue(v.Default) + "\n")
		}
	}
	return b.String()
}

// envValue quotes defaults that dotenv parsers would otherwise mangle.
func envValue(v string) string {
	if v == "" {
		return ""
	}
	if strings.ContainsAny(v, " #\"'\n\t") {
		return strconv.Quote(v)
	}
	return v
}

// MissingRequired returns the required variables that are unset or
// empty in env, in table order.
func (t *Table) MissingRequired(env map[string]string) []*Var {
	var missing []*Var
	for _, name := range t.order {
		v := t.vars[name]
		if !v.Required {
			continue
		}
		if val, ok := env[name]; !ok || val == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// RequireAll returns one error per missing required variable, or nil
// when the environment satisfies the table.
func (t *Table) RequireAll(env map[string]string) error {
	var result *multierror.Error
	for _, v := range t.MissingRequired(env) {
		result = multierror.Append(result, errors.Errorf(
			"required environment variable %s is not set (declared by %s)",
			v.Name, strings.Join(v.Owners, ", ")))
	}
	return result.ErrorOrNil()
}

// ReadEnvFile parses a dotenv file into a plain map without touching
// the process environment.
func ReadEnvFile(path string) (map[string]string, error) {
	env, err := gotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read env file %s", path)
	}
	return env, nil
}

// OSEnviron snapshots the process environment as a map.
func OSEnviron() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

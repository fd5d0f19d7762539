package tui

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// GetSpinnerChar returns the spinner character for the given index
func GetSpinnerChar(index int) string {
	spinChars := []string{".", "∘", "○", "◌", "◍", "◉", "◎", "●"}
	return spinChars[index%len(spinChars)]
}

// FilterRows keeps rows whose fields contain every whitespace-separated
// term of the query, case-insensitively. An empty query keeps all rows.
func FilterRows(rows []Row, query string) []Row {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return rows
	}

	var out []Row
	for _, row := range rows {
		haystack := strings.ToLower(row.ID + " " + row.Category + " " + row.UnitID + " " + row.Description)
		matched := true
		for _, term := range terms {
			if !strings.Contains(haystack, term) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, row)
		}
	}
	return out
}

// FormatSymbolDetail renders the detail pane for a symbol.
func FormatSymbolDetail(desc *captypes.SymbolDescriptor, unit *captypes.Unit) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", desc.QualifiedName)
	fmt.Fprintf(&b, "Category: %s    Unit: %s\n", desc.Category, desc.UnitID)
	if unit != nil {
		fmt.Fprintf(&b, "Entrypoint: %s\n", unit.Path)
	}
	if desc.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", desc.Description)
	}

	if len(desc.Parameters) > 0 {
		b.WriteString("\nParameters:\n")
		for _, p := range desc.Parameters {
			typ := p.Type
			if typ == "" {
				typ = "any"
			}
			req := ""
			if p.Required {
				req = " (required)"
			}
			fmt.Fprintf(&b, "  %s %s%s", p.Name, typ, req)
			if p.Description != "" {
				fmt.Fprintf(&b, "  %s", p.Description)
			}
			b.WriteString("\n")
		}
	}
	if desc.Returns != "" {
		fmt.Fprintf(&b, "\nReturns: %s\n", desc.Returns)
	}

	if desc.InputSchema != nil {
		if raw, err := json.MarshalIndent(desc.InputSchema, "", "  "); err == nil {
			fmt.Fprintf(&b, "\nInput schema:\n%s\n", string(raw))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatUnitDetail renders the detail pane for a unit.
func FormatUnitDetail(unit *captypes.Unit) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", unit.DeclaredName())
	fmt.Fprintf(&b, "State: %s    Kind: %s\n", unit.State, unit.Kind)
	fmt.Fprintf(&b, "Entrypoint: %s\n", unit.Path)

	if unit.LoadErr != nil {
		fmt.Fprintf(&b, "\nLoad error (%s): %s\n", unit.LoadErr.Kind, unit.LoadErr.Message)
	}

	if unit.Info != nil {
		b.WriteString("\n")
		if unit.Info.Description != "" {
			fmt.Fprintf(&b, "%s\n", unit.Info.Description)
		}
		if unit.Info.Author != "" {
			fmt.Fprintf(&b, "Author: %s\n", unit.Info.Author)
		}
		if unit.Info.Version != "" {
			fmt.Fprintf(&b, "Version: %s\n", unit.Info.Version)
		}
		if unit.Info.Platform != "" {
			fmt.Fprintf(&b, "Platform: %s\n", unit.Info.Platform)
		}
	}

	if len(unit.Dependencies) > 0 {
		b.WriteString("\nDependencies:\n")
		for _, dep := range unit.Dependencies {
			fmt.Fprintf(&b, "  %s\n", dep)
		}
	}

	if len(unit.EnvVars) > 0 {
		b.WriteString("\nEnvironment variables:\n")
		for _, name := range slices.Sorted(maps.Keys(unit.EnvVars)) {
			schema := unit.EnvVars[name]
			req := "optional"
			if schema.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "  %s (%s)", name, req)
			if schema.Description != "" {
				fmt.Fprintf(&b, "  %s", schema.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(unit.Exports) > 0 {
		b.WriteString("\nExports:\n")
		for _, category := range slices.Sorted(maps.Keys(unit.Exports)) {
			decls := unit.Exports[category]
			names := make([]string, 0, len(decls))
			for _, d := range decls {
				names = append(names, d.Name)
			}
			fmt.Fprintf(&b, "  %s: %s\n", category, strings.Join(names, ", "))
		}
	}

	if unit.Report != nil && len(unit.Report.Warnings()) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range unit.Report.Warnings() {
			fmt.Fprintf(&b, "  %s: %s\n", w.Code, w.Message)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// Package docs renders markdown documentation for linked capability
// units: one page per unit plus an index page, generated entirely from
// the declarations units already publish over the describe protocol.
package docs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	yaml "gopkg.in/yaml.v2"

	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

const readmeName = "README.md"

// Generator renders documentation for one load session's units.
type Generator struct {
	units []*captypes.Unit
}

// New builds a Generator. Unit order is preserved in the index.
func New(units []*captypes.Unit) *Generator {
	return &Generator{units: units}
}

// UnitPage renders the markdown page for one unit. Failed units get a
// stub page carrying their load error so the index never dangles.
func (g *Generator) UnitPage(unit *captypes.Unit) (string, error) {
	readmeMeta, readmeBody, err := readmeParts(unit)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	writeFrontmatter(&sb, unit, readmeMeta)
	sb.WriteString(fmt.Sprintf("# %s\n\n", unit.DeclaredName()))

	if unit.Info == nil {
		writeLoadStatus(&sb, unit)
		return sb.String(), nil
	}

	info := unit.Info
	if info.Description != "" {
		sb.WriteString(info.Description + "\n\n")
	}

	sb.WriteString("## Unit Information\n\n")
	sb.WriteString(fmt.Sprintf("- **Author:** %s\n", info.Author))
	sb.WriteString(fmt.Sprintf("- **Version:** %s\n", info.Version))
	sb.WriteString(fmt.Sprintf("- **Platform:** %s\n", info.Platform))
	sb.WriteString(fmt.Sprintf("- **Runtime Requirements:** %s\n", info.RuntimeRequires))
	sb.WriteString(fmt.Sprintf("- **Kind:** %s\n", unit.Kind))
	sb.WriteString("\n")

	if len(info.Dependencies) > 0 {
		sb.WriteString("### Dependencies\n\n")
		for _, dep := range info.Dependencies {
			sb.WriteString(fmt.Sprintf("- `%s`\n", dep))
		}
		sb.WriteString("\n")
	}

	writeEnvVars(&sb, info.EnvironmentVariables)
	writeSymbols(&sb, unit)

	doc := strings.TrimSpace(unit.Doc)
	if readmeBody != "" {
		// The README is the author-maintained long form; prefer it over
		// the describe payload's doc string.
		doc = readmeBody
	}
	if doc != "" {
		sb.WriteString("## Documentation\n\n")
		sb.WriteString(doc)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// IndexPage renders the docs landing page: one row per unit, loaded or
// not, linking to the per-unit pages.
func (g *Generator) IndexPage() string {
	var sb strings.Builder
	sb.WriteString("# Linked Capability Units\n\n")

	loaded := 0
	for _, unit := range g.units {
		if unit.Registrable() {
			loaded++
		}
	}
	sb.WriteString(fmt.Sprintf("%d units discovered, %d loaded.\n\n", len(g.units), loaded))

	sb.WriteString("| Unit | Version | State | Symbols | Description |\n")
	sb.WriteString("|------|---------|-------|---------|-------------|\n")
	for _, unit := range g.units {
		version, desc := "", ""
		if unit.Info != nil {
			version = unit.Info.Version
			desc = unit.Info.Description
		}
		symbols := 0
		for _, decls := range unit.Exports {
			symbols += len(decls)
		}
		sb.WriteString(fmt.Sprintf("| [%s](%s.md) | %s | %s | %d | %s |\n",
			unit.ID, unit.ID, version, unit.State, symbols, tableCell(desc)))
	}
	return sb.String()
}

// WriteAll renders every unit page plus the index into dir. A page that
// fails to render does not stop the others; failures are aggregated.
func (g *Generator) WriteAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create docs directory %s", dir)
	}

	var result *multierror.Error
	for _, unit := range g.units {
		page, err := g.UnitPage(unit)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		path := filepath.Join(dir, unit.ID+".md")
		if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "failed to write %s", path))
		}
	}

	indexPath := filepath.Join(dir, readmeName)
	if err := os.WriteFile(indexPath, []byte(g.IndexPage()), 0o644); err != nil {
		result = multierror.Append(result, errors.Wrapf(err, "failed to write %s", indexPath))
	}
	return result.ErrorOrNil()
}

// writeFrontmatter emits the YAML header. Extra keys from a README's
// own frontmatter ride along; generated keys win on collision.
func writeFrontmatter(sb *strings.Builder, unit *captypes.Unit, readmeMeta map[string]interface{}) {
	fm := yaml.MapSlice{
		{Key: "title", Value: unit.DeclaredName()},
		{Key: "unit", Value: unit.ID},
		{Key: "state", Value: string(unit.State)},
	}
	if unit.Info != nil {
		fm = append(fm,
			yaml.MapItem{Key: "version", Value: unit.Info.Version},
			yaml.MapItem{Key: "author", Value: unit.Info.Author},
			yaml.MapItem{Key: "platform", Value: unit.Info.Platform},
		)
	}
	generated := len(fm)

	extras := make([]string, 0, len(readmeMeta))
	for k := range readmeMeta {
		if !frontmatterKey(k) {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		fm = append(fm, yaml.MapItem{Key: k, Value: readmeMeta[k]})
	}

	out, err := yaml.Marshal(fm)
	if err != nil {
		out, _ = yaml.Marshal(fm[:generated])
	}
	sb.WriteString("---\n")
	sb.Write(out)
	sb.WriteString("---\n\n")
}

func frontmatterKey(k string) bool {
	switch k {
	case "title", "unit", "state", "version", "author", "platform":
		return true
	}
	return false
}

func writeEnvVars(sb *strings.Builder, vars map[string]captypes.EnvVarSchema) {
	if len(vars) == 0 {
		return
	}
	sb.WriteString("### Environment Variables\n\n")
	sb.WriteString("| Variable | Description | Required | Default |\n")
	sb.WriteString("|----------|-------------|----------|---------|\n")

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := vars[name]
		required := "no"
		if v.Required {
			required = "yes"
		}
		sb.WriteString(fmt.Sprintf("| `%s` | %s | %s | `%s` |\n",
			name, tableCell(v.Description), required, v.Default))
	}
	sb.WriteString("\n")
}

func writeSymbols(sb *strings.Builder, unit *captypes.Unit) {
	if len(unit.Exports) == 0 {
		return
	}
	sb.WriteString("## Available Functions\n\n")

	categories := make([]string, 0, len(unit.Exports))
	for cat := range unit.Exports {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		decls := unit.Exports[cat]
		if len(decls) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", cat))
		for _, decl := range decls {
			sb.WriteString(fmt.Sprintf("#### `%s`\n\n", signature(unit.ID, decl)))
			if decl.Description != "" {
				sb.WriteString(decl.Description + "\n\n")
			}
			if len(decl.Parameters) > 0 {
				for _, p := range decl.Parameters {
					sb.WriteString("- " + paramLine(p) + "\n")
				}
				sb.WriteString("\n")
			}
		}
	}
}

func writeLoadStatus(sb *strings.Builder, unit *captypes.Unit) {
	sb.WriteString("## Load Status\n\n")
	sb.WriteString(fmt.Sprintf("- **State:** %s\n", unit.State))
	if unit.LoadErr != nil {
		sb.WriteString(fmt.Sprintf("- **Error:** %s (%s)\n", unit.LoadErr.Message, unit.LoadErr.Kind))
	}
	sb.WriteString("\n")
}

// signature renders a call signature from the declared parameter hints,
// e.g. weather.get_forecast(city: string, days: integer) -> object.
func signature(unitID string, decl captypes.SymbolDecl) string {
	params := make([]string, 0, len(decl.Parameters))
	for _, p := range decl.Parameters {
		s := p.Name
		if p.Type != "" {
			s += ": " + p.Type
		}
		params = append(params, s)
	}
	sig := fmt.Sprintf("%s(%s)", captypes.QualifiedName(unitID, decl.Name), strings.Join(params, ", "))
	if decl.Returns != "" {
		sig += " -> " + decl.Returns
	}
	return sig
}

func paramLine(p captypes.ParamHint) string {
	typ := p.Type
	if typ == "" {
		typ = "any"
	}
	line := fmt.Sprintf("`%s` (%s", p.Name, typ)
	if p.Required {
		line += ", required"
	}
	line += ")"
	if p.Description != "" {
		line += ": " + p.Description
	}
	return line
}

// tableCell keeps free-form text from breaking the markdown table.
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// readmeParts loads frontmatter and body from a package unit's README,
// when one exists. Single-file units share the plugin root as their
// directory, so a root-level README never counts as theirs.
func readmeParts(unit *captypes.Unit) (map[string]interface{}, string, error) {
	if unit.Kind != captypes.KindPackage || unit.Dir == "" {
		return nil, "", nil
	}
	content, err := os.ReadFile(filepath.Join(unit.Dir, readmeName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", errors.Wrapf(err, "failed to read README for %s", unit.ID)
	}

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))
	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, "", errors.Wrapf(err, "failed to parse README for %s", unit.ID)
	}

	return meta.Get(pctx), extractBody(string(content)), nil
}

// extractBody strips YAML frontmatter from markdown content.
func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return strings.TrimSpace(content)
	}
	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(strings.Join(lines[end+1:], "\n"))
}

// Package depaudit aggregates the external dependency specifiers units
// declare and audits them against an installed-tool inventory. Units
// declare what they need ("curl>=7.0"); the auditor consolidates the
// declarations, flags disagreements, and checks them without ever
// installing anything.
package depaudit

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"

	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// specifierRe captures "name", optionally followed by a single
// comparison operator and a version.
var specifierRe = regexp.MustCompile(`^\s*([A-Za-z0-9._][A-Za-z0-9._+-]*)\s*(?:(==|>=|<=|>|<)\s*(\S+))?\s*$`)

// Specifier is one parsed dependency declaration.
type Specifier struct {
	Raw      string `json:"raw"`
	Name     string `json:"name"`
	Operator string `json:"operator,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Parse decodes a dependency specifier. A bare name means any version.
func Parse(raw string) (*Specifier, error) {
	m := specifierRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, errors.Errorf("invalid dependency specifier %q", raw)
	}
	s := &Specifier{Raw: strings.TrimSpace(raw), Name: m[1], Operator: m[2], Version: m[3]}
	if s.Operator != "" {
		if _, err := semver.NewVersion(s.Version); err != nil {
			return nil, errors.Errorf("invalid version in specifier %q", raw)
		}
	}
	return s, nil
}

// Constraint returns the semver constraint the specifier imposes, or
// nil for a bare name.
func (s *Specifier) Constraint() (*semver.Constraints, error) {
	if s.Operator == "" {
		return nil, nil
	}
	op := s.Operator
	if op == "==" {
		op = "="
	}
	c, err := semver.NewConstraint(op + s.Version)
	if err != nil {
		return nil, errors.Wrapf(err, "specifier %q", s.Raw)
	}
	return c, nil
}

// Matches reports whether an installed version satisfies the specifier.
func (s *Specifier) Matches(installed string) (bool, error) {
	c, err := s.Constraint()
	if err != nil {
		return false, err
	}
	if c == nil {
		return true, nil
	}
	v, err := semver.NewVersion(installed)
	if err != nil {
		return false, errors.Wrapf(err, "installed version %q", installed)
	}
	return c.Check(v), nil
}

// Requirement is one distinct declaration with the units behind it.
type Requirement struct {
	Raw     string     `json:"raw"`
	Spec    *Specifier `json:"spec,omitempty"`
	Owners  []string   `json:"owners"`
	Invalid string     `json:"invalid,omitempty"`
}

// Conflict groups the distinct specifiers competing over one name.
type Conflict struct {
	Name       string   `json:"name"`
	Specifiers []string `json:"specifiers"`
}

// Status classifies one requirement against an inventory.
type Status string

const (
	StatusOK         Status = "ok"
	StatusMissing    Status = "missing"
	StatusMismatch   Status = "mismatch"
	StatusUnparsable Status = "unparsable"
)

// Finding is the audit outcome for one requirement.
type Finding struct {
	Requirement
	Status    Status `json:"status"`
	Installed string `json:"installed,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Audit holds the consolidated declarations of a session.
type Audit struct {
	reqs  []*Requirement
	byRaw map[string]*Requirement
}

// New consolidates the dependency declarations of every unit, failed
// ones included. Identical raw specifiers merge; differing specifiers
// for the same name are all retained.
func New(units []*captypes.Unit) *Audit {
	a := &Audit{byRaw: map[string]*Requirement{}}
	for _, unit := range units {
		if unit == nil {
			continue
		}
		for _, raw := range unit.Dependencies {
			trimmed := strings.TrimSpace(raw)
			if trimmed == "" {
				continue
			}
			if req, seen := a.byRaw[trimmed]; seen {
				if !contains(req.Owners, unit.ID) {
					req.Owners = append(req.Owners, unit.ID)
				}
				continue
			}
			req := &Requirement{Raw: trimmed, Owners: []string{unit.ID}}
			spec, err := Parse(trimmed)
			if err != nil {
				req.Invalid = err.Error()
			} else {
				req.Spec = spec
			}
			a.byRaw[trimmed] = req
			a.reqs = append(a.reqs, req)
		}
	}
	return a
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Requirements returns the consolidated declarations in first-seen order.
func (a *Audit) Requirements() []*Requirement {
	return append([]*Requirement(nil), a.reqs...)
}

// Len reports the number of distinct raw specifiers.
func (a *Audit) Len() int {
	return len(a.reqs)
}

// Conflicts returns the names declared with more than one distinct
// specifier. Whether the specifiers could be co-satisfiable is left to
// the operator; disagreement alone is worth flagging.
func (a *Audit) Conflicts() []Conflict {
	byName := map[string][]string{}
	var names []string
	for _, req := range a.reqs {
		name := req.Raw
		if req.Spec != nil {
			name = req.Spec.Name
		}
		if _, seen := byName[name]; !seen {
			names = append(names, name)
		}
		byName[name] = append(byName[name], req.Raw)
	}

	var out []Conflict
	for _, name := range names {
		if specs := byName[name]; len(specs) > 1 {
			out = append(out, Conflict{Name: name, Specifiers: specs})
		}
	}
	return out
}

// ConsolidatedManifest renders the declarations as a requirements-style
// file, one specifier per line in first-seen order.
func (a *Audit) ConsolidatedManifest() string {
	var b strings.Builder
	b.WriteString("# Consolidated dependency manifest for linked capability units.\n")
	b.WriteString("# Generated by ldagent.\n")
	for _, req := range a.reqs {
		b.WriteString(req.Raw + "\n")
	}
	return b.String()
}

// Check audits every requirement against the installed inventory,
// mapping names to versions. An empty version means the tool is present
// but its version is unknown.
func (a *Audit) Check(installed map[string]string) []Finding {
	findings := make([]Finding, 0, len(a.reqs))
	for _, req := range a.reqs {
		findings = append(findings, a.checkOne(req, installed))
	}
	return findings
}

func (a *Audit) checkOne(req *Requirement, installed map[string]string) Finding {
	f := Finding{Requirement: *req}
	if req.Invalid != "" {
		f.Status = StatusUnparsable
		f.Detail = req.Invalid
		return f
	}

	version, present := installed[req.Spec.Name]
	if !present {
		f.Status = StatusMissing
		f.Detail = fmt.Sprintf("%s is not installed", req.Spec.Name)
		return f
	}
	f.Installed = version

	if req.Spec.Operator == "" {
		f.Status = StatusOK
		return f
	}
	if version == "" {
		f.Status = StatusUnparsable
		f.Detail = fmt.Sprintf("inventory has no version for %s", req.Spec.Name)
		return f
	}

	ok, err := req.Spec.Matches(version)
	switch {
	case err != nil:
		f.Status = StatusUnparsable
		f.Detail = err.Error()
	case ok:
		f.Status = StatusOK
	default:
		f.Status = StatusMismatch
		f.Detail = fmt.Sprintf("installed %s does not satisfy %s", version, req.Raw)
	}
	return f
}

// Stats summarizes the audit for presenters.
type Stats struct {
	Requirements int `json:"requirements"`
	Conflicts    int `json:"conflicts"`
	Invalid      int `json:"invalid"`
}

func (a *Audit) Stats() Stats {
	s := Stats{Requirements: len(a.reqs), Conflicts: len(a.Conflicts())}
	for _, req := range a.reqs {
		if req.Invalid != "" {
			s.Invalid++
		}
	}
	return s
}

// ReadInventory parses an installed-tool inventory file. Each line is
// "name==version", "name version", or a bare name; blank lines and
// #-comments are skipped.
func ReadInventory(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read inventory %s", path)
	}
	defer f.Close()

	inventory := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var name, version string
		if i := strings.Index(line, "=="); i >= 0 {
			name, version = line[:i], line[i+2:]
		} else {
			fields := strings.Fields(line)
			name = fields[0]
			if len(fields) > 1 {
				version = fields[1]
			}
		}
		inventory[strings.TrimSpace(name)] = strings.TrimSpace(version)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read inventory %s", path)
	}
	return inventory, nil
}

// SortFindings orders findings for display: problems first, then by
// name. The audit itself preserves first-seen order; this is purely
// presentational.
func SortFindings(findings []Finding) {
	rank := map[Status]int{StatusMissing: 0, StatusMismatch: 1, StatusUnparsable: 2, StatusOK: 3}
	sort.SliceStable(findings, func(i, j int) bool {
		if rank[findings[i].Status] != rank[findings[j].Status] {
			return rank[findings[i].Status] < rank[findings[j].Status]
		}
		return findings[i].Raw < findings[j].Raw
	})
}

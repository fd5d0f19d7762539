package depaudit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

func unitWithDeps(id string, deps ...string) *captypes.Unit {
	return &captypes.Unit{
		ID:           id,
		Kind:         captypes.KindSingleFile,
		State:        captypes.StateLoaded,
		Dependencies: deps,
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		raw      string
		name     string
		operator string
		version  string
	}{
		{"curl", "curl", "", ""},
		{"curl>=7.0", "curl", ">=", "7.0"},
		{"curl >= 7.0", "curl", ">=", "7.0"},
		{"jq==1.6", "jq", "==", "1.6"},
		{"openssl<=3.0.0", "openssl", "<=", "3.0.0"},
		{"node>18", "node", ">", "18"},
		{"python3.11<4", "python3.11", "<", "4"},
		{"lib-foo>1.2.3-beta.1", "lib-foo", ">", "1.2.3-beta.1"},
	}
	for _, tc := range cases {
		spec, err := Parse(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.name, spec.Name, tc.raw)
		assert.Equal(t, tc.operator, spec.Operator, tc.raw)
		assert.Equal(t, tc.version, spec.Version, tc.raw)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, raw := range []string{
		"",
		">=1.0",
		"curl>=",
		"curl==not_a_version",
		"curl ~> 1.0",
		"two words",
	} {
		_, err := Parse(raw)
		assert.Error(t, err, "%q should not parse", raw)
	}
}

func TestSpecifier_Matches(t *testing.T) {
	eq, err := Parse("curl==7.1.0")
	require.NoError(t, err)
	ok, err := eq.Matches("7.1.0")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = eq.Matches("7.1.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ge, err := Parse("curl>=7.0")
	require.NoError(t, err)
	ok, err = ge.Matches("7.81.0")
	require.NoError(t, err)
	assert.True(t, ok)

	lt, err := Parse("node<2")
	require.NoError(t, err)
	ok, err = lt.Matches("2.0.0")
	require.NoError(t, err)
	assert.False(t, ok)

	bare, err := Parse("jq")
	require.NoError(t, err)
	ok, err = bare.Matches("0.0.1-whatever")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = ge.Matches("garbage")
	assert.Error(t, err)
}

func TestNew_ConsolidatesFirstSeenOrder(t *testing.T) {
	a := unitWithDeps("a", "curl>=7.0", "jq")
	b := unitWithDeps("b", "jq", "curl>=7.0", "ripgrep==13.0.0")

	audit := New([]*captypes.Unit{a, b})
	require.Equal(t, 3, audit.Len())

	reqs := audit.Requirements()
	assert.Equal(t, "curl>=7.0", reqs[0].Raw)
	assert.Equal(t, []string{"a", "b"}, reqs[0].Owners)
	assert.Equal(t, "jq", reqs[1].Raw)
	assert.Equal(t, []string{"a", "b"}, reqs[1].Owners)
	assert.Equal(t, "ripgrep==13.0.0", reqs[2].Raw)
	assert.Equal(t, []string{"b"}, reqs[2].Owners)
}

func TestNew_IncludesFailedUnits(t *testing.T) {
	failed := unitWithDeps("broken", "curl>=7.0")
	failed.State = captypes.StateFailed

	audit := New([]*captypes.Unit{failed})
	assert.Equal(t, 1, audit.Len())
}

func TestConflicts_RetainsDisagreeingSpecifiers(t *testing.T) {
	a := unitWithDeps("a", "curl>=7.0")
	b := unitWithDeps("b", "curl>=8.0")
	c := unitWithDeps("c", "curl", "jq==1.6")

	audit := New([]*captypes.Unit{a, b, c})
	// All three curl declarations are retained verbatim.
	assert.Equal(t, 4, audit.Len())

	conflicts := audit.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "curl", conflicts[0].Name)
	assert.Equal(t, []string{"curl>=7.0", "curl>=8.0", "curl"}, conflicts[0].Specifiers)
}

func TestConsolidatedManifest(t *testing.T) {
	a := unitWithDeps("a", "curl>=7.0", "jq")
	b := unitWithDeps("b", "jq")

	manifest := New([]*captypes.Unit{a, b}).ConsolidatedManifest()
	assert.Contains(t, manifest, "# Generated by ldagent.\n")
	assert.Contains(t, manifest, "curl>=7.0\njq\n")
}

func TestCheck(t *testing.T) {
	unit := unitWithDeps("u",
		"curl>=7.0",
		"curl>=9.0",
		"jq",
		"jq>=1.6",
		"ripgrep>=13.0",
		"bad spec!!",
	)
	audit := New([]*captypes.Unit{unit})

	installed := map[string]string{
		"curl": "7.81.0",
		"jq":   "", // present, version unknown
	}
	findings := audit.Check(installed)
	require.Len(t, findings, 6)

	byRaw := map[string]Finding{}
	for _, f := range findings {
		byRaw[f.Raw] = f
	}

	assert.Equal(t, StatusOK, byRaw["curl>=7.0"].Status)
	assert.Equal(t, "7.81.0", byRaw["curl>=7.0"].Installed)

	assert.Equal(t, StatusMismatch, byRaw["curl>=9.0"].Status)
	assert.Contains(t, byRaw["curl>=9.0"].Detail, "does not satisfy")

	assert.Equal(t, StatusOK, byRaw["jq"].Status)
	assert.Equal(t, StatusUnparsable, byRaw["jq>=1.6"].Status)
	assert.Contains(t, byRaw["jq>=1.6"].Detail, "no version")

	assert.Equal(t, StatusMissing, byRaw["ripgrep>=13.0"].Status)
	assert.Equal(t, StatusUnparsable, byRaw["bad spec!!"].Status)
}

func TestReadInventory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.txt")
	content := `# system tools
curl==7.81.0
jq 1.6
ripgrep   # version unknown

node==18.19.0  # trailing comment
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	inventory, err := ReadInventory(path)
	require.NoError(t, err)
	assert.Equal(t, "7.81.0", inventory["curl"])
	assert.Equal(t, "1.6", inventory["jq"])
	assert.Equal(t, "", inventory["ripgrep"])
	assert.Equal(t, "18.19.0", inventory["node"])
	assert.Len(t, inventory, 4)

	_, err = ReadInventory(filepath.Join(dir, "absent.txt"))
	assert.Error(t, err)
}

func TestSortFindings(t *testing.T) {
	findings := []Finding{
		{Requirement: Requirement{Raw: "z"}, Status: StatusOK},
		{Requirement: Requirement{Raw: "b"}, Status: StatusMismatch},
		{Requirement: Requirement{Raw: "a"}, Status: StatusMissing},
		{Requirement: Requirement{Raw: "c"}, Status: StatusMissing},
	}
	SortFindings(findings)

	var raws []string
	for _, f := range findings {
		raws = append(raws, f.Raw)
	}
	assert.Equal(t, []string{"a", "c", "b", "z"}, raws)
}

func TestStats(t *testing.T) {
	a := unitWithDeps("a", "curl>=7.0", "nope!!")
	b := unitWithDeps("b", "curl>=8.0")

	s := New([]*captypes.Unit{a, b}).Stats()
	assert.Equal(t, 3, s.Requirements)
	assert.Equal(t, 1, s.Conflicts)
	assert.Equal(t, 1, s.Invalid)
}

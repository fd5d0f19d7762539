package tui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ld-agent/ld-agent-go/pkg/loader"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

func TestBuildSymbolRows(t *testing.T) {
	_, reg := NewFixtureSession("tide", "weather")

	rows := BuildSymbolRows(reg, "")
	require.Len(t, rows, 2)
	assert.Equal(t, "tide.ping", rows[0].ID)
	assert.Equal(t, "tools", rows[0].Category)
	assert.Equal(t, "tide", rows[0].UnitID)

	assert.Empty(t, BuildSymbolRows(reg, "prompts"))
	assert.Len(t, BuildSymbolRows(reg, "tools"), 2)
}

func TestBuildUnitRows(t *testing.T) {
	session := &loader.Session{
		Units: []*captypes.Unit{
			NewFixtureUnit("tide"),
			NewFixtureFailedUnit("broken"),
		},
	}

	rows := BuildUnitRows(session)
	require.Len(t, rows, 2)

	assert.Equal(t, "tide", rows[0].ID)
	assert.Equal(t, "loaded", rows[0].State)
	assert.Equal(t, 1, rows[0].Symbols)
	assert.Equal(t, "Helpers for tide", rows[0].Description)

	assert.Equal(t, "broken", rows[1].ID)
	assert.Equal(t, "failed", rows[1].State)
	assert.Equal(t, 0, rows[1].Symbols)
}

func TestFormatRows_WindowsAroundSelection(t *testing.T) {
	f := NewRowFormatter(100)

	rows := make([]Row, 10)
	for i := range rows {
		rows[i] = Row{Kind: RowSymbol, ID: "unit.symbol" + strings.Repeat("x", i), Category: "tools"}
	}

	out := f.FormatRows(rows, 0, 4)
	assert.Equal(t, 5, len(strings.Split(out, "\n"))) // 4 rows + overflow line
	assert.Contains(t, out, "... 6 more")
	assert.Contains(t, out, "▸")

	// Selection beyond the window scrolls it.
	out = f.FormatRows(rows, 9, 4)
	assert.NotContains(t, out, "more")

	assert.Contains(t, f.FormatRows(nil, 0, 4), "no rows")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "exactly10!", Truncate("exactly10!", 10))
	assert.Equal(t, "long st...", Truncate("long string here", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "", Truncate("abc", 0))
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ld-agent/ld-agent-go/pkg/loader"
	"github.com/ld-agent/ld-agent-go/pkg/registry"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// RowKind distinguishes symbol rows from unit rows.
type RowKind int

const (
	RowSymbol RowKind = iota
	RowUnit
)

// Row is one line in the list pane.
type Row struct {
	Kind        RowKind
	ID          string // qualified symbol name, or unit ID
	Category    string
	UnitID      string
	State       string
	Description string
	Symbols     int
}

// BuildSymbolRows lists registered symbols, optionally narrowed to one
// category.
func BuildSymbolRows(reg *registry.Registry, category string) []Row {
	var categories []string
	if category != "" {
		categories = []string{category}
	}

	var rows []Row
	for desc := range reg.Symbols(categories...) {
		rows = append(rows, Row{
			Kind:        RowSymbol,
			ID:          desc.QualifiedName,
			Category:    desc.Category,
			UnitID:      desc.UnitID,
			Description: desc.Description,
		})
	}
	return rows
}

// BuildUnitRows lists every discovered unit, including failed ones.
func BuildUnitRows(session *loader.Session) []Row {
	rows := make([]Row, 0, len(session.Units))
	for _, unit := range session.Units {
		row := Row{
			Kind:   RowUnit,
			ID:     unit.ID,
			UnitID: unit.ID,
			State:  string(unit.State),
		}
		if unit.Info != nil {
			row.Description = unit.Info.Description
		}
		for _, decls := range unit.Exports {
			row.Symbols += len(decls)
		}
		rows = append(rows, row)
	}
	return rows
}

// RowFormatter renders list rows (Tokyo Night)
type RowFormatter struct {
	width         int
	cursorStyle   lipgloss.Style
	nameStyle     lipgloss.Style
	categoryStyle lipgloss.Style
	loadedStyle   lipgloss.Style
	failedStyle   lipgloss.Style
	descStyle     lipgloss.Style
}

// NewRowFormatter creates a formatter for the given terminal width.
func NewRowFormatter(width int) *RowFormatter {
	return &RowFormatter{
		width:         width,
		cursorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff")).Bold(true), // Cyan
		nameStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("#bb9af7")).Bold(true), // Purple
		categoryStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")),            // Yellow
		loadedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")),            // Green
		failedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")),            // Red
		descStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// SetWidth updates the width for row formatting
func (f *RowFormatter) SetWidth(width int) {
	f.width = width
}

// FormatRow renders a single list line.
func (f *RowFormatter) FormatRow(row Row, selected bool) string {
	cursor := "  "
	if selected {
		cursor = f.cursorStyle.Render("▸ ")
	}

	switch row.Kind {
	case RowUnit:
		state := f.loadedStyle.Render(row.State)
		if row.State == string(captypes.StateFailed) {
			state = f.failedStyle.Render(row.State)
		}
		line := fmt.Sprintf("%s%s  %s  %d symbols", cursor, f.nameStyle.Render(row.ID), state, row.Symbols)
		if row.Description != "" {
			line += "  " + f.descStyle.Render(Truncate(row.Description, 40))
		}
		return line
	default:
		line := fmt.Sprintf("%s%s  %s", cursor, f.nameStyle.Render(row.ID), f.categoryStyle.Render(row.Category))
		if row.Description != "" {
			line += "  " + f.descStyle.Render(Truncate(row.Description, 48))
		}
		return line
	}
}

// FormatRows renders a window of rows that keeps the selection visible.
func (f *RowFormatter) FormatRows(rows []Row, selected, height int) string {
	if len(rows) == 0 {
		return f.descStyle.Render("  (no rows)")
	}
	if height < 1 {
		height = 1
	}

	start := 0
	if selected >= height {
		start = selected - height + 1
	}
	end := start + height
	if end > len(rows) {
		end = len(rows)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		if i > start {
			b.WriteString("\n")
		}
		b.WriteString(f.FormatRow(rows[i], i == selected))
	}
	if end < len(rows) {
		b.WriteString(f.descStyle.Render(fmt.Sprintf("\n  ... %d more", len(rows)-end)))
	}
	return b.String()
}

// Truncate shortens a string to max runes with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/migrate"
)

// StatusOptions configures the rendering of schema diffs
type StatusOptions struct {
	NoColor bool
	// Verbose lists every mismatch below the table
	Verbose bool
}

// RenderStatus renders one row per entity type with the action a sync would
// take and returns the number of types out of sync
func RenderStatus(w io.Writer, diffs []*migrate.Diff, opts StatusOptions) int {
	table := NewTable(w, opts.NoColor,
		Column{Title: "Entity"},
		Column{Title: "Table"},
		Column{Title: "State", Style: stateColor},
		Column{Title: "Action", Style: actionColor},
	)

	pending := 0
	for _, d := range diffs {
		if !d.Synced() {
			pending++
		}
		table.AddRow(d.Type.Name, d.Type.TableName(), stateLabel(d), Action(d))
	}
	table.Render()

	if opts.Verbose && pending > 0 {
		fmt.Fprintln(w)
		for _, d := range diffs {
			for _, m := range d.Mismatches {
				fmt.Fprintf(w, "  %s: %s\n", d.Type.Name, m.String())
			}
		}
	}
	return pending
}

// Action names what a sync does for the diff
func Action(d *migrate.Diff) string {
	switch {
	case d.Synced():
		return "none"
	case d.TableMissing():
		return "create"
	case d.NeedsRecreate():
		return "recreate"
	}

	var parts []string
	if columns := d.MissingColumns(); len(columns) > 0 {
		parts = append(parts, "add "+strings.Join(columns, ", "))
	}
	if len(d.JoinTableMismatches()) > 0 {
		parts = append(parts, "repair join tables")
	}
	return strings.Join(parts, "; ")
}

func stateLabel(d *migrate.Diff) string {
	switch n := len(d.Mismatches); n {
	case 0:
		return "synced"
	case 1:
		return "1 mismatch"
	default:
		return fmt.Sprintf("%d mismatches", n)
	}
}

func stateColor(label string) *color.Color {
	if label == "synced" {
		return color.New(color.FgGreen)
	}
	return color.New(color.FgYellow)
}

// actionColor marks the actions that rewrite a table
func actionColor(action string) *color.Color {
	switch action {
	case "none":
		return color.New(color.FgHiBlack)
	case "recreate":
		return color.New(color.FgRed, color.Bold)
	}
	return nil
}

package export

import (
	"context"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CompletenessReport compares the exported table list with the tables present in the schema.
type CompletenessReport struct {
	// Missing tables exist in the schema but are not exported.
	Missing []string
	// Unexpected tables are exported but absent from the schema.
	Unexpected []string
}

// Complete reports whether both lists are empty.
func (r CompletenessReport) Complete() bool {
	return len(r.Missing) == 0 && len(r.Unexpected) == 0
}

// CheckCompleteness reads the schema's table list; it never modifies storage.
func CheckCompleteness(ctx context.Context, store Store) (CompletenessReport, error) {
	schemaTables, err := store.ListTables(ctx)
	if err != nil {
		return CompletenessReport{}, err
	}

	exported := make(map[string]struct{})
	for _, name := range append(AllTables(), ReplicationTables...) {
		if name == tableEditorSanitised {
			name = tableEditor
		}
		exported[name] = struct{}{}
	}
	present := make(map[string]struct{}, len(schemaTables))
	for _, name := range schemaTables {
		present[name] = struct{}{}
	}

	var report CompletenessReport
	for _, name := range schemaTables {
		if _, ignored := ignoredTables[name]; ignored || strings.HasPrefix(name, "sqlite_") {
			continue
		}
		if _, ok := exported[name]; !ok {
			report.Missing = append(report.Missing, name)
		}
	}
	for name := range exported {
		if _, ok := present[name]; !ok {
			report.Unexpected = append(report.Unexpected, name)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Unexpected)
	return report, nil
}

// Render formats the report as a table for terminal output.
func (r CompletenessReport) Render() string {
	if r.Complete() {
		return "All schema tables are exported.\n"
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Table", "Problem"})
	for _, name := range r.Missing {
		tw.AppendRow(table.Row{name, "in schema, not exported"})
	}
	for _, name := range r.Unexpected {
		tw.AppendRow(table.Row{name, "exported, not in schema"})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
	})
	return tw.Render() + "\n"
}

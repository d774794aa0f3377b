package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/rbkit/pkg/engine"
	"github.com/openfroyo/rbkit/pkg/resource"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// printValue writes v as JSON or YAML. Table output of arbitrary values
// falls back to YAML.
func printValue(w io.Writer, v any) error {
	switch output {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML, formatTable:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown output format %q", output)
}

// printRecords writes records as a table with one column per resource
// column, or as JSON/YAML with the total.
func printRecords(w io.Writer, r *resource.Resource, resp *engine.Response) error {
	if output != formatTable {
		return printValue(w, map[string]any{"data": resp.Records(), "total": resp.Total})
	}

	cols := r.Columns()
	tw := newTable(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = strings.ToUpper(c.Name)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, rec := range resp.Records() {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cell(rec[c.Name])
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d of %d %s\n", len(resp.Records()), resp.Total, strings.ToLower(r.Label()))
	return nil
}

// printRecord writes a single record as attribute/value pairs in schema order.
func printRecord(w io.Writer, r *resource.Resource, rec engine.Record) error {
	if output != formatTable {
		return printValue(w, rec)
	}

	tw := newTable(w)
	seen := make(map[string]bool, len(rec))
	for _, name := range r.Schema().Names() {
		if v, ok := rec[name]; ok {
			fmt.Fprintf(tw, "%s:\t%s\n", name, cell(v))
			seen[name] = true
		}
	}
	for _, name := range slices.Sorted(maps.Keys(rec)) {
		if !seen[name] {
			fmt.Fprintf(tw, "%s:\t%s\n", name, cell(rec[name]))
		}
	}
	return tw.Flush()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// cell renders a value for a table cell. Nested values are written as JSON.
func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
	return fmt.Sprint(v)
}

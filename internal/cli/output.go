package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/geoknoesis/sparql-rows/reader"
)

// ValidOutputFormats defines the allowed row output formats.
var ValidOutputFormats = []string{"csv", "tsv", "json"}

// columnsOf returns the sorted union of binding names over rows.
func columnsOf(rows []reader.StringRow) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// writeRows renders rows in format. Unbound cells are empty in CSV and TSV
// and null in JSON. Without columns or rows CSV and TSV output is empty.
func writeRows(w io.Writer, format string, columns []string, rows []reader.StringRow) error {
	if len(columns) == 0 {
		columns = columnsOf(rows)
	}
	switch format {
	case "csv", "tsv":
		cw := csv.NewWriter(w)
		if format == "tsv" {
			cw.Comma = '\t'
		}
		if len(columns) > 0 {
			if err := cw.Write(columns); err != nil {
				return err
			}
		}
		record := make([]string, len(columns))
		for _, row := range rows {
			for i, name := range columns {
				record[i] = row.Value(name)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case "json":
		out := make([]map[string]*string, len(rows))
		for i, row := range rows {
			obj := make(map[string]*string, len(columns))
			for _, name := range columns {
				obj[name] = row[name]
			}
			out[i] = obj
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		return fmt.Errorf("invalid output format %q: must be one of %v", format, ValidOutputFormats)
	}
}

func parseColumns(s string) []string {
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c), "?")); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func isValidOutputFormat(format string) bool {
	for _, f := range ValidOutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

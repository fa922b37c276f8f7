// Package report renders revision records for operators: a terminal table
// for interactive runs, YAML or JSON for downstream tooling.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/teranos/slice/am"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/revision"
)

// Render writes records in the given format (table, yaml or json). Records
// are sorted by key and each record's actions by type then object.
func Render(w io.Writer, format string, records []revision.Record) error {
	records = sorted(records)

	switch format {
	case am.FormatTable, "":
		return renderTable(w, records)
	case am.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return errors.Wrap(err, "encode yaml report")
		}
		return errors.Wrap(enc.Close(), "flush yaml report")
	case am.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(records), "encode json report")
	default:
		return errors.Configurationf("unknown report format %q", format)
	}
}

// WriteFile renders records to path, or to stdout when path is empty.
func WriteFile(path, format string, records []revision.Record) error {
	if path == "" {
		return Render(os.Stdout, format, records)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create report %s", path)
	}
	if err := Render(f, format, records); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close report %s", path)
}

func renderTable(w io.Writer, records []revision.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No changes since the previous release.")
		return err
	}

	data := pterm.TableData{{"Key", "Class", "Name", "Actions"}}
	for _, rec := range records {
		actions := make([]string, len(rec.Actions))
		for i, a := range rec.Actions {
			actions[i] = a.String()
		}
		data = append(data, []string{rec.Key.String(), rec.Class, rec.Name, strings.Join(actions, " ")})
	}

	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "render report table")
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func sorted(records []revision.Record) []revision.Record {
	out := make([]revision.Record, len(records))
	for i, rec := range records {
		actions := append(rec.Actions[:0:0], rec.Actions...)
		sort.Slice(actions, func(a, b int) bool { return actions[a].Less(actions[b]) })
		rec.Actions = actions
		out[i] = rec
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

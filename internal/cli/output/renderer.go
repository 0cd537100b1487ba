// Package output renders query results and catalog listings for the CLI.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/dbal/pkg/core"
	"github.com/leapstack-labs/dbal/pkg/result"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Mode selects the output format.
type Mode string

// Output modes.
const (
	ModeAuto  Mode = "auto"
	ModeTable Mode = "table"
	ModeJSON  Mode = "json"
	ModeYAML  Mode = "yaml"
	ModeCSV   Mode = "csv"
)

// Modes lists the accepted output modes, for flag completion.
func Modes() []string {
	return []string{string(ModeAuto), string(ModeTable), string(ModeJSON), string(ModeYAML), string(ModeCSV)}
}

// Renderer writes results to out and diagnostics to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
}

// NewRenderer creates a renderer. ModeAuto resolves to a table when out is
// a terminal and to JSON otherwise.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	if mode == "" || mode == ModeAuto {
		mode = ModeJSON
		if isTerminal(out) {
			mode = ModeTable
		}
	}
	return &Renderer{out: out, errOut: errOut, mode: mode}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Mode returns the effective output mode.
func (r *Renderer) Mode() Mode { return r.mode }

// Println writes a line of plain text to the result writer.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Warnf writes a diagnostic line to the error writer.
func (r *Renderer) Warnf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.errOut, format+"\n", a...)
}

// Rows renders the rows of rs in column order.
func (r *Renderer) Rows(rs *result.ResultSet) error {
	cols := rs.ColumnNames()
	rows := rs.All()

	switch r.mode {
	case ModeJSON:
		if rows == nil {
			rows = []core.Row{}
		}
		return r.encodeJSON(rows)
	case ModeYAML:
		return r.encodeYAML(rowsNode(cols, rows))
	case ModeCSV:
		return r.writeCSV(cols, textRows(cols, rows))
	default:
		if len(rows) == 0 {
			r.Println("(0 rows)")
			return nil
		}
		r.writeTable(cols, textRows(cols, rows))
		_, _ = fmt.Fprintf(r.out, "(%d rows)\n", len(rows))
		return nil
	}
}

// writeOutcome is the structured form of a statement that returns no rows.
type writeOutcome struct {
	AffectedRows int64 `json:"affected_rows" yaml:"affected_rows"`
	LastInsertID int64 `json:"last_insert_id" yaml:"last_insert_id"`
}

// Affected summarizes a write result.
func (r *Renderer) Affected(rs *result.ResultSet) error {
	w := writeOutcome{AffectedRows: rs.AffectedRows(), LastInsertID: rs.LastInsertID()}
	switch r.mode {
	case ModeJSON:
		return r.encodeJSON(w)
	case ModeYAML:
		return r.encodeYAML(w)
	case ModeCSV:
		return r.writeCSV([]string{"affected_rows", "last_insert_id"},
			[][]string{{fmt.Sprint(w.AffectedRows), fmt.Sprint(w.LastInsertID)}})
	default:
		msg := fmt.Sprintf("OK, %d rows affected", w.AffectedRows)
		if w.LastInsertID > 0 {
			msg += fmt.Sprintf(" (last insert id %d)", w.LastInsertID)
		}
		r.Println(msg)
		return nil
	}
}

// Object renders v. JSON and YAML encode v itself; table and CSV modes
// render the given header and rows instead.
func (r *Renderer) Object(v any, header []string, rows [][]string) error {
	switch r.mode {
	case ModeJSON:
		return r.encodeJSON(v)
	case ModeYAML:
		return r.encodeYAML(v)
	case ModeCSV:
		return r.writeCSV(header, rows)
	default:
		r.writeTable(header, rows)
		return nil
	}
}

func (r *Renderer) encodeJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Renderer) encodeYAML(v any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (r *Renderer) writeCSV(header []string, rows [][]string) error {
	w := csv.NewWriter(r.out)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

func (r *Renderer) writeTable(header []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}
	t.Render()
}

// textRows formats every cell; NULL is spelled out.
func textRows(cols []string, rows []core.Row) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(cols))
		for j, c := range cols {
			cells[j] = FormatValue(row.Value(c))
		}
		out[i] = cells
	}
	return out
}

// FormatValue renders a value for table and CSV output.
func FormatValue(v core.Value) string {
	return v.String()
}

// rowsNode builds a YAML sequence of mappings that keeps column order.
func rowsNode(cols []string, rows []core.Row) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, row := range rows {
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, c := range cols {
			var v yaml.Node
			if err := v.Encode(row.Value(c)); err != nil {
				v = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: row.Value(c).Text()}
			}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c}, &v)
		}
		seq.Content = append(seq.Content, m)
	}
	return seq
}

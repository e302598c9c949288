package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fluxr/fluxr/internal/domain"
)

// Format represents an output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTSV   Format = "tsv"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML, FormatTSV:
		return f, nil
	case "", "text":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json, yaml or tsv)", s)
	}
}

// Options for rendering
type Options struct {
	Format    Format
	Porcelain bool
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	opts   Options
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, opts Options) *Renderer {
	return &Renderer{
		writer: writer,
		opts:   opts,
	}
}

// Format returns the renderer's output format.
func (r *Renderer) Format() Format {
	return r.opts.Format
}

// Structured reports whether the format is machine readable.
func (r *Renderer) Structured() bool {
	return r.opts.Format == FormatJSON || r.opts.Format == FormatYAML
}

// Render writes data as JSON or YAML according to the renderer's format.
func (r *Renderer) Render(data interface{}) error {
	if r.opts.Format == FormatYAML {
		return r.RenderYAML(data)
	}
	return r.RenderJSON(data)
}

// RenderJSON renders data as JSON
func (r *Renderer) RenderJSON(data interface{}) error {
	encoder := json.NewEncoder(r.writer)
	if !r.opts.Porcelain {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// RenderYAML renders data as YAML
func (r *Renderer) RenderYAML(data interface{}) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	return encoder.Encode(data)
}

// RenderTSV renders data as tab-separated values
func (r *Renderer) RenderTSV(headers []string, rows [][]string) error {
	if _, err := fmt.Fprintln(r.writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(r.writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// RenderTable renders data as a formatted table
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	if r.opts.Format == FormatTSV || r.opts.Porcelain {
		return r.RenderTSV(headers, rows)
	}
	if len(rows) == 0 {
		return nil
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	r.renderTableRow(headers, widths)
	r.renderTableSeparator(widths)
	for _, row := range rows {
		r.renderTableRow(row, widths)
	}
	return nil
}

func (r *Renderer) renderTableRow(cells []string, widths []int) {
	var line strings.Builder
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		if i > 0 {
			line.WriteString("  ")
		}
		fmt.Fprintf(&line, "%-*s", widths[i], cell)
	}
	fmt.Fprintln(r.writer, strings.TrimRight(line.String(), " "))
}

func (r *Renderer) renderTableSeparator(widths []int) {
	parts := make([]string, len(widths))
	for i, width := range widths {
		parts[i] = strings.Repeat("-", width)
	}
	fmt.Fprintln(r.writer, strings.Join(parts, "  "))
}

// ItemHeaders are the table columns for board items.
var ItemHeaders = []string{"ID", "KIND", "STATUS", "POS", "PRIORITY", "NAME"}

// ItemRows converts board items into table rows.
func ItemRows(items []domain.BoardItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			it.ID,
			string(it.EffectiveKind()),
			string(it.Status),
			fmt.Sprint(it.Position),
			string(it.EffectivePriority()),
			it.Name,
		})
	}
	return rows
}

// ColumnView is one rendered board column.
type ColumnView struct {
	ID    domain.Status      `json:"id" yaml:"id"`
	Title string             `json:"title" yaml:"title"`
	Color string             `json:"color" yaml:"color"`
	Items []domain.BoardItem `json:"items" yaml:"items"`
}

// BoardView is the rendered board of one product.
type BoardView struct {
	Product      string       `json:"product" yaml:"product"`
	Filter       string       `json:"filter" yaml:"filter"`
	ActiveFilter int          `json:"active_filter_count" yaml:"active_filter_count"`
	Columns      []ColumnView `json:"columns" yaml:"columns"`
}

// Columns orders partitioned buckets by the fixed board columns.
func Columns(buckets map[domain.Status][]domain.BoardItem) []ColumnView {
	cols := domain.Columns()
	out := make([]ColumnView, 0, len(cols))
	for _, c := range cols {
		items := buckets[c.ID]
		if items == nil {
			items = []domain.BoardItem{}
		}
		out = append(out, ColumnView{ID: c.ID, Title: c.Title, Color: c.Color, Items: items})
	}
	return out
}

// BoardText renders a board as plain text, one column after another.
func BoardText(view BoardView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (filter: %s)\n", view.Product, view.Filter)
	for _, col := range view.Columns {
		fmt.Fprintf(&b, "\n%s (%d)\n", col.Title, len(col.Items))
		for i, it := range col.Items {
			fmt.Fprintf(&b, "  %d. %-9s %-8s %-16s %s\n", i, it.ID, it.EffectiveKind(), it.EffectivePriority(), it.Name)
		}
	}
	return b.String()
}

// RenderBoard writes a board in the renderer's format.
func (r *Renderer) RenderBoard(view BoardView) error {
	switch r.opts.Format {
	case FormatJSON, FormatYAML:
		return r.Render(view)
	case FormatTSV:
		var rows [][]string
		for _, col := range view.Columns {
			rows = append(rows, ItemRows(col.Items)...)
		}
		return r.RenderTSV(ItemHeaders, rows)
	default:
		_, err := io.WriteString(r.writer, BoardText(view))
		return err
	}
}

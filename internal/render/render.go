// Package render writes command results as JSON, YAML or aligned tables.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/width"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name. An empty name is FormatTable.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be one of: table, json, yaml", s)
	}
}

// Renderer handles output rendering
type Renderer struct {
	w      io.Writer
	format Format
}

func NewRenderer(w io.Writer, format Format) *Renderer {
	if format == "" {
		format = FormatTable
	}
	return &Renderer{w: w, format: format}
}

// Structured reports whether the renderer emits a machine-readable format.
func (r *Renderer) Structured() bool {
	return r.format != FormatTable
}

// Render writes data in the structured format. Table renderers fall back to
// indented JSON, so callers should check Structured and print their own
// human form first.
func (r *Renderer) Render(data any) error {
	if r.format == FormatYAML {
		return RenderYAML(r.w, data)
	}
	return RenderJSON(r.w, data)
}

// RenderJSON writes data as indented JSON.
func RenderJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}

// RenderYAML writes data as YAML. Values go through JSON first so struct
// json tags name the keys.
func RenderYAML(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}

// Table writes rows under headers with columns padded to the widest cell.
// Wide (east asian) runes count as two columns. Nothing is written when rows
// is empty.
func Table(w io.Writer, headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = cellWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && cellWidth(cell) > widths[i] {
				widths[i] = cellWidth(cell)
			}
		}
	}

	if err := tableRow(w, headers, widths); err != nil {
		return err
	}
	sep := make([]string, len(widths))
	for i, n := range widths {
		sep[i] = strings.Repeat("-", n)
	}
	if err := tableRow(w, sep, widths); err != nil {
		return err
	}
	for _, row := range rows {
		if err := tableRow(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

func tableRow(w io.Writer, cells []string, widths []int) error {
	var b strings.Builder
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		b.WriteString(cell)
		if i < len(cells)-1 && i < len(widths)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-cellWidth(cell)+2))
		}
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func cellWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

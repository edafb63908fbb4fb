package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Cells wider than this wrap onto further lines.
const maxColumnWidth = 72

// grid is a listing table. Columns are left aligned unless marked numeric.
type grid struct {
	headers []string
	numeric map[int]bool
	rows    [][]string
}

func newGrid(headers ...string) *grid {
	return &grid{headers: headers, numeric: make(map[int]bool)}
}

// alignRight marks zero-based columns holding counts, sizes or durations.
func (g *grid) alignRight(columns ...int) *grid {
	for _, c := range columns {
		g.numeric[c] = true
	}
	return g
}

func (g *grid) appendRows(rows [][]string) *grid {
	g.rows = append(g.rows, rows...)
	return g
}

func (g *grid) String() string {
	if len(g.headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(g.headers))
	configs := make([]table.ColumnConfig, len(g.headers))
	for i, h := range g.headers {
		header[i] = h
		configs[i] = table.ColumnConfig{
			Number:           i + 1,
			Align:            text.AlignLeft,
			AlignHeader:      text.AlignLeft,
			WidthMax:         maxColumnWidth,
			WidthMaxEnforcer: text.WrapSoft,
		}
		if g.numeric[i] {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range g.rows {
		// Short rows are padded so every record fills the header width.
		r := make(table.Row, len(g.headers))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

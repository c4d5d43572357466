package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/rankgrid/internal/engine/heatmap"
	"github.com/rendis/rankgrid/internal/model"
	"github.com/rendis/rankgrid/internal/tui/styles"
)

// HeatGrid renders a scan as a square of colored rank cells, north at the top.
// Cells not scanned yet are drawn as pending, so the grid can fill in live.
type HeatGrid struct {
	size  int
	cells [][]*model.HeatCell // [displayRow][displayCol]
}

// NewHeatGrid creates an empty grid for spec.
func NewHeatGrid(spec model.GridSpec) HeatGrid {
	size := spec.Size
	if size <= 0 {
		size = model.DefaultGridSize
	}
	cells := make([][]*model.HeatCell, size)
	for i := range cells {
		cells[i] = make([]*model.HeatCell, size)
	}
	return HeatGrid{size: size, cells: cells}
}

// HeatGridFromScan places every cell of a finished or cancelled scan. Cells
// are positioned by grid offset, so a cancelled scan keeps its gaps where
// they belong instead of being packed to the top.
func HeatGridFromScan(scan *model.ScanResult) HeatGrid {
	g := NewHeatGrid(scan.Spec)
	for _, c := range scan.Cells {
		g.Set(c)
	}
	return g
}

// Set records one cell as it arrives from a running scan. Positions come from
// the grid offsets: Row +half is the northern edge, Col -half the western one.
func (g *HeatGrid) Set(cell model.CellResult) {
	half := g.size / 2
	g.place(model.HeatCell{
		CellResult: cell,
		Severity:   heatmap.Classify(cell),
		DisplayRow: half - cell.Coordinate.Row,
		DisplayCol: cell.Coordinate.Col + half,
	})
}

func (g *HeatGrid) place(hc model.HeatCell) {
	if hc.DisplayRow < 0 || hc.DisplayRow >= g.size || hc.DisplayCol < 0 || hc.DisplayCol >= g.size {
		return
	}
	g.cells[hc.DisplayRow][hc.DisplayCol] = &hc
}

// Filled counts the cells placed so far.
func (g HeatGrid) Filled() int {
	n := 0
	for _, row := range g.cells {
		for _, c := range row {
			if c != nil {
				n++
			}
		}
	}
	return n
}

// Label is the text drawn inside a cell.
func Label(c *model.HeatCell) string {
	switch {
	case c == nil:
		return "·"
	case c.Failed:
		return "!"
	case !c.Ranked():
		return "–"
	case c.Rank > 99:
		return "99+"
	}
	return fmt.Sprintf("%d", c.Rank)
}

func (g HeatGrid) View() string {
	pending := lipgloss.NewStyle().
		Foreground(styles.Muted).
		Width(5).
		Align(lipgloss.Center)
	center := g.size / 2

	rows := make([]string, 0, g.size)
	for r, row := range g.cells {
		parts := make([]string, 0, len(row))
		for c, cell := range row {
			var s string
			if cell == nil {
				s = pending.Render(Label(nil))
			} else {
				style := styles.HeatCell(cell.Severity)
				if r == center && c == center {
					style = style.Underline(true)
				}
				s = style.Render(Label(cell))
			}
			parts = append(parts, s)
		}
		rows = append(rows, strings.Join(parts, " "))
	}
	return strings.Join(rows, "\n")
}

// Legend lists the severity buckets with their colors.
func Legend() string {
	labels := map[model.Severity]string{
		model.SeverityExcellent: "1-3",
		model.SeverityGood:      "4-5",
		model.SeverityFair:      "6-10",
		model.SeverityPoor:      "11-15",
		model.SeverityCritical:  "16+",
		model.SeverityUnranked:  "none",
	}
	parts := make([]string, 0, len(model.Severities))
	for _, s := range model.Severities {
		swatch := lipgloss.NewStyle().Foreground(styles.HeatColor(s)).Render("■")
		parts = append(parts, swatch+" "+labels[s])
	}
	return lipgloss.NewStyle().Foreground(styles.Muted).Render(strings.Join(parts, "  "))
}

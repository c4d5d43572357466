// Package heatmap turns raw scan cells into statistics, severity buckets and
// the north-to-south, west-to-east display grid.
package heatmap

import (
	"cmp"
	"slices"

	"github.com/rendis/rankgrid/internal/model"
)

// Upper rank bounds of each bucket. Anything above PoorMax is critical.
const (
	ExcellentMax = 3
	GoodMax      = 5
	FairMax      = 10
	PoorMax      = 15
)

// ClassifyRank maps a rank to its bucket. rank <= 0 means absent.
func ClassifyRank(rank int) model.Severity {
	switch {
	case rank <= 0:
		return model.SeverityUnranked
	case rank <= ExcellentMax:
		return model.SeverityExcellent
	case rank <= GoodMax:
		return model.SeverityGood
	case rank <= FairMax:
		return model.SeverityFair
	case rank <= PoorMax:
		return model.SeverityPoor
	default:
		return model.SeverityCritical
	}
}

// Classify buckets a cell. Failed cells have no rank and are unranked.
func Classify(cell model.CellResult) model.Severity {
	return ClassifyRank(cell.Rank)
}

// Aggregate summarizes the ranked cells of scan. The unranked count is taken
// against the full grid size, so a cancelled scan counts its missing cells
// as unranked.
func Aggregate(scan *model.ScanResult) model.RankStatistics {
	if scan == nil {
		return model.RankStatistics{}
	}

	stats := model.RankStatistics{
		TotalCells: max(scan.Spec.Cells(), len(scan.Cells)),
	}

	sum := 0
	for _, c := range scan.Cells {
		if c.Failed {
			stats.FailedCells++
		}
		if !c.Ranked() {
			continue
		}
		stats.RankedCells++
		sum += c.Rank
		if stats.BestRank == 0 || c.Rank < stats.BestRank {
			stats.BestRank = c.Rank
		}
		if c.Rank > stats.WorstRank {
			stats.WorstRank = c.Rank
		}
	}
	stats.UnrankedCells = stats.TotalCells - stats.RankedCells

	if stats.RankedCells > 0 {
		avg := float64(sum) / float64(stats.RankedCells)
		stats.AverageRank = &avg
	}
	return stats
}

// RenderOrder projects the scan onto display positions: latitude descending,
// then longitude ascending. The sort is stable and uses only those two keys,
// so the result does not depend on the order cells were scanned in.
//
// Positions come from the grid offsets when the scan carries its spec, so a
// cancelled scan keeps its missing rows and columns as gaps. Without a usable
// spec, cells sharing a latitude are packed into consecutive display rows.
func RenderOrder(scan *model.ScanResult) []model.HeatCell {
	if scan == nil || len(scan.Cells) == 0 {
		return []model.HeatCell{}
	}

	cells := make([]model.HeatCell, len(scan.Cells))
	for i, c := range scan.Cells {
		cells[i] = model.HeatCell{CellResult: c, Severity: Classify(c)}
	}

	slices.SortStableFunc(cells, func(a, b model.HeatCell) int {
		if c := cmp.Compare(b.Coordinate.Lat, a.Coordinate.Lat); c != 0 {
			return c
		}
		return cmp.Compare(a.Coordinate.Lng, b.Coordinate.Lng)
	})

	if !placeByOffset(scan.Spec, cells) {
		packByLatitude(cells)
	}
	return cells
}

// placeByOffset maps Row +half to display row 0 and Col -half to display
// column 0. It reports false, leaving cells untouched, when any offset falls
// outside the spec.
func placeByOffset(spec model.GridSpec, cells []model.HeatCell) bool {
	if spec.Size <= 0 {
		return false
	}
	half := spec.Half()
	for _, c := range cells {
		if c.Coordinate.Row < -half || c.Coordinate.Row > half || c.Coordinate.Col < -half || c.Coordinate.Col > half {
			return false
		}
	}
	for i := range cells {
		cells[i].DisplayRow = half - cells[i].Coordinate.Row
		cells[i].DisplayCol = cells[i].Coordinate.Col + half
	}
	return true
}

func packByLatitude(cells []model.HeatCell) {
	row, col := 0, 0
	for i := range cells {
		if i > 0 && cells[i].Coordinate.Lat != cells[i-1].Coordinate.Lat {
			row++
			col = 0
		}
		cells[i].DisplayRow = row
		cells[i].DisplayCol = col
		col++
	}
}

// Grid lays RenderOrder out as a dense matrix, northernmost row first.
// Positions with no cell are nil.
func Grid(scan *model.ScanResult) [][]*model.HeatCell {
	ordered := RenderOrder(scan)
	if len(ordered) == 0 {
		return nil
	}

	rows, cols := scan.Spec.Size, scan.Spec.Size
	for _, c := range ordered {
		rows = max(rows, c.DisplayRow+1)
		cols = max(cols, c.DisplayCol+1)
	}
	grid := make([][]*model.HeatCell, rows)
	for r := range grid {
		grid[r] = make([]*model.HeatCell, cols)
	}
	for i := range ordered {
		c := &ordered[i]
		grid[c.DisplayRow][c.DisplayCol] = c
	}
	return grid
}

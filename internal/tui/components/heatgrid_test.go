package components

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/engine/heatmap"
	"github.com/rendis/rankgrid/internal/model"
)

func TestHeatGrid_LivePlacementMatchesRenderOrder(t *testing.T) {
	spec := geo.NewSpec(model.LatLng{Lat: 10, Lng: 20}, 5, 1)
	scan := &model.ScanResult{Spec: spec}

	live := NewHeatGrid(spec)
	for i, c := range geo.Generate(spec) {
		cell := model.CellResult{Coordinate: c, Rank: i + 1}
		scan.Cells = append(scan.Cells, cell)
		live.Set(cell)
	}

	require.Equal(t, 25, live.Filled())
	for _, hc := range heatmap.RenderOrder(scan) {
		got := live.cells[hc.DisplayRow][hc.DisplayCol]
		require.NotNil(t, got)
		assert.Equal(t, hc.Coordinate, got.Coordinate, "row %d col %d", hc.DisplayRow, hc.DisplayCol)
	}

	// north-west corner is the first cell of the last generated row
	nw := live.cells[0][0]
	assert.Equal(t, 2, nw.Coordinate.Row)
	assert.Equal(t, -2, nw.Coordinate.Col)
	assert.Equal(t, 21, nw.Rank)
}

func TestHeatGrid_PartialScan(t *testing.T) {
	spec := geo.NewSpec(model.LatLng{}, 3, 0.5)
	g := NewHeatGrid(spec)
	coords := geo.Generate(spec)
	g.Set(model.CellResult{Coordinate: coords[0], Rank: 2})
	g.Set(model.FailedCell(coords[1], "timeout"))

	assert.Equal(t, 2, g.Filled())
	assert.Nil(t, g.cells[0][0], "north row is still pending")
	assert.Equal(t, "2", Label(g.cells[2][0]))
	assert.Equal(t, "!", Label(g.cells[2][1]))
	assert.NotEmpty(t, g.View())
}

func TestHeatGridFromScan_CancelledKeepsPositions(t *testing.T) {
	spec := geo.NewSpec(model.LatLng{}, 3, 0.5)
	coords := geo.Generate(spec)
	scan := &model.ScanResult{Spec: spec, Cancelled: true, Cells: []model.CellResult{
		{Coordinate: coords[0], Rank: 1},
		{Coordinate: coords[1], Rank: 2},
	}}

	g := HeatGridFromScan(scan)
	assert.Equal(t, 2, g.Filled())
	assert.Nil(t, g.cells[0][0])
	assert.Equal(t, 1, g.cells[2][0].Rank, "southern row stays at the bottom")
	assert.Equal(t, 2, g.cells[2][1].Rank)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "·", Label(nil))
	assert.Equal(t, "–", Label(&model.HeatCell{}))
	assert.Equal(t, "7", Label(&model.HeatCell{CellResult: model.CellResult{Rank: 7}}))
	assert.Equal(t, "99+", Label(&model.HeatCell{CellResult: model.CellResult{Rank: 150}}))
}

func TestLegend(t *testing.T) {
	l := Legend()
	for _, want := range []string{"1-3", "4-5", "6-10", "11-15", "16+", "none"} {
		assert.Contains(t, l, want)
	}
}

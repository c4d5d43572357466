package heatmap

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/model"
)

func scanWithRanks(ranks ...int) *model.ScanResult {
	spec := geo.NewSpec(model.LatLng{Lat: 37.5, Lng: 127.0}, 3, 0.5)
	coords := geo.Generate(spec)
	scan := &model.ScanResult{Spec: spec}
	for i, r := range ranks {
		scan.Cells = append(scan.Cells, model.CellResult{
			Coordinate:  coords[i],
			Rank:        r,
			Competitors: []string{},
		})
	}
	return scan
}

func TestClassifyRank_Boundaries(t *testing.T) {
	cases := []struct {
		rank int
		want model.Severity
	}{
		{0, model.SeverityUnranked},
		{-1, model.SeverityUnranked},
		{1, model.SeverityExcellent},
		{3, model.SeverityExcellent},
		{4, model.SeverityGood},
		{5, model.SeverityGood},
		{6, model.SeverityFair},
		{10, model.SeverityFair},
		{11, model.SeverityPoor},
		{15, model.SeverityPoor},
		{16, model.SeverityCritical},
		{20, model.SeverityCritical},
		{1000, model.SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyRank(tc.rank), "rank %d", tc.rank)
	}
}

func TestClassify_FailedCellIsUnranked(t *testing.T) {
	cell := model.FailedCell(model.SampleCoordinate{}, "timeout")
	assert.Equal(t, model.SeverityUnranked, Classify(cell))
}

func TestAggregate(t *testing.T) {
	scan := scanWithRanks(1, 0, 4, 0, 0, 12, 2, 7, 0)
	scan.Cells[1] = model.FailedCell(scan.Cells[1].Coordinate, "timeout")

	stats := Aggregate(scan)
	assert.Equal(t, 9, stats.TotalCells)
	assert.Equal(t, 5, stats.RankedCells)
	assert.Equal(t, 4, stats.UnrankedCells)
	assert.Equal(t, 1, stats.FailedCells)
	assert.Equal(t, 1, stats.BestRank)
	assert.Equal(t, 12, stats.WorstRank)

	avg, ok := stats.Average()
	require.True(t, ok)
	assert.InDelta(t, 26.0/5.0, avg, 1e-12)
}

func TestAggregate_AllUnranked(t *testing.T) {
	stats := Aggregate(scanWithRanks(0, 0, 0, 0, 0, 0, 0, 0, 0))

	assert.Zero(t, stats.RankedCells)
	assert.Equal(t, 9, stats.UnrankedCells)
	assert.Nil(t, stats.AverageRank)
	assert.Zero(t, stats.BestRank)
	assert.Zero(t, stats.WorstRank)

	_, ok := stats.Average()
	assert.False(t, ok)
}

func TestAggregate_ShortScanCountsMissingCellsAsUnranked(t *testing.T) {
	stats := Aggregate(scanWithRanks(2, 3))
	assert.Equal(t, 9, stats.TotalCells)
	assert.Equal(t, 2, stats.RankedCells)
	assert.Equal(t, 7, stats.UnrankedCells)
}

func TestAggregate_Nil(t *testing.T) {
	assert.Equal(t, model.RankStatistics{}, Aggregate(nil))
}

func TestRenderOrder_NorthWestFirst(t *testing.T) {
	scan := scanWithRanks(1, 2, 3, 4, 5, 6, 7, 8, 9)
	cells := RenderOrder(scan)
	require.Len(t, cells, 9)

	// generator order is south-to-north, so display row 0 holds the last generated row
	wantRanks := []int{7, 8, 9, 4, 5, 6, 1, 2, 3}
	for k, c := range cells {
		assert.Equal(t, wantRanks[k], c.Rank, "display index %d", k)
		assert.Equal(t, k/3, c.DisplayRow)
		assert.Equal(t, k%3, c.DisplayCol)
	}
	assert.InDelta(t, 37.50725, cells[0].Coordinate.Lat, 1e-9)
	assert.InDelta(t, 126.99275, cells[0].Coordinate.Lng, 1e-9)
	assert.Equal(t, model.SeverityCritical, cells[len(cells)-1].Severity)
}

func TestRenderOrder_PermutationInvariant(t *testing.T) {
	scan := scanWithRanks(1, 2, 3, 4, 5, 6, 7, 8, 9)
	want := RenderOrder(scan)

	reversed := *scan
	reversed.Cells = slices.Clone(scan.Cells)
	slices.Reverse(reversed.Cells)
	assert.Equal(t, want, RenderOrder(&reversed))

	r := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		shuffled := *scan
		shuffled.Cells = slices.Clone(scan.Cells)
		r.Shuffle(len(shuffled.Cells), func(i, j int) {
			shuffled.Cells[i], shuffled.Cells[j] = shuffled.Cells[j], shuffled.Cells[i]
		})
		assert.Equal(t, want, RenderOrder(&shuffled))
	}
}

func TestRenderOrder_DoesNotMutate(t *testing.T) {
	scan := scanWithRanks(1, 2, 3, 4, 5, 6, 7, 8, 9)
	before := slices.Clone(scan.Cells)
	_ = RenderOrder(scan)
	assert.Equal(t, before, scan.Cells)
}

func TestGrid(t *testing.T) {
	rows := Grid(scanWithRanks(1, 2, 3, 4, 5, 6, 7, 8, 9))
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Len(t, row, 3)
	}
	assert.Equal(t, 7, rows[0][0].Rank)
	assert.Equal(t, 3, rows[2][2].Rank)

	assert.Empty(t, Grid(&model.ScanResult{}))
}

func TestRenderOrder_CancelledScanKeepsOffsets(t *testing.T) {
	// south row complete, then the west cell of the middle row
	cells := RenderOrder(scanWithRanks(1, 2, 3, 4))
	require.Len(t, cells, 4)

	assert.Equal(t, 4, cells[0].Rank)
	assert.Equal(t, 1, cells[0].DisplayRow, "middle row stays in the middle")
	assert.Equal(t, 0, cells[0].DisplayCol)
	for k, c := range cells[1:] {
		assert.Equal(t, 2, c.DisplayRow)
		assert.Equal(t, k, c.DisplayCol)
	}

	rows := Grid(scanWithRanks(1, 2, 3, 4))
	require.Len(t, rows, 3)
	assert.Equal(t, []*model.HeatCell{nil, nil, nil}, rows[0])
	require.NotNil(t, rows[1][0])
	assert.Equal(t, 4, rows[1][0].Rank)
	assert.Nil(t, rows[1][1])
	assert.Equal(t, 3, rows[2][2].Rank)
}

func TestRenderOrder_WithoutSpecPacksRows(t *testing.T) {
	scan := scanWithRanks(1, 2, 3, 4)
	scan.Spec = model.GridSpec{}

	cells := RenderOrder(scan)
	assert.Equal(t, 4, cells[0].Rank)
	assert.Equal(t, 0, cells[0].DisplayRow)
	assert.Equal(t, 1, cells[1].DisplayRow)
}

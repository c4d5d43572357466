package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/model"
)

func testScan() *model.ScanResult {
	spec := geo.NewSpec(model.LatLng{Lat: 37.5665, Lng: 126.978}, 3, 0.5)
	scan := &model.ScanResult{
		ID:        "scan-1",
		Keyword:   "dentist",
		TargetID:  "place-1",
		Spec:      spec,
		StartedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	for i, coord := range geo.Generate(spec) {
		switch i {
		case 0:
			scan.Cells = append(scan.Cells, model.FailedCell(coord, "timeout"))
		case 4:
			scan.Cells = append(scan.Cells, model.CellResult{Coordinate: coord, Rank: 1, Competitors: []string{"A", "B"}})
		default:
			scan.Cells = append(scan.Cells, model.CellResult{Coordinate: coord, Rank: 12})
		}
	}
	return scan
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, testScan()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 10)
	assert.Equal(t, csvHeader, records[0])

	failed := records[1]
	assert.Equal(t, "0", failed[0])
	assert.Equal(t, "-1", failed[1])
	assert.Equal(t, "", failed[8], "failed cell has no rank")
	assert.Equal(t, "unranked", failed[9])
	assert.Equal(t, "true", failed[10])
	assert.Equal(t, "timeout", failed[11])

	center := records[5]
	assert.Equal(t, "37.566500", center[5])
	assert.Equal(t, "126.978000", center[6])
	assert.Equal(t, "0.00", center[7])
	assert.Equal(t, "1", center[8])
	assert.Equal(t, "excellent", center[9])
	assert.Equal(t, "A; B", center[12])
	assert.Equal(t, "1", center[3])
	assert.Equal(t, "1", center[4])

	assert.Equal(t, "poor", records[2][9])
}

func TestCSV_EmptyScan(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, &model.ScanResult{}))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestGeoJSON(t *testing.T) {
	data, err := GeoJSON(testScan())
	require.NoError(t, err)

	var doc struct {
		Type     string    `json:"type"`
		BBox     []float64 `json:"bbox"`
		ScanID   string    `json:"scan_id"`
		GridSize int       `json:"grid_size"`
		Features []struct {
			Geometry struct {
				Type        string          `json:"type"`
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
		Stats struct {
			TotalCells  int `json:"total_cells"`
			RankedCells int `json:"ranked_cells"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "FeatureCollection", doc.Type)
	assert.Equal(t, "scan-1", doc.ScanID)
	assert.Equal(t, 3, doc.GridSize)
	assert.Len(t, doc.BBox, 4)
	require.Len(t, doc.Features, 10)

	points := 0
	for _, f := range doc.Features[:9] {
		assert.Equal(t, "Point", f.Geometry.Type)
		points++
	}
	assert.Equal(t, 9, points)

	first := doc.Features[0].Properties
	assert.EqualValues(t, 0, first["display_row"])
	assert.EqualValues(t, 0, first["display_col"])

	area := doc.Features[9]
	assert.Equal(t, "Polygon", area.Geometry.Type)
	assert.Equal(t, "grid_bounds", area.Properties["kind"])

	assert.Equal(t, 9, doc.Stats.TotalCells)
	assert.Equal(t, 8, doc.Stats.RankedCells)
}

func TestGeoJSON_UnrankedHasNullRank(t *testing.T) {
	data, err := GeoJSON(testScan())
	require.NoError(t, err)

	var doc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	var failed map[string]any
	for _, f := range doc.Features {
		if f.Properties["failed"] == true {
			failed = f.Properties
		}
	}
	require.NotNil(t, failed)
	rank, ok := failed["rank"]
	assert.True(t, ok)
	assert.Nil(t, rank)
	assert.Equal(t, "timeout", failed["error_kind"])
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "CSV", testScan()))
	assert.Contains(t, buf.String(), "distance_miles")

	buf.Reset()
	require.NoError(t, Write(&buf, "geojson", testScan()))
	assert.True(t, json.Valid(buf.Bytes()))

	assert.Error(t, Write(&buf, "xml", testScan()))
	assert.Equal(t, ".csv", Extension("csv"))
	assert.Equal(t, ".geojson", Extension("geojson"))
}

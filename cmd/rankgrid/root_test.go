package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/engine/storage"
	"github.com/rendis/rankgrid/internal/model"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// seedDB points the config at a temp database holding one scan.
func seedDB(t *testing.T) (dbPath string, scan *model.ScanResult) {
	t.Helper()
	dbPath = filepath.Join(t.TempDir(), "rankgrid.db")
	t.Setenv("RANKGRID_CONFIG", "")
	t.Setenv("RANKGRID_DB_PATH", dbPath)

	spec := geo.NewSpec(model.LatLng{Lat: 37.5, Lng: 127.0}, 3, 0.5)
	scan = &model.ScanResult{
		ID:           "scan-abc",
		Keyword:      "dentist",
		TargetID:     "place-1",
		BusinessName: "Smile Dental",
		Spec:         spec,
		StartedAt:    time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
		FinishedAt:   time.Date(2026, 4, 2, 9, 0, 9, 0, time.UTC),
	}
	for i, c := range geo.Generate(spec) {
		scan.Cells = append(scan.Cells, model.CellResult{Coordinate: c, Rank: i + 1, Competitors: []string{"Rival"}})
	}

	store, err := storage.NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveScan(context.Background(), scan))
	require.NoError(t, store.Close())
	return dbPath, scan
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rankgrid dev")
}

func TestScan_RequiresFlags(t *testing.T) {
	t.Setenv("RANKGRID_CONFIG", "")
	_, _, err := execute(t, "scan", "--keyword", "dentist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target")
}

func TestScan_RequiresCenter(t *testing.T) {
	seedDB(t)
	_, _, err := execute(t, "scan", "--keyword", "dentist", "--target", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--address or --lat/--lng")
}

func TestInvalidLogLevel(t *testing.T) {
	seedDB(t)
	_, _, err := execute(t, "--log-level", "loud", "history")
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	seedDB(t)
	out, _, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "scan-abc")
	assert.Contains(t, out, "Smile Dental")
	assert.Contains(t, out, "9/9")

	out, _, err = execute(t, "history", "show", "scan-abc")
	require.NoError(t, err)
	assert.Contains(t, out, "Rank Grid Complete")
	assert.Contains(t, out, "Ranked:     9/9")
	assert.Contains(t, out, "Competitor: Rival (9 cells)")
}

func TestHistory_DeleteMissing(t *testing.T) {
	seedDB(t)
	_, _, err := execute(t, "history", "delete", "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExport(t *testing.T) {
	dbPath, _ := seedDB(t)

	out, _, err := execute(t, "export", "scan-abc", "--output", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "index,row,col")

	_, errOut, err := execute(t, "export", "scan-abc", "--format", "geojson")
	require.NoError(t, err)
	want := filepath.Join(filepath.Dir(dbPath), "scan-abc.geojson")
	assert.Contains(t, errOut, "Exported 9 cells to "+want)
	_, err = os.Stat(want)
	assert.NoError(t, err)
}

func TestPrintScanReport_CancelledKeepsGaps(t *testing.T) {
	spec := geo.NewSpec(model.LatLng{Lat: 37.5, Lng: 127.0}, 3, 0.5)
	scan := &model.ScanResult{ID: "scan-x", Keyword: "dentist", TargetID: "p1", Spec: spec, Cancelled: true}
	for i, c := range geo.Generate(spec)[:4] {
		scan.Cells = append(scan.Cells, model.CellResult{Coordinate: c, Rank: i + 1, Competitors: []string{}})
	}

	var buf bytes.Buffer
	printScanReport(&buf, scan, "", false)
	out := buf.String()
	assert.Contains(t, out, "Rank Grid Cancelled")
	assert.Contains(t, out, "   ·   ·   · \n")
	assert.Contains(t, out, "    4  ·   · \n")
	assert.Contains(t, out, "    1   2   3\n")
}

func TestRankLabel(t *testing.T) {
	assert.Equal(t, "  4", rankLabel(model.HeatCell{CellResult: model.CellResult{Rank: 4}}))
	assert.Equal(t, " - ", rankLabel(model.HeatCell{}))
	assert.Equal(t, " ! ", rankLabel(model.HeatCell{CellResult: model.CellResult{Failed: true}}))
	assert.Equal(t, "99+", rankLabel(model.HeatCell{CellResult: model.CellResult{Rank: 120}}))
}

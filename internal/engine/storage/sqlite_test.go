package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "rankgrid.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleScan(id, keyword string, started time.Time) *model.ScanResult {
	spec := geo.NewSpec(model.LatLng{Lat: 37.5, Lng: 127.0}, 3, 0.5)
	scan := &model.ScanResult{
		ID:           id,
		Keyword:      keyword,
		TargetID:     "place-1",
		BusinessName: "Smile Dental",
		Spec:         spec,
		StartedAt:    started.UTC(),
		FinishedAt:   started.Add(12 * time.Second).UTC(),
	}
	for i, coord := range geo.Generate(spec) {
		switch i {
		case 1:
			scan.Cells = append(scan.Cells, model.FailedCell(coord, "timeout"))
		case 4:
			scan.Cells = append(scan.Cells, model.CellResult{Coordinate: coord, Competitors: []string{"Rival"}})
		default:
			scan.Cells = append(scan.Cells, model.CellResult{
				Coordinate:  coord,
				Rank:        i + 1,
				Competitors: []string{"Rival", "Other"},
			})
		}
	}
	return scan
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := sampleScan("scan-1", "dentist", time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC))

	require.NoError(t, s.SaveScan(ctx, want))

	got, err := s.LoadScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_SaveReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scan := sampleScan("scan-1", "dentist", time.Now())
	require.NoError(t, s.SaveScan(ctx, scan))

	scan.Cells = scan.Cells[:4]
	scan.Cancelled = true
	require.NoError(t, s.SaveScan(ctx, scan))

	got, err := s.LoadScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
	assert.Len(t, got.Cells, 4)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_LoadMissing(t *testing.T) {
	_, err := newTestStore(t).LoadScan(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListScans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveScan(ctx, sampleScan("a", "Dentist", base)))
	require.NoError(t, s.SaveScan(ctx, sampleScan("b", "pizza", base.Add(time.Hour))))
	require.NoError(t, s.SaveScan(ctx, sampleScan("c", "dentist near me", base.Add(2*time.Hour))))

	all, err := s.ListScans(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 9, all[0].CellCount)
	assert.Equal(t, 7, all[0].RankedCells)
	assert.Equal(t, 3, all[0].Spec.Size)
	assert.Equal(t, "Smile Dental", all[0].BusinessName)

	dentists, err := s.ListScans(ctx, ListFilter{Keyword: "DENTIST"})
	require.NoError(t, err)
	assert.Len(t, dentists, 2)

	page, err := s.ListScans(ctx, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	none, err := s.ListScans(ctx, ListFilter{TargetID: "other"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestStore_DeleteScan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveScan(ctx, sampleScan("a", "dentist", time.Now())))

	require.NoError(t, s.DeleteScan(ctx, "a"))
	assert.ErrorIs(t, s.DeleteScan(ctx, "a"), ErrNotFound)

	var cells int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM cells").Scan(&cells))
	assert.Zero(t, cells, "cells are deleted with their scan")
}

func TestStore_SaveRequiresID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SaveScan(context.Background(), &model.ScanResult{}))
	assert.Error(t, s.SaveScan(context.Background(), nil))
}

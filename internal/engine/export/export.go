// Package export writes stored scans as CSV or GeoJSON.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/engine/heatmap"
	"github.com/rendis/rankgrid/internal/model"
)

const (
	FormatCSV     = "csv"
	FormatGeoJSON = "geojson"
)

// Formats lists the supported export formats.
var Formats = []string{FormatCSV, FormatGeoJSON}

var csvHeader = []string{
	"index", "row", "col", "display_row", "display_col",
	"lat", "lng", "distance_miles",
	"rank", "severity", "failed", "error_kind", "competitors",
}

// CSV writes one row per cell in scan order.
func CSV(w io.Writer, scan *model.ScanResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	display := displayPositions(scan)
	for i, c := range scan.Cells {
		pos := display[c.Coordinate]
		rank := ""
		if c.Ranked() {
			rank = strconv.Itoa(c.Rank)
		}
		record := []string{
			strconv.Itoa(i),
			strconv.Itoa(c.Coordinate.Row),
			strconv.Itoa(c.Coordinate.Col),
			strconv.Itoa(pos.DisplayRow),
			strconv.Itoa(pos.DisplayCol),
			strconv.FormatFloat(c.Coordinate.Lat, 'f', 6, 64),
			strconv.FormatFloat(c.Coordinate.Lng, 'f', 6, 64),
			strconv.FormatFloat(geo.DistanceMiles(scan.Spec.Center, c.Coordinate.LatLng()), 'f', 2, 64),
			rank,
			string(pos.Severity),
			strconv.FormatBool(c.Failed),
			c.ErrorKind,
			strings.Join(c.Competitors, "; "),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing cell %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// GeoJSON renders the scan as a FeatureCollection: one Point per cell plus
// the grid's bounding polygon. Scan metadata and statistics ride along as
// foreign members.
func GeoJSON(scan *model.ScanResult) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	for _, hc := range heatmap.RenderOrder(scan) {
		f := geojson.NewFeature(hc.Coordinate.LatLng().Point())
		f.Properties["row"] = hc.Coordinate.Row
		f.Properties["col"] = hc.Coordinate.Col
		f.Properties["display_row"] = hc.DisplayRow
		f.Properties["display_col"] = hc.DisplayCol
		f.Properties["severity"] = string(hc.Severity)
		f.Properties["competitors"] = hc.Competitors
		f.Properties["failed"] = hc.Failed
		if hc.Ranked() {
			f.Properties["rank"] = hc.Rank
		} else {
			f.Properties["rank"] = nil
		}
		if hc.ErrorKind != "" {
			f.Properties["error_kind"] = hc.ErrorKind
		}
		fc.Append(f)
	}

	coords := make([]model.SampleCoordinate, len(scan.Cells))
	for i, c := range scan.Cells {
		coords[i] = c.Coordinate
	}
	if len(coords) > 0 {
		bound := geo.Bounds(coords)
		area := geojson.NewFeature(bound.ToPolygon())
		area.Properties["kind"] = "grid_bounds"
		fc.Append(area)
		fc.BBox = geojson.NewBBox(bound)
	}

	fc.ExtraMembers = geojson.Properties{
		"scan_id":       scan.ID,
		"keyword":       scan.Keyword,
		"target_id":     scan.TargetID,
		"business_name": scan.BusinessName,
		"grid_size":     scan.Spec.Size,
		"radius_miles":  scan.Spec.RadiusMiles,
		"cancelled":     scan.Cancelled,
		"stats":         heatmap.Aggregate(scan),
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding geojson: %w", err)
	}
	return data, nil
}

// Write dispatches on format.
func Write(w io.Writer, format string, scan *model.ScanResult) error {
	switch strings.ToLower(format) {
	case FormatCSV:
		return CSV(w, scan)
	case FormatGeoJSON, "json":
		data, err := GeoJSON(scan)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("unsupported format %q (want one of %s)", format, strings.Join(Formats, ", "))
}

// Extension returns the file extension for format.
func Extension(format string) string {
	if strings.EqualFold(format, FormatCSV) {
		return ".csv"
	}
	return ".geojson"
}

func displayPositions(scan *model.ScanResult) map[model.SampleCoordinate]model.HeatCell {
	out := make(map[model.SampleCoordinate]model.HeatCell, len(scan.Cells))
	for _, hc := range heatmap.RenderOrder(scan) {
		out[hc.Coordinate] = hc
	}
	return out
}

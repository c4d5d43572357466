package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rendis/rankgrid/internal/model"
)

var errNotJSON = errors.New("response is not a JSON array")

// parseWindow decodes a tbm=map response into the ordered result window.
// An empty window is valid and means nothing matched the keyword there.
func parseWindow(body []byte) ([]model.Business, error) {
	// Strip anti-XSS prefix )]}'\n
	if idx := bytes.IndexByte(body, '\n'); idx >= 0 && idx < 10 {
		body = body[idx+1:]
	}

	var raw []any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errNotJSON, err)
	}

	// Business items live at root[0][1][1..N][14]; index 0 is search metadata.
	items := safeSlice(safeGet(raw, 0, 1))

	window := make([]model.Business, 0, WindowSize)
	for i := 1; i < len(items) && len(window) < WindowSize; i++ {
		biz := safeSlice(safeGet(items, i, 14))
		if len(biz) == 0 {
			continue
		}

		name := safeString(safeGet(biz, 11))
		if name == "" {
			continue
		}

		window = append(window, model.Business{
			Name:        name,
			PlaceID:     safeString(safeGet(biz, 78)),
			CID:         safeString(safeGet(biz, 10)),
			Category:    safeString(safeGet(biz, 13, 0)),
			Address:     safeString(safeGet(biz, 18)),
			Rating:      safeFloat(safeGet(biz, 4, 7)),
			ReviewCount: int(safeFloat(safeGet(biz, 4, 8))),
			Lat:         safeFloat(safeGet(biz, 9, 2)),
			Lng:         safeFloat(safeGet(biz, 9, 3)),
		})
	}

	return window, nil
}

// rankIn locates targetID in window. Competitors are the first limit names
// of the other businesses, in window order.
func rankIn(window []model.Business, targetID string, limit int) Ranking {
	r := Ranking{Competitors: []string{}}
	for i, b := range window {
		if r.Rank == 0 && b.Matches(targetID) {
			r.Rank = i + 1
			continue
		}
		if len(r.Competitors) < limit {
			r.Competitors = append(r.Competitors, b.Name)
		}
	}
	return r
}

// safeGet navigates nested []any arrays by index path without panicking.
func safeGet(data any, path ...int) any {
	current := data
	for _, idx := range path {
		slice, ok := current.([]any)
		if !ok || idx < 0 || idx >= len(slice) {
			return nil
		}
		current = slice[idx]
	}
	return current
}

func safeSlice(data any) []any {
	slice, _ := data.([]any)
	return slice
}

// safeString extracts a string from any. Handles string and json.Number.
func safeString(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// safeFloat extracts a float64 from any. Handles float64, json.Number, and numeric strings.
func safeFloat(data any) float64 {
	switch v := data.(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	return 0
}

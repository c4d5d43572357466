package views

import (
	"context"

	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/engine/scanner"
	"github.com/rendis/rankgrid/internal/engine/storage"
	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/model"
)

// GridScanner runs scans. *scanner.Scanner satisfies it.
type GridScanner interface {
	Scan(ctx context.Context, req scanner.ScanRequest) (*model.ScanResult, error)
}

// ScanStore is the scan history. *storage.Store satisfies it.
type ScanStore interface {
	SaveScan(ctx context.Context, scan *model.ScanResult) error
	LoadScan(ctx context.Context, id string) (*model.ScanResult, error)
	ListScans(ctx context.Context, f storage.ListFilter) ([]model.ScanSummary, error)
	DeleteScan(ctx context.Context, id string) error
}

// AddressResolver turns a typed address into a scan center. *geo.Geocoder satisfies it.
type AddressResolver interface {
	Geocode(ctx context.Context, address string) (geo.Place, error)
}

// Services is what the views need from the engine. Store and Geocoder may be
// nil; the views then skip saving and address mode respectively.
type Services struct {
	Scanner  GridScanner
	Store    ScanStore
	Geocoder AddressResolver
	Logger   logging.Logger

	DefaultGridSize    int
	DefaultRadiusMiles float64
	Version            string

	// ExportDir receives CSV and GeoJSON exports from the explorer.
	ExportDir string

	// Ctx parents every scan; cancelling it stops a running scan.
	Ctx context.Context
}

func (s Services) ctx() context.Context {
	if s.Ctx != nil {
		return s.Ctx
	}
	return context.Background()
}

func (s Services) logger() logging.Logger {
	return logging.OrNop(s.Logger)
}

// Navigation messages
type NavigateToHome struct{}
type NavigateToScanForm struct{}

// NavigateToExplorer opens the history explorer, preselecting ScanID when set.
type NavigateToExplorer struct {
	ScanID string
}

// StartScanMsg carries a submitted scan form. Exactly one of Address and
// Center is used, depending on the form mode.
type StartScanMsg struct {
	Keyword      string
	TargetID     string
	BusinessName string
	Address      string
	Center       *model.LatLng
	GridSize     int
	RadiusMiles  float64
}

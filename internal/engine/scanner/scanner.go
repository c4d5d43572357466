// Package scanner drives a rank grid through an oracle one cell at a time.
//
// Cells are probed strictly in grid order with a fixed pause between oracle
// calls. An oracle failure never aborts a scan: the cell is recorded as a
// failed placeholder and the scan moves on, so a scan that runs to the end
// always holds exactly size*size cells.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/engine/heatmap"
	"github.com/rendis/rankgrid/internal/engine/oracle"
	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/metrics"
	"github.com/rendis/rankgrid/internal/model"
)

const (
	DefaultDelay       = 500 * time.Millisecond
	DefaultCellTimeout = 60 * time.Second
)

var (
	ErrInvalidRequest = errors.New("invalid scan request")
	ErrScanCancelled  = errors.New("scan cancelled")
)

// ScanRequest describes one grid scan. GridSize 0 and RadiusMiles 0 take the
// defaults (3 and 0.5); any other GridSize is clamped into [3, 7].
// BusinessName is carried for display and logging only.
type ScanRequest struct {
	Keyword      string
	Center       model.LatLng
	TargetID     string
	BusinessName string
	GridSize     int
	RadiusMiles  float64

	// OnCell, if set, is called after each cell is recorded, from the scanning goroutine.
	OnCell func(index int, cell model.CellResult)
	// Progress, if set, is updated as cells complete.
	Progress *Progress
}

// ProbeRequest asks for the rank at a single coordinate.
type ProbeRequest struct {
	Keyword  string
	Lat      float64
	Lng      float64
	TargetID string
}

type Scanner struct {
	oracle      oracle.Oracle
	delay       time.Duration
	cellTimeout time.Duration
	logger      logging.Logger
	metrics     *metrics.Recorder
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
	newID       func() string
}

type Option func(*Scanner)

// WithDelay sets the pause between consecutive oracle calls.
func WithDelay(d time.Duration) Option {
	return func(s *Scanner) { s.delay = d }
}

// WithCellTimeout bounds each oracle call. Zero disables the bound.
func WithCellTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.cellTimeout = d }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Scanner) { s.logger = logging.OrNop(l) }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithSleep replaces the delay implementation, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scanner) { s.sleep = fn }
}

// WithClock replaces time.Now for scan timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Scanner) { s.now = fn }
}

// WithIDGenerator replaces the scan id source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Scanner) { s.newID = fn }
}

func New(o oracle.Oracle, opts ...Option) *Scanner {
	s := &Scanner{
		oracle:      o,
		delay:       DefaultDelay,
		cellTimeout: DefaultCellTimeout,
		logger:      logging.NewNopLogger(),
		sleep:       sleepCtx,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delay returns the configured pause between oracle calls.
func (s *Scanner) Delay() time.Duration {
	return s.delay
}

// Budget is the worst-case wall-clock time of a scan of the given grid size:
// every call hits the cell timeout and every gap waits the full delay.
func (s *Scanner) Budget(gridSize int) time.Duration {
	return Budget(geo.NormalizeSize(gridSize), s.cellTimeout, s.delay)
}

// Budget returns size²·cellTimeout + (size²-1)·delay.
func Budget(size int, cellTimeout, delay time.Duration) time.Duration {
	cells := time.Duration(size * size)
	if cells == 0 {
		return 0
	}
	return cells*cellTimeout + (cells-1)*delay
}

// Scan probes every cell of the requested grid. On cancellation it returns
// the cells recorded so far, with Cancelled set, and an error wrapping
// ErrScanCancelled.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*model.ScanResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req = req.withDefaults()

	spec := geo.NewSpec(req.Center, req.GridSize, req.RadiusMiles)
	coords := geo.Generate(spec)

	res := &model.ScanResult{
		ID:           s.newID(),
		Keyword:      strings.TrimSpace(req.Keyword),
		TargetID:     strings.TrimSpace(req.TargetID),
		BusinessName: req.BusinessName,
		Spec:         spec,
		Cells:        make([]model.CellResult, 0, len(coords)),
		StartedAt:    s.now(),
	}

	log := s.logger.With(
		logging.String("scan_id", res.ID),
		logging.String("keyword", res.Keyword),
		logging.String("business", req.BusinessName),
	)
	log.Info("scan started",
		logging.Int("grid_size", spec.Size),
		logging.Float64("radius_miles", spec.RadiusMiles),
		logging.Int("cells", len(coords)),
		logging.Duration("budget", s.Budget(spec.Size)),
	)

	req.Progress.start(len(coords))

	for i, coord := range coords {
		if err := ctx.Err(); err != nil {
			return s.cancelled(res, log, err)
		}

		cell := s.probe(ctx, log, res.Keyword, res.TargetID, coord)
		if cell.Failed && ctx.Err() != nil {
			// the call was cut short by the caller, not by the oracle
			return s.cancelled(res, log, ctx.Err())
		}

		res.Cells = append(res.Cells, cell)
		req.Progress.record(cell)
		if req.OnCell != nil {
			req.OnCell(i, cell)
		}

		if i < len(coords)-1 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return s.cancelled(res, log, err)
			}
		}
	}

	res.FinishedAt = s.now()
	s.metrics.ObserveScan(metrics.ScanCompleted, res.Duration())

	stats := heatmap.Aggregate(res)
	fields := []logging.Field{
		logging.Int("ranked", stats.RankedCells),
		logging.Int("failed", stats.FailedCells),
		logging.Duration("elapsed", res.Duration()),
	}
	if avg, ok := stats.Average(); ok {
		fields = append(fields, logging.Float64("avg_rank", avg))
	}
	log.Info("scan finished", fields...)

	return res, nil
}

func (s *Scanner) cancelled(res *model.ScanResult, log logging.Logger, cause error) (*model.ScanResult, error) {
	res.Cancelled = true
	res.FinishedAt = s.now()
	s.metrics.ObserveScan(metrics.ScanCancelled, res.Duration())
	log.Warn("scan cancelled",
		logging.Int("completed", len(res.Cells)),
		logging.Int("cells", res.Spec.Cells()),
		logging.Err(cause),
	)
	return res, fmt.Errorf("%w after %d of %d cells: %w", ErrScanCancelled, len(res.Cells), res.Spec.Cells(), cause)
}

// Probe checks the rank at one coordinate. Oracle failures come back as a
// failed cell with a nil error; the error is reserved for invalid requests
// and cancellation.
func (s *Scanner) Probe(ctx context.Context, req ProbeRequest) (model.CellResult, error) {
	if err := req.validate(); err != nil {
		return model.CellResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.CellResult{}, fmt.Errorf("probe cancelled: %w", err)
	}

	coord := model.SampleCoordinate{Lat: req.Lat, Lng: req.Lng}
	log := s.logger.With(logging.String("keyword", req.Keyword))

	cell := s.probe(ctx, log, strings.TrimSpace(req.Keyword), strings.TrimSpace(req.TargetID), coord)
	if cell.Failed && ctx.Err() != nil {
		return model.CellResult{}, fmt.Errorf("probe cancelled: %w", ctx.Err())
	}
	return cell, nil
}

// probe performs one oracle call and turns any failure into a placeholder.
func (s *Scanner) probe(ctx context.Context, log logging.Logger, keyword, targetID string, coord model.SampleCoordinate) model.CellResult {
	callCtx := ctx
	if s.cellTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cellTimeout)
		defer cancel()
	}

	start := time.Now()
	r, err := s.oracle.CheckRank(callCtx, oracle.Query{
		Keyword:  keyword,
		Lat:      coord.Lat,
		Lng:      coord.Lng,
		TargetID: targetID,
	})
	elapsed := time.Since(start)

	if err == nil && r.Rank < 0 {
		err = oracle.NewError(oracle.KindMalformed, fmt.Errorf("negative rank %d", r.Rank))
	}
	if err != nil {
		kind := oracle.KindOf(err)
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			kind = oracle.KindTimeout
		}
		s.metrics.ObserveOracle(string(kind), elapsed)
		s.metrics.ObserveCell(string(model.SeverityUnranked))
		log.Warn("oracle call failed",
			logging.Float64("lat", coord.Lat),
			logging.Float64("lng", coord.Lng),
			logging.Int("row", coord.Row),
			logging.Int("col", coord.Col),
			logging.String("kind", string(kind)),
			logging.Duration("elapsed", elapsed),
			logging.Err(err),
		)
		return model.FailedCell(coord, string(kind))
	}

	cell := model.CellResult{
		Coordinate:  coord,
		Rank:        r.Rank,
		Competitors: slices.Clone(r.Competitors),
	}
	if cell.Competitors == nil {
		cell.Competitors = []string{}
	}

	s.metrics.ObserveOracle(metrics.OutcomeOK, elapsed)
	s.metrics.ObserveCell(string(heatmap.Classify(cell)))
	log.Debug("cell ranked",
		logging.Int("row", coord.Row),
		logging.Int("col", coord.Col),
		logging.Int("rank", cell.Rank),
		logging.Duration("elapsed", elapsed),
	)
	return cell
}

func (r ScanRequest) validate() error {
	var problems []string
	if strings.TrimSpace(r.Keyword) == "" {
		problems = append(problems, "keyword is required")
	}
	if strings.TrimSpace(r.TargetID) == "" {
		problems = append(problems, "target id is required")
	}
	problems = append(problems, validateLatLng(r.Center.Lat, r.Center.Lng)...)
	if r.RadiusMiles < 0 || math.IsNaN(r.RadiusMiles) || math.IsInf(r.RadiusMiles, 0) {
		problems = append(problems, fmt.Sprintf("radius must not be negative, got %v", r.RadiusMiles))
	}
	return invalid(problems)
}

// withDefaults fills in the default grid size and radius.
func (r ScanRequest) withDefaults() ScanRequest {
	if r.GridSize == 0 {
		r.GridSize = model.DefaultGridSize
	}
	if r.RadiusMiles == 0 {
		r.RadiusMiles = model.DefaultRadiusMiles
	}
	return r
}

func (r ProbeRequest) validate() error {
	var problems []string
	if strings.TrimSpace(r.Keyword) == "" {
		problems = append(problems, "keyword is required")
	}
	if strings.TrimSpace(r.TargetID) == "" {
		problems = append(problems, "target id is required")
	}
	problems = append(problems, validateLatLng(r.Lat, r.Lng)...)
	return invalid(problems)
}

func validateLatLng(lat, lng float64) []string {
	var problems []string
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		problems = append(problems, fmt.Sprintf("latitude must be within [-90, 90], got %v", lat))
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		problems = append(problems, fmt.Sprintf("longitude must be within [-180, 180], got %v", lng))
	}
	return problems
}

func invalid(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
}

// sleepCtx waits d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

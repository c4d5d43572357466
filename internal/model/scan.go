package model

import "time"

// CellResult is the outcome of probing one SampleCoordinate.
//
// Rank is 1-based; 0 means the target was not found in the oracle's result
// window. Failed marks a placeholder recorded because the oracle call errored,
// so callers can tell it apart from a legitimately unranked cell.
type CellResult struct {
	Coordinate  SampleCoordinate `json:"coordinate"`
	Rank        int              `json:"rank,omitempty"`
	Competitors []string         `json:"competitors"`
	Failed      bool             `json:"failed,omitempty"`
	ErrorKind   string           `json:"error_kind,omitempty"`
}

// Ranked reports whether the target business was found at this cell.
func (c CellResult) Ranked() bool {
	return c.Rank > 0
}

// FailedCell builds the placeholder recorded when the oracle errors.
func FailedCell(coord SampleCoordinate, kind string) CellResult {
	return CellResult{
		Coordinate:  coord,
		Competitors: []string{},
		Failed:      true,
		ErrorKind:   kind,
	}
}

// ScanResult holds every CellResult of one scan, in generator order.
// A completed scan has exactly Spec.Cells() cells; a cancelled one is short
// and has Cancelled set.
type ScanResult struct {
	ID           string       `json:"id"`
	Keyword      string       `json:"keyword"`
	TargetID     string       `json:"target_id"`
	BusinessName string       `json:"business_name,omitempty"`
	Spec         GridSpec     `json:"spec"`
	Cells        []CellResult `json:"cells"`
	Cancelled    bool         `json:"cancelled"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// Complete reports whether every generated coordinate has a result.
func (s *ScanResult) Complete() bool {
	return !s.Cancelled && len(s.Cells) == s.Spec.Cells()
}

// Duration is the wall-clock time the scan took.
func (s *ScanResult) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// FailedCells counts placeholders recorded for oracle failures.
func (s *ScanResult) FailedCells() int {
	n := 0
	for _, c := range s.Cells {
		if c.Failed {
			n++
		}
	}
	return n
}

// RankStatistics summarizes a scan. AverageRank is nil when no cell is ranked.
// BestRank and WorstRank are 0 in that case.
type RankStatistics struct {
	TotalCells    int      `json:"total_cells"`
	RankedCells   int      `json:"ranked_cells"`
	UnrankedCells int      `json:"unranked_cells"`
	FailedCells   int      `json:"failed_cells"`
	AverageRank   *float64 `json:"average_rank"`
	BestRank      int      `json:"best_rank,omitempty"`
	WorstRank     int      `json:"worst_rank,omitempty"`
}

// Average returns the mean rank and whether it is defined.
func (s RankStatistics) Average() (float64, bool) {
	if s.AverageRank == nil {
		return 0, false
	}
	return *s.AverageRank, true
}

// ScanSummary is the list view of a stored scan.
type ScanSummary struct {
	ID           string    `json:"id"`
	Keyword      string    `json:"keyword"`
	TargetID     string    `json:"target_id"`
	BusinessName string    `json:"business_name,omitempty"`
	Spec         GridSpec  `json:"spec"`
	CellCount    int       `json:"cell_count"`
	RankedCells  int       `json:"ranked_cells"`
	Cancelled    bool      `json:"cancelled"`
	StartedAt    time.Time `json:"started_at"`
}

package model

// Severity is the heat-map bucket of a cell.
type Severity string

const (
	SeverityUnranked  Severity = "unranked"
	SeverityExcellent Severity = "excellent"
	SeverityGood      Severity = "good"
	SeverityFair      Severity = "fair"
	SeverityPoor      Severity = "poor"
	SeverityCritical  Severity = "critical"
)

// Severities lists every bucket from best to worst, unranked last.
var Severities = []Severity{
	SeverityExcellent,
	SeverityGood,
	SeverityFair,
	SeverityPoor,
	SeverityCritical,
	SeverityUnranked,
}

// HeatCell is a CellResult placed on the display grid. DisplayRow 0 is the
// northernmost row, DisplayCol 0 the westernmost column.
type HeatCell struct {
	CellResult
	Severity   Severity `json:"severity"`
	DisplayRow int      `json:"display_row"`
	DisplayCol int      `json:"display_col"`
}

package heatmap

import (
	"cmp"
	"slices"

	"github.com/rendis/rankgrid/internal/model"
)

// Summary is the report-level view of a scan.
type Summary struct {
	Stats          model.RankStatistics   `json:"stats"`
	Severities     map[model.Severity]int `json:"severities"`
	Top3Share      float64                `json:"top3_share"` // share of grid cells ranked 1-3
	TopCompetitors []CompetitorCount      `json:"top_competitors"`
}

// CompetitorCount is how many cells a competitor appeared in.
type CompetitorCount struct {
	Name  string  `json:"name"`
	Cells int     `json:"cells"`
	Share float64 `json:"share"` // Cells over scanned cells
}

// Summarize computes statistics, bucket counts and the n most visible competitors.
func Summarize(scan *model.ScanResult, n int) Summary {
	s := Summary{
		Stats:          Aggregate(scan),
		Severities:     make(map[model.Severity]int, len(model.Severities)),
		TopCompetitors: TopCompetitors(scan, n),
	}
	for _, sev := range model.Severities {
		s.Severities[sev] = 0
	}
	if scan == nil {
		return s
	}

	for _, c := range scan.Cells {
		s.Severities[Classify(c)]++
	}
	// cells a cancelled scan never reached
	s.Severities[model.SeverityUnranked] += s.Stats.TotalCells - len(scan.Cells)

	if s.Stats.TotalCells > 0 {
		s.Top3Share = float64(s.Severities[model.SeverityExcellent]) / float64(s.Stats.TotalCells)
	}
	return s
}

// TopCompetitors ranks competitor names by the number of cells they were seen
// in, most frequent first, ties broken by name. n <= 0 returns all.
func TopCompetitors(scan *model.ScanResult, n int) []CompetitorCount {
	if scan == nil || len(scan.Cells) == 0 {
		return []CompetitorCount{}
	}

	counts := make(map[string]int)
	for _, c := range scan.Cells {
		seen := make(map[string]bool, len(c.Competitors))
		for _, name := range c.Competitors {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			counts[name]++
		}
	}

	out := make([]CompetitorCount, 0, len(counts))
	for name, cells := range counts {
		out = append(out, CompetitorCount{
			Name:  name,
			Cells: cells,
			Share: float64(cells) / float64(len(scan.Cells)),
		})
	}
	slices.SortFunc(out, func(a, b CompetitorCount) int {
		if c := cmp.Compare(b.Cells, a.Cells); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

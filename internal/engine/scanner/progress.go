package scanner

import (
	"sync/atomic"

	"github.com/rendis/rankgrid/internal/model"
)

// Progress tracks a running scan for live displays. It is written by the
// scanning goroutine and safe to read from any other. A nil *Progress
// ignores updates.
type Progress struct {
	total  atomic.Int64
	done   atomic.Int64
	ranked atomic.Int64
	failed atomic.Int64
}

// ProgressSnapshot is a point-in-time copy of Progress.
type ProgressSnapshot struct {
	Total  int
	Done   int
	Ranked int
	Failed int
}

// Fraction returns Done/Total, or 0 before the scan starts.
func (p ProgressSnapshot) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

func (p *Progress) Snapshot() ProgressSnapshot {
	if p == nil {
		return ProgressSnapshot{}
	}
	return ProgressSnapshot{
		Total:  int(p.total.Load()),
		Done:   int(p.done.Load()),
		Ranked: int(p.ranked.Load()),
		Failed: int(p.failed.Load()),
	}
}

func (p *Progress) start(total int) {
	if p == nil {
		return
	}
	p.total.Store(int64(total))
	p.done.Store(0)
	p.ranked.Store(0)
	p.failed.Store(0)
}

func (p *Progress) record(c model.CellResult) {
	if p == nil {
		return
	}
	if c.Ranked() {
		p.ranked.Add(1)
	}
	if c.Failed {
		p.failed.Add(1)
	}
	p.done.Add(1)
}

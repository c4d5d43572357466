package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/engine/heatmap"
	"github.com/rendis/rankgrid/internal/engine/scanner"
	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/model"
	"github.com/rendis/rankgrid/internal/tui/components"
	"github.com/rendis/rankgrid/internal/tui/styles"
)

const saveTimeout = 10 * time.Second

// sharedState holds data shared between the scan goroutine and the TUI.
// Lives behind a pointer so it survives bubbletea's value copies.
type sharedState struct {
	mu       sync.Mutex
	grid     components.HeatGrid
	progress *scanner.Progress
	cancel   context.CancelFunc
	location string
	last     *model.CellResult
}

// ProgressModel runs one scan and draws its heat grid as cells arrive.
type ProgressModel struct {
	svc         Services
	req         StartScanMsg
	progress    progress.Model
	startTime   time.Time
	done        bool
	confirmQuit bool
	err         error
	result      *model.ScanResult
	stored      bool
	width       int
	height      int
	shared      *sharedState
}

type progressTickMsg time.Time

type scanCompleteMsg struct {
	Scan   *model.ScanResult
	Stored bool
	Err    error
}

func NewProgressModel(svc Services, msg StartScanMsg) ProgressModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	msg.GridSize = geo.NormalizeSize(msg.GridSize)
	shared := &sharedState{
		grid:     components.NewHeatGrid(model.GridSpec{Size: msg.GridSize}),
		progress: &scanner.Progress{},
		location: msg.Address,
	}
	if msg.Center != nil {
		shared.location = fmt.Sprintf("%.5f, %.5f", msg.Center.Lat, msg.Center.Lng)
	}

	return ProgressModel{
		svc:       svc,
		req:       msg,
		progress:  p,
		startTime: time.Now(),
		shared:    shared,
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(
		m.startScan(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

func (m ProgressModel) startScan() tea.Cmd {
	svc := m.svc
	req := m.req
	shared := m.shared

	return func() tea.Msg {
		ctx, cancel := context.WithCancel(svc.ctx())
		defer cancel()
		shared.setCancel(cancel)
		log := svc.logger().Named("tui")

		center, err := resolveCenter(ctx, svc, req)
		if err != nil {
			return scanCompleteMsg{Err: err}
		}
		if req.Address != "" {
			shared.setLocation(fmt.Sprintf("%s (%.5f, %.5f)", req.Address, center.Lat, center.Lng))
		}

		scan, err := svc.Scanner.Scan(ctx, scanner.ScanRequest{
			Keyword:      req.Keyword,
			Center:       center,
			TargetID:     req.TargetID,
			BusinessName: req.BusinessName,
			GridSize:     req.GridSize,
			RadiusMiles:  req.RadiusMiles,
			Progress:     shared.progress,
			OnCell: func(_ int, cell model.CellResult) {
				shared.record(cell)
			},
		})
		if scan == nil {
			return scanCompleteMsg{Err: err}
		}

		stored := false
		if svc.Store != nil {
			saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
			defer cancelSave()
			if saveErr := svc.Store.SaveScan(saveCtx, scan); saveErr != nil {
				log.Error("saving scan failed", logging.String("scan_id", scan.ID), logging.Err(saveErr))
				return scanCompleteMsg{Scan: scan, Err: errors.Join(err, saveErr)}
			}
			stored = true
		}
		return scanCompleteMsg{Scan: scan, Stored: stored, Err: err}
	}
}

func resolveCenter(ctx context.Context, svc Services, req StartScanMsg) (model.LatLng, error) {
	if req.Center != nil {
		return *req.Center, nil
	}
	if svc.Geocoder == nil {
		return model.LatLng{}, errors.New("no geocoder configured, enter coordinates instead")
	}
	place, err := svc.Geocoder.Geocode(ctx, req.Address)
	if err != nil {
		return model.LatLng{}, fmt.Errorf("geocoding %q: %w", req.Address, err)
	}
	return place.Center, nil
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if cancel := m.shared.getCancel(); cancel != nil {
				cancel()
			}
			return m, tea.Quit
		case "esc":
			if m.done {
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			if m.confirmQuit {
				// Second esc: cancel and go home. The partial scan is still saved.
				if cancel := m.shared.getCancel(); cancel != nil {
					cancel()
				}
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			m.confirmQuit = true
			return m, nil
		case "enter":
			if m.done && m.stored {
				id := m.result.ID
				return m, func() tea.Msg { return NavigateToExplorer{ScanID: id} }
			}
			if m.done {
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			if m.confirmQuit {
				m.confirmQuit = false
				return m, nil
			}
		}
		// Any other key cancels the confirmation
		if m.confirmQuit {
			m.confirmQuit = false
		}
	case progressTickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case scanCompleteMsg:
		m.done = true
		m.err = msg.Err
		m.result = msg.Scan
		m.stored = msg.Stored
		if msg.Scan != nil {
			m.shared.setGrid(components.HeatGridFromScan(msg.Scan))
		}
		return m, nil
	}

	pModel, cmd := m.progress.Update(msg)
	m.progress = pModel.(progress.Model)
	return m, cmd
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Scanning: %q for %s", m.req.Keyword, m.target())))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Render(m.shared.getLocation()))
	b.WriteString("\n\n")

	statsBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(30).
		Render(m.renderStats())
	gridBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Render(m.shared.gridView())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, statsBox, " ", gridBox))
	b.WriteString("\n")
	b.WriteString(components.Legend())
	b.WriteString("\n\n")

	b.WriteString(m.progress.ViewAs(m.shared.progress.Snapshot().Fraction()))
	b.WriteString("\n\n")

	switch {
	case m.done:
		b.WriteString(m.renderOutcome())
		b.WriteString("\n\n")
		if m.stored {
			b.WriteString(styles.StatusBar.Render("enter open in history • esc home"))
		} else {
			b.WriteString(styles.StatusBar.Render("enter/esc home"))
		}
	case m.confirmQuit:
		b.WriteString(styles.ErrorText.Render("Press ESC again to stop the scan and go back"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm stop • any key continue"))
	default:
		b.WriteString(styles.StatusBar.Render("esc cancel • ctrl+c quit"))
	}

	return b.String()
}

func (m ProgressModel) target() string {
	if m.req.BusinessName != "" {
		return m.req.BusinessName
	}
	return m.req.TargetID
}

func (m ProgressModel) renderOutcome() string {
	muted := lipgloss.NewStyle().Foreground(styles.Muted)
	if m.result == nil {
		return styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err))
	}

	var b strings.Builder
	stats := heatmap.Aggregate(m.result)
	switch {
	case m.result.Cancelled:
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).Bold(true).
			Render(fmt.Sprintf("Cancelled after %d of %d cells", len(m.result.Cells), stats.TotalCells)))
	default:
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Bold(true).
			Render(fmt.Sprintf("Complete! Ranked in %d of %d cells", stats.RankedCells, stats.TotalCells)))
	}
	if m.err != nil && !errors.Is(m.err, scanner.ErrScanCancelled) {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	if m.stored {
		b.WriteString("\n")
		b.WriteString(muted.Render("Saved as " + m.result.ID))
	}
	return b.String()
}

func (m ProgressModel) renderStats() string {
	var sb strings.Builder
	elapsed := time.Since(m.startTime).Truncate(time.Second)
	if m.done && m.result != nil {
		elapsed = m.result.Duration().Truncate(time.Second)
	}
	snap := m.shared.progress.Snapshot()

	statLabel := lipgloss.NewStyle().Foreground(styles.Muted).Width(12)
	statVal := lipgloss.NewStyle().Foreground(styles.Text).Bold(true)

	row := func(label string, value string) {
		sb.WriteString(statLabel.Render(label))
		sb.WriteString(statVal.Render(value))
		sb.WriteString("\n")
	}

	total := snap.Total
	if total == 0 {
		total = m.req.GridSize * m.req.GridSize
	}
	row("Cells:", fmt.Sprintf("%d/%d", snap.Done, total))
	row("Ranked:", fmt.Sprintf("%d", snap.Ranked))

	errStyle := statVal
	if snap.Failed > 0 {
		errStyle = lipgloss.NewStyle().Foreground(styles.Error).Bold(true)
	}
	sb.WriteString(statLabel.Render("Failed:"))
	sb.WriteString(errStyle.Render(fmt.Sprintf("%d", snap.Failed)))
	sb.WriteString("\n")

	if last := m.shared.getLast(); last != nil {
		rank := "-"
		if last.Ranked() {
			rank = fmt.Sprintf("#%d", last.Rank)
		}
		row("Last cell:", fmt.Sprintf("(%d,%d) %s", last.Coordinate.Row, last.Coordinate.Col, rank))
	}

	row("Elapsed:", elapsed.String())

	if snap.Done > 0 && snap.Total > 0 && !m.done {
		rate := float64(snap.Done) / time.Since(m.startTime).Seconds()
		remaining := float64(snap.Total-snap.Done) / rate
		eta := time.Duration(remaining * float64(time.Second)).Truncate(time.Second)
		row("ETA:", "~"+eta.String())
	}

	return sb.String()
}

func (s *sharedState) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

func (s *sharedState) getCancel() context.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel
}

func (s *sharedState) setLocation(loc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = loc
}

func (s *sharedState) getLocation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

func (s *sharedState) record(cell model.CellResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid.Set(cell)
	s.last = &cell
}

func (s *sharedState) getLast() *model.CellResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *sharedState) setGrid(g components.HeatGrid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = g
}

func (s *sharedState) gridView() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grid.View()
}

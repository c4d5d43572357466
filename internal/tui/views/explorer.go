package views

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rendis/rankgrid/internal/engine/export"
	"github.com/rendis/rankgrid/internal/engine/heatmap"
	"github.com/rendis/rankgrid/internal/engine/storage"
	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/model"
	"github.com/rendis/rankgrid/internal/tui/components"
	"github.com/rendis/rankgrid/internal/tui/styles"
)

const historyLimit = 200

type focusArea int

const (
	focusTable focusArea = iota
	focusFilter
)

// ExplorerModel lists stored scans and shows the heat map of the selected one.
type ExplorerModel struct {
	svc           Services
	scans         []model.ScanSummary
	filtered      []model.ScanSummary
	table         table.Model
	filter        textinput.Model
	focus         focusArea
	selected      int
	preselect     string
	detail        *model.ScanResult
	confirmDelete bool
	width         int
	height        int
	err           error
	statusMsg     string
}

type historyLoadedMsg struct {
	Scans []model.ScanSummary
	Err   error
}

type scanLoadedMsg struct {
	Scan *model.ScanResult
	Err  error
}

type scanDeletedMsg struct {
	ID  string
	Err error
}

func NewExplorerModel(svc Services, scanID string) ExplorerModel {
	filter := textinput.New()
	filter.Placeholder = "Type to filter..."
	filter.CharLimit = 50

	m := ExplorerModel{
		svc:       svc,
		filter:    filter,
		selected:  -1,
		preselect: scanID,
	}
	m.buildTable(nil)
	return m
}

func (m ExplorerModel) Init() tea.Cmd {
	return m.loadHistory()
}

func (m ExplorerModel) loadHistory() tea.Cmd {
	store := m.svc.Store
	ctx := m.svc.ctx()
	return func() tea.Msg {
		if store == nil {
			return historyLoadedMsg{Err: fmt.Errorf("scan history is not available")}
		}
		scans, err := store.ListScans(ctx, storage.ListFilter{Limit: historyLimit})
		return historyLoadedMsg{Scans: scans, Err: err}
	}
}

func (m ExplorerModel) loadScan(id string) tea.Cmd {
	store := m.svc.Store
	ctx := m.svc.ctx()
	return func() tea.Msg {
		scan, err := store.LoadScan(ctx, id)
		return scanLoadedMsg{Scan: scan, Err: err}
	}
}

func (m ExplorerModel) deleteScan(id string) tea.Cmd {
	store := m.svc.Store
	ctx := m.svc.ctx()
	return func() tea.Msg {
		return scanDeletedMsg{ID: id, Err: store.DeleteScan(ctx, id)}
	}
}

func (m ExplorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" {
			return m, tea.Quit
		}

		if m.confirmDelete {
			m.confirmDelete = false
			if key == "y" {
				if sum, ok := m.current(); ok {
					return m, m.deleteScan(sum.ID)
				}
			}
			m.statusMsg = ""
			return m, nil
		}

		switch m.focus {
		case focusTable:
			switch key {
			case "esc", "q":
				return m, func() tea.Msg { return NavigateToHome{} }
			case "/", "tab":
				m.focus = focusFilter
				m.filter.Focus()
				m.table.SetStyles(m.unfocusedTableStyles())
				return m, textinput.Blink
			case "e":
				m.exportSelected(export.FormatCSV)
				return m, nil
			case "g":
				m.exportSelected(export.FormatGeoJSON)
				return m, nil
			case "d":
				if _, ok := m.current(); ok {
					m.confirmDelete = true
				}
				return m, nil
			case "r":
				m.statusMsg = ""
				return m, m.loadHistory()
			}

		case focusFilter:
			switch key {
			case "esc", "enter", "tab":
				m.focus = focusTable
				m.filter.Blur()
				m.table.SetStyles(m.focusedTableStyles())
				return m, nil
			}
		}

	case historyLoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.scans = msg.Scans
		m.applyFilter()
		if m.preselect != "" {
			for i, s := range m.filtered {
				if s.ID == m.preselect {
					m.selected = i
					m.table.SetCursor(i)
				}
			}
			m.preselect = ""
		}
		return m, m.selectionChanged()

	case scanLoadedMsg:
		if msg.Err != nil {
			m.statusMsg = fmt.Sprintf("Load error: %v", msg.Err)
			m.detail = nil
			return m, nil
		}
		// a slow load may land after the cursor moved on
		if sum, ok := m.current(); ok && sum.ID == msg.Scan.ID {
			m.detail = msg.Scan
		}
		return m, nil

	case scanDeletedMsg:
		if msg.Err != nil {
			m.statusMsg = fmt.Sprintf("Delete error: %v", msg.Err)
			return m, nil
		}
		m.svc.logger().Info("scan deleted", logging.String("scan_id", msg.ID))
		m.statusMsg = "Deleted " + msg.ID
		m.detail = nil
		return m, m.loadHistory()
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusTable:
		m.table, cmd = m.table.Update(msg)
		if cursor := m.table.Cursor(); cursor != m.selected && cursor < len(m.filtered) {
			m.selected = cursor
			return m, tea.Batch(cmd, m.selectionChanged())
		}
	case focusFilter:
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, tea.Batch(cmd, m.selectionChanged())
	}
	return m, cmd
}

// selectionChanged loads the selected scan unless it is already shown.
func (m *ExplorerModel) selectionChanged() tea.Cmd {
	sum, ok := m.current()
	if !ok {
		m.detail = nil
		return nil
	}
	if m.detail != nil && m.detail.ID == sum.ID {
		return nil
	}
	return m.loadScan(sum.ID)
}

func (m ExplorerModel) current() (model.ScanSummary, bool) {
	if m.selected < 0 || m.selected >= len(m.filtered) {
		return model.ScanSummary{}, false
	}
	return m.filtered[m.selected], true
}

func (m *ExplorerModel) buildTable(scans []model.ScanSummary) {
	keywordW := 22
	targetW := 24
	if m.width > 110 {
		extra := m.width - 110
		keywordW += extra / 2
		targetW += extra / 2
	}

	columns := []table.Column{
		{Title: "Started", Width: 16},
		{Title: "Keyword", Width: keywordW},
		{Title: "Business", Width: targetW},
		{Title: "Grid", Width: 5},
		{Title: "Radius", Width: 7},
		{Title: "Ranked", Width: 8},
		{Title: "", Width: 3},
	}

	rows := make([]table.Row, len(scans))
	for i, s := range scans {
		name := s.BusinessName
		if name == "" {
			name = s.TargetID
		}
		flag := ""
		if s.Cancelled {
			flag = "✗"
		}
		rows[i] = table.Row{
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			truncate(s.Keyword, keywordW),
			truncate(name, targetW),
			fmt.Sprintf("%dx%d", s.Spec.Size, s.Spec.Size),
			fmt.Sprintf("%.2fmi", s.Spec.RadiusMiles),
			fmt.Sprintf("%d/%d", s.RankedCells, s.Spec.Cells()),
			flag,
		}
	}

	height := 10
	if m.table.Height() > 0 {
		height = m.table.Height()
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)
	if m.focus == focusTable {
		t.SetStyles(m.focusedTableStyles())
	} else {
		t.SetStyles(m.unfocusedTableStyles())
	}
	if m.selected > 0 && m.selected < len(rows) {
		t.SetCursor(m.selected)
	}
	m.table = t
}

func (m ExplorerModel) focusedTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Secondary)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.Primary).
		Bold(true)
	return s
}

func (m ExplorerModel) unfocusedTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Muted)
	s.Selected = s.Selected.
		Foreground(styles.Text).
		Background(lipgloss.Color("#333333")).
		Bold(false)
	return s
}

func (m *ExplorerModel) updateLayout() {
	if m.width <= 0 {
		return
	}
	tableH := m.height/2 - 8
	if tableH < 5 {
		tableH = 5
	}
	m.table.SetHeight(tableH)
	m.buildTable(m.filtered)
}

// normalize removes accents/diacritics and lowercases text for fuzzy matching.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	result, _, _ := transform.String(t, strings.ToLower(s))
	return result
}

// filterScans keeps the scans whose keyword, business, target or id contain
// every word of query, ignoring case and accents.
func filterScans(scans []model.ScanSummary, query string) []model.ScanSummary {
	words := strings.Fields(normalize(query))
	if len(words) == 0 {
		return scans
	}
	var out []model.ScanSummary
	for _, s := range scans {
		haystack := normalize(strings.Join([]string{
			s.Keyword, s.BusinessName, s.TargetID, s.ID,
		}, " "))
		match := true
		for _, w := range words {
			if !strings.Contains(haystack, w) {
				match = false
				break
			}
		}
		if match {
			out = append(out, s)
		}
	}
	return out
}

func (m *ExplorerModel) applyFilter() {
	m.filtered = filterScans(m.scans, m.filter.Value())
	if len(m.filtered) > 0 {
		m.selected = 0
	} else {
		m.selected = -1
	}
	m.buildTable(m.filtered)
}

func (m *ExplorerModel) exportSelected(format string) {
	if m.detail == nil {
		m.statusMsg = "Select a scan to export"
		return
	}
	dir := m.svc.ExportDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, m.detail.ID+export.Extension(format))

	f, err := os.Create(path)
	if err != nil {
		m.statusMsg = fmt.Sprintf("Export error: %v", err)
		return
	}
	defer f.Close()

	if err := export.Write(f, format, m.detail); err != nil {
		m.statusMsg = fmt.Sprintf("Export error: %v", err)
		return
	}
	m.statusMsg = fmt.Sprintf("Exported %d cells to %s", len(m.detail.Cells), path)
}

func (m ExplorerModel) View() string {
	if m.err != nil {
		return styles.Border.Render(
			styles.ErrorText.Render(fmt.Sprintf("Error loading history: %v", m.err)) + "\n\n" +
				styles.StatusBar.Render("r retry • esc back"))
	}

	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Scan History: %d scans", len(m.scans))))
	if len(m.filtered) != len(m.scans) {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
			Render(fmt.Sprintf(" (showing %d)", len(m.filtered))))
	}
	b.WriteString("\n\n")

	filterStyle := lipgloss.NewStyle().Foreground(styles.Muted)
	if m.focus == focusFilter {
		filterStyle = lipgloss.NewStyle().Foreground(styles.Primary)
	}
	b.WriteString(filterStyle.Render("Filter: "))
	b.WriteString(m.filter.View())
	b.WriteString("\n")

	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	b.WriteString(m.viewDetail())
	b.WriteString("\n\n")

	if m.confirmDelete {
		if sum, ok := m.current(); ok {
			b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Delete scan %s? y to confirm", sum.ID)))
			b.WriteString("\n")
		}
	} else if m.statusMsg != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Render(m.statusMsg))
		b.WriteString("\n")
	}

	var statusText string
	switch m.focus {
	case focusTable:
		statusText = "↑↓ navigate • / filter • e csv • g geojson • d delete • r reload • esc back"
	case focusFilter:
		statusText = "type to filter • esc back"
	}
	b.WriteString(styles.StatusBar.Render(statusText))

	return b.String()
}

func (m ExplorerModel) viewDetail() string {
	placeholder := lipgloss.NewStyle().Foreground(styles.Muted).Italic(true)
	if len(m.filtered) == 0 {
		return placeholder.Render("No scans yet. Start one from the home screen.")
	}
	if m.detail == nil {
		return placeholder.Render("Loading scan...")
	}

	scan := m.detail
	sum := heatmap.Summarize(scan, 5)

	gridBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Primary).
		Padding(0, 1).
		Render(components.HeatGridFromScan(scan).View() + "\n\n" + components.Legend())

	var info strings.Builder
	label := lipgloss.NewStyle().Foreground(styles.Muted).Width(12)
	val := lipgloss.NewStyle().Foreground(styles.Text).Bold(true)
	row := func(l, v string) {
		info.WriteString(label.Render(l))
		info.WriteString(val.Render(v))
		info.WriteString("\n")
	}

	name := scan.BusinessName
	if name == "" {
		name = scan.TargetID
	}
	info.WriteString(lipgloss.NewStyle().Bold(true).Foreground(styles.Text).Render(truncate(name, 40)))
	info.WriteString("\n")
	info.WriteString(lipgloss.NewStyle().Foreground(styles.Secondary).Render(fmt.Sprintf("%q", scan.Keyword)))
	info.WriteString("\n\n")

	row("Center:", fmt.Sprintf("%.5f, %.5f", scan.Spec.Center.Lat, scan.Spec.Center.Lng))
	row("Ranked:", fmt.Sprintf("%d/%d", sum.Stats.RankedCells, sum.Stats.TotalCells))
	if avg, ok := sum.Stats.Average(); ok {
		row("Average:", fmt.Sprintf("%.1f", avg))
		row("Best/Worst:", fmt.Sprintf("#%d / #%d", sum.Stats.BestRank, sum.Stats.WorstRank))
	} else {
		row("Average:", "n/a")
	}
	row("Top 3:", fmt.Sprintf("%.0f%%", sum.Top3Share*100))
	if sum.Stats.FailedCells > 0 {
		info.WriteString(label.Render("Failed:"))
		info.WriteString(lipgloss.NewStyle().Foreground(styles.Error).Bold(true).
			Render(fmt.Sprintf("%d", sum.Stats.FailedCells)))
		info.WriteString("\n")
	}
	row("Duration:", scan.Duration().Round(time.Second).String())
	if scan.Cancelled {
		info.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).Bold(true).Render("Cancelled"))
		info.WriteString("\n")
	}

	if len(sum.TopCompetitors) > 0 {
		info.WriteString("\n")
		info.WriteString(styles.Subtitle.Render("Top competitors"))
		info.WriteString("\n")
		for _, c := range sum.TopCompetitors {
			info.WriteString(fmt.Sprintf("%-28s %3.0f%%\n", truncate(c.Name, 28), c.Share*100))
		}
	}

	infoBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Render(strings.TrimRight(info.String(), "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, gridBox, " ", infoBox)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

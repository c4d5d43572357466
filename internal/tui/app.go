package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/rankgrid/internal/tui/views"
)

// Deps is what the TUI needs from the engine.
type Deps = views.Services

type viewID int

const (
	viewHome viewID = iota
	viewScanForm
	viewProgress
	viewExplorer
)

// App is the root bubbletea model.
type App struct {
	svc         views.Services
	currentView viewID
	width       int
	height      int
	home        views.HomeModel
	scanForm    views.ScanFormModel
	progress    views.ProgressModel
	explorer    views.ExplorerModel
}

func NewApp(deps Deps) App {
	return App{
		svc:         deps,
		currentView: viewHome,
		home:        views.NewHomeModel(deps.Version),
		scanForm:    views.NewScanFormModel(deps),
	}
}

func (a App) Init() tea.Cmd {
	return a.home.Init()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && a.currentView != viewProgress {
			return a, tea.Quit
		}
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	case views.NavigateToScanForm:
		a.currentView = viewScanForm
		a.scanForm = views.NewScanFormModel(a.svc)
		return a, a.scanForm.Init()
	case views.NavigateToHome:
		a.currentView = viewHome
		return a, nil
	case views.StartScanMsg:
		a.currentView = viewProgress
		a.progress = views.NewProgressModel(a.svc, msg)
		return a, tea.Batch(a.progress.Init(), a.sizeCmd())
	case views.NavigateToExplorer:
		a.currentView = viewExplorer
		a.explorer = views.NewExplorerModel(a.svc, msg.ScanID)
		return a, tea.Batch(a.explorer.Init(), a.sizeCmd())
	}

	var cmd tea.Cmd
	switch a.currentView {
	case viewHome:
		var m tea.Model
		m, cmd = a.home.Update(msg)
		a.home = m.(views.HomeModel)
	case viewScanForm:
		var m tea.Model
		m, cmd = a.scanForm.Update(msg)
		a.scanForm = m.(views.ScanFormModel)
	case viewProgress:
		var m tea.Model
		m, cmd = a.progress.Update(msg)
		a.progress = m.(views.ProgressModel)
	case viewExplorer:
		var m tea.Model
		m, cmd = a.explorer.Update(msg)
		a.explorer = m.(views.ExplorerModel)
	}

	return a, cmd
}

func (a App) View() string {
	var content string
	switch a.currentView {
	case viewHome:
		content = a.home.View()
	case viewScanForm:
		content = a.scanForm.View()
	case viewProgress:
		content = a.progress.View()
	case viewExplorer:
		content = a.explorer.View()
	}

	return lipgloss.Place(
		a.width, a.height,
		lipgloss.Center, lipgloss.Top,
		content,
	)
}

// sizeCmd sends a WindowSizeMsg so newly created views get the current terminal size.
func (a App) sizeCmd() tea.Cmd {
	w, h := a.width, a.height
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: w, Height: h}
	}
}

// Run starts the TUI and blocks until it exits or ctx is cancelled.
func Run(ctx context.Context, deps Deps) error {
	deps.Ctx = ctx
	p := tea.NewProgram(NewApp(deps), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

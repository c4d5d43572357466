package views

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/rankgrid/internal/model"
	"github.com/rendis/rankgrid/internal/tui/styles"
)

type centerMode int

const (
	modeAddress centerMode = iota
	modeCoords
)

// Field indices. fieldMode is a virtual field (not a textinput).
const (
	fieldMode = iota
	fieldKeyword
	fieldTarget
	fieldName
	fieldAddress
	fieldLat
	fieldLng
	fieldGrid
	fieldRadius
	fieldCount
)

type ScanFormModel struct {
	inputs  []textinput.Model
	mode    centerMode
	focused int
	err     string
}

func NewScanFormModel(svc Services) ScanFormModel {
	grid := svc.DefaultGridSize
	if grid <= 0 {
		grid = model.DefaultGridSize
	}
	radius := svc.DefaultRadiusMiles
	if radius <= 0 {
		radius = model.DefaultRadiusMiles
	}

	inputs := make([]textinput.Model, fieldCount)
	inputs[fieldMode] = textinput.New() // placeholder, never used
	inputs[fieldKeyword] = newInput("dentist near me", "", 40)
	inputs[fieldTarget] = newInput("place id or CID", "", 40)
	inputs[fieldName] = newInput("optional: display name", "", 40)
	inputs[fieldAddress] = newInput("1600 Amphitheatre Pkwy, Mountain View", "", 50)
	inputs[fieldLat] = newInput("37.4220", "", 15)
	inputs[fieldLng] = newInput("-122.0841", "", 15)
	inputs[fieldGrid] = newInput("3, 5 or 7", strconv.Itoa(grid), 5)
	inputs[fieldRadius] = newInput("0.5", strconv.FormatFloat(radius, 'f', -1, 64), 8)

	mode := modeAddress
	if svc.Geocoder == nil {
		mode = modeCoords
	}

	return ScanFormModel{
		inputs:  inputs,
		mode:    mode,
		focused: fieldMode,
	}
}

func newInput(placeholder, value string, width int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 100
	if width > 0 {
		ti.Width = width
	}
	if value != "" {
		ti.SetValue(value)
	}
	return ti
}

func (m ScanFormModel) Init() tea.Cmd {
	return nil
}

func (m ScanFormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			return m, func() tea.Msg { return NavigateToHome{} }
		case "up", "shift+tab":
			m.err = ""
			return m, m.focusPrev()
		case "down", "tab":
			m.err = ""
			return m, m.focusNext()
		case "enter":
			if cmd := m.submit(); cmd != nil {
				return m, cmd
			}
			return m, nil
		case "left":
			if m.focused == fieldMode {
				m.mode = modeAddress
				return m, nil
			}
		case "right":
			if m.focused == fieldMode {
				m.mode = modeCoords
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	if m.focused != fieldMode && m.focused >= 0 && m.focused < fieldCount {
		m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	}
	return m, cmd
}

func (m *ScanFormModel) focusNext() tea.Cmd {
	if m.focused != fieldMode {
		m.inputs[m.focused].Blur()
	}
	m.focused = m.skipField(m.focused+1, 1)
	if m.focused >= fieldCount {
		m.focused = fieldMode
	}
	if m.focused == fieldMode {
		return nil
	}
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *ScanFormModel) focusPrev() tea.Cmd {
	if m.focused != fieldMode {
		m.inputs[m.focused].Blur()
	}
	m.focused = m.skipField(m.focused-1, -1)
	if m.focused < 0 {
		m.focused = fieldRadius
	}
	if m.focused == fieldMode {
		return nil
	}
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *ScanFormModel) skipField(idx, dir int) int {
	for idx > fieldMode && idx < fieldCount {
		if m.mode == modeAddress && (idx == fieldLat || idx == fieldLng) {
			idx += dir
			continue
		}
		if m.mode == modeCoords && idx == fieldAddress {
			idx += dir
			continue
		}
		break
	}
	return idx
}

func (m *ScanFormModel) value(idx int) string {
	return strings.TrimSpace(m.inputs[idx].Value())
}

// submit validates the form and returns the StartScanMsg command, or sets
// m.err and returns nil.
func (m *ScanFormModel) submit() tea.Cmd {
	msg := StartScanMsg{
		Keyword:      m.value(fieldKeyword),
		TargetID:     m.value(fieldTarget),
		BusinessName: m.value(fieldName),
	}
	if msg.Keyword == "" {
		m.err = "Keyword is required"
		return nil
	}
	if msg.TargetID == "" {
		m.err = "Target id is required"
		return nil
	}

	if m.mode == modeAddress {
		msg.Address = m.value(fieldAddress)
		if msg.Address == "" {
			m.err = "Address is required"
			return nil
		}
	} else {
		lat, errLat := strconv.ParseFloat(m.value(fieldLat), 64)
		lng, errLng := strconv.ParseFloat(m.value(fieldLng), 64)
		if errLat != nil || errLng != nil {
			m.err = "Lat and Lng must be numbers"
			return nil
		}
		if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			m.err = "Lat must be within [-90, 90] and Lng within [-180, 180]"
			return nil
		}
		msg.Center = &model.LatLng{Lat: lat, Lng: lng}
	}

	grid, err := strconv.Atoi(m.value(fieldGrid))
	if err != nil || grid < model.MinGridSize || grid > model.MaxGridSize {
		m.err = fmt.Sprintf("Grid size must be between %d and %d", model.MinGridSize, model.MaxGridSize)
		return nil
	}
	msg.GridSize = grid

	radius, err := strconv.ParseFloat(m.value(fieldRadius), 64)
	if err != nil || radius <= 0 {
		m.err = "Radius must be a positive number of miles"
		return nil
	}
	msg.RadiusMiles = radius

	return func() tea.Msg { return msg }
}

func (m ScanFormModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("New Scan") + "\n\n")

	b.WriteString(m.renderField("Keyword:", fieldKeyword))
	b.WriteString(m.renderField("Target ID:", fieldTarget))
	b.WriteString(m.renderField("Name:", fieldName))
	b.WriteString("\n")

	b.WriteString(m.renderMode())
	if m.mode == modeAddress {
		b.WriteString(m.renderField("Address:", fieldAddress))
	} else {
		b.WriteString(m.renderField("Latitude:", fieldLat))
		b.WriteString(m.renderField("Longitude:", fieldLng))
	}

	b.WriteString("\n")
	b.WriteString(m.renderField("Grid size:", fieldGrid))
	if m.focused == fieldGrid {
		hint := lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("  even sizes round up | 7x7 probes 49 cells")
		b.WriteString(hint + "\n")
	}
	b.WriteString(m.renderField("Radius (mi):", fieldRadius))

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render("  " + m.err))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.StatusBar.Render("enter start • tab next • esc back"))

	return styles.Border.Render(b.String())
}

func (m ScanFormModel) renderMode() string {
	label := styles.Label.Render("Center:")

	active := lipgloss.NewStyle().Foreground(styles.Primary).Bold(true)
	inactive := lipgloss.NewStyle().Foreground(styles.Muted)

	var addrStr, coordsStr string
	if m.mode == modeAddress {
		addrStr = active.Render("< Address >")
		coordsStr = inactive.Render("Coordinates")
	} else {
		addrStr = inactive.Render("Address")
		coordsStr = active.Render("< Coordinates >")
	}

	line := fmt.Sprintf("%s  %s   %s", label, addrStr, coordsStr)
	if m.focused == fieldMode {
		line += lipgloss.NewStyle().Foreground(styles.Secondary).Render(" ←→")
	}
	return line + "\n"
}

func (m ScanFormModel) renderField(label string, idx int) string {
	l := styles.Label.Render(label)
	v := m.inputs[idx].View()
	return fmt.Sprintf("%s %s\n", l, v)
}

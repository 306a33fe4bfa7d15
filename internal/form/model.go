// Package form is the terminal link form: a URL input whose changes drive
// the preview controller, the description/image/title inputs it fills, a
// preview panel, and a status line.
package form

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
	"github.com/JakeFAU/linkpreview/internal/links"
	"github.com/JakeFAU/linkpreview/internal/preview"
)

// Input indexes.
const (
	fieldURL = iota
	fieldDescription
	fieldImage
	fieldTitle
	fieldCount
)

// Saver persists the submitted form. *apiclient.Client satisfies it.
type Saver interface {
	CreateLink(ctx context.Context, in links.Input) (linkpreview.Link, error)
}

type savedMsg struct {
	link linkpreview.Link
}

type saveErrorMsg struct {
	err error
}

// Model is the bubbletea model for the link form.
type Model struct {
	ctx        context.Context
	controller *preview.Controller
	bridge     *Bridge
	saver      Saver
	logger     *zap.Logger

	inputs  []textinput.Model
	focus   int
	handled string // URL value of the last change event

	effects preview.Effects
	saving  bool
	saved   *linkpreview.Link
	saveErr error
	width   int
}

// Options configures a Model.
type Options struct {
	// ShowPreview renders the preview panel. Without it fields are still
	// populated but nothing is shown.
	ShowPreview bool
	Logger      *zap.Logger
}

// New builds a form Model. The controller is created here so its view is
// the form's Bridge.
func New(ctx context.Context, fetcher preview.Fetcher, saver Saver, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bridge := NewBridge()
	controller := preview.New(fetcher, bridge, preview.Options{
		HasPreview: opts.ShowPreview,
		Logger:     logger.Named("preview"),
	})

	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.Width = 60
		inputs[i] = ti
	}
	inputs[fieldURL].Prompt = "URL:         "
	inputs[fieldURL].Placeholder = "https://example.com"
	inputs[fieldDescription].Prompt = "Description: "
	inputs[fieldImage].Prompt = "Image:       "
	inputs[fieldTitle].Prompt = "Title:       "
	inputs[fieldURL].Focus()

	return Model{
		ctx:        ctx,
		controller: controller,
		bridge:     bridge,
		saver:      saver,
		logger:     logger,
		inputs:     inputs,
	}
}

// Init attaches the controller and starts listening for effects.
func (m Model) Init() tea.Cmd {
	m.controller.Initialize()
	return tea.Batch(textinput.Blink, m.bridge.wait())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case effectsMsg:
		if msg.fresh {
			m = m.apply(msg.effects)
		}
		return m, m.bridge.wait()

	case savedMsg:
		m.saving = false
		m.saved = &msg.link
		m.saveErr = nil
		m.logger.Info("link saved", zap.String("link_id", msg.link.ID))
		return m, nil

	case saveErrorMsg:
		m.saving = false
		m.saveErr = msg.err
		m.logger.Warn("save link failed", zap.Error(msg.err))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.controller.Dispose()
			return m, tea.Quit
		case "tab", "down":
			m = m.moveFocus(1)
			return m, nil
		case "shift+tab", "up":
			m = m.moveFocus(-1)
			return m, nil
		case "enter":
			if m.focus == fieldURL {
				m = m.changeURL()
				return m, nil
			}
			return m.submit()
		case "ctrl+s":
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// moveFocus leaves the focused input. Leaving the URL input is the change
// event that starts a preview cycle.
func (m Model) moveFocus(delta int) Model {
	if m.focus == fieldURL {
		m = m.changeURL()
	}
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + fieldCount) % fieldCount
	m.inputs[m.focus].Focus()
	return m
}

// changeURL fires the controller for a changed URL value and applies the
// synchronous clearing immediately.
func (m Model) changeURL() Model {
	value := m.inputs[fieldURL].Value()
	if value == m.handled {
		return m
	}
	m.handled = value
	m.saved = nil
	m.saveErr = nil
	m.controller.HandleChange(m.ctx, value)
	if e, ok := m.bridge.Latest(); ok {
		m = m.apply(e)
	}
	return m
}

func (m Model) apply(e preview.Effects) Model {
	m.effects = e
	m.inputs[fieldDescription].SetValue(e.Fields.Description)
	m.inputs[fieldImage].SetValue(e.Fields.Image)
	m.inputs[fieldTitle].SetValue(e.Fields.Title)
	return m
}

// Input returns the form contents as a save payload.
func (m Model) Input() links.Input {
	return links.Input{
		URL: strings.TrimSpace(m.inputs[fieldURL].Value()),
		MetaData: linkpreview.MetaData{
			linkpreview.MetaDescription: m.inputs[fieldDescription].Value(),
			linkpreview.MetaImage:       m.inputs[fieldImage].Value(),
			linkpreview.MetaTitle:       m.inputs[fieldTitle].Value(),
		},
	}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.saving || m.saver == nil {
		return m, nil
	}
	m.saving = true
	m.saveErr = nil
	in := m.Input()
	ctx := m.ctx
	saver := m.saver
	return m, func() tea.Msg {
		link, err := saver.CreateLink(ctx, in)
		if err != nil {
			return saveErrorMsg{err: err}
		}
		return savedMsg{link: link}
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).MarginBottom(1)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	panelStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1).
			Width(64)
	panelTitleStyle = lipgloss.NewStyle().Bold(true)
	panelImageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("New Link"))
	b.WriteString("\n")
	for _, in := range m.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}

	if m.effects.Panel.Visible {
		b.WriteString("\n")
		b.WriteString(renderPanel(m.effects.Panel))
		b.WriteString("\n")
	}

	if m.effects.Message != "" {
		b.WriteString("\n")
		if m.effects.Phase == preview.PhaseFailed {
			b.WriteString(errorStyle.Render(m.effects.Message))
		} else {
			b.WriteString(statusStyle.Render(m.effects.Message))
		}
		b.WriteString("\n")
	}

	switch {
	case m.saving:
		b.WriteString("\n" + statusStyle.Render("Saving...") + "\n")
	case m.saveErr != nil:
		b.WriteString("\n" + errorStyle.Render("Error: "+m.saveErr.Error()) + "\n")
	case m.saved != nil:
		b.WriteString("\n" + successStyle.Render(fmt.Sprintf("Link saved (%s)", m.saved.ID)) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Tab to move • Enter on URL to preview • Ctrl+S to save • Esc to quit"))
	return b.String()
}

func renderPanel(p preview.Panel) string {
	lines := []string{panelTitleStyle.Render(p.Title)}
	if p.Description != "" {
		lines = append(lines, p.Description)
	}
	if p.ImageURL != "" {
		lines = append(lines, panelImageStyle.Render(p.ImageURL))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

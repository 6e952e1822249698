// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bandtap/internal/bands"
	"bandtap/internal/capture"
)

// fullScale is the magnitude of a full-scale int8 bin pair.
var fullScale = math.Hypot(128, 128)

const (
	defaultBarWidth = 40
	peakDecay       = 0.995
)

var (
	bassColor   = lipgloss.Color("#FF4500")
	midColor    = lipgloss.Color("#FFD700")
	trebleColor = lipgloss.Color("#1E90FF")

	labelStyle = lipgloss.NewStyle().Width(8)
	faintStyle = lipgloss.NewStyle().Faint(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC143C"))
)

// Controller is the part of a capture session the meter drives.
type Controller interface {
	Start() capture.Result
	Stop() capture.Result
	Running() bool
	Captures() uint64
}

// bandsMsg carries one snapshot from the subscription.
type bandsMsg bands.FrequencyBands

// feedClosedMsg is sent once the subscription channel closes.
type feedClosedMsg struct{}

type meterKeys struct {
	quit   key.Binding
	toggle key.Binding
	scale  key.Binding
}

var defaultMeterKeys = meterKeys{
	quit:   key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	toggle: key.NewBinding(key.WithKeys(" ", "s"), key.WithHelp("space", "start/stop")),
	scale:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto scale")),
}

// MeterModel shows live bass, mid and treble levels.
type MeterModel struct {
	feed    <-chan bands.FrequencyBands
	session Controller
	keys    meterKeys

	bars    [3]progress.Model
	current bands.FrequencyBands
	peak    float64
	auto    bool
	updates int
	status  string
	closed  bool
}

// NewMeterModel returns a meter reading from feed. session may be nil, in
// which case the start/stop key is ignored.
func NewMeterModel(feed <-chan bands.FrequencyBands, session Controller) MeterModel {
	bar := func(c lipgloss.Color) progress.Model {
		return progress.New(
			progress.WithSolidFill(string(c)),
			progress.WithWidth(defaultBarWidth),
			progress.WithoutPercentage(),
		)
	}
	return MeterModel{
		feed:    feed,
		session: session,
		keys:    defaultMeterKeys,
		bars:    [3]progress.Model{bar(bassColor), bar(midColor), bar(trebleColor)},
		auto:    true,
	}
}

// Init starts listening for snapshots.
func (m MeterModel) Init() tea.Cmd {
	return waitForBands(m.feed)
}

func waitForBands(feed <-chan bands.FrequencyBands) tea.Cmd {
	return func() tea.Msg {
		b, ok := <-feed
		if !ok {
			return feedClosedMsg{}
		}
		return bandsMsg(b)
	}
}

// Update handles snapshots, resizes and keys.
func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w := max(min(msg.Width-20, 60), 10)
		for i := range m.bars {
			m.bars[i].Width = w
		}
		return m, nil

	case bandsMsg:
		m.current = bands.FrequencyBands(msg)
		m.updates++
		m.peak = max(m.peak*peakDecay, m.current.Bass, m.current.Mid, m.current.Treble)
		return m, waitForBands(m.feed)

	case feedClosedMsg:
		m.closed = true
		m.status = "feed closed"
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.scale):
			m.auto = !m.auto
		case key.Matches(msg, m.keys.toggle):
			if m.session == nil {
				return m, nil
			}
			var res capture.Result
			if m.session.Running() {
				res = m.session.Stop()
			} else {
				res = m.session.Start()
			}
			m.status = res.String()
		}
	}
	return m, nil
}

// level maps a band value onto [0, 1].
func (m MeterModel) level(v float64) float64 {
	ref := fullScale
	if m.auto && m.peak > 0 {
		ref = m.peak
	}
	return min(max(v/ref, 0), 1)
}

// View renders the meter.
func (m MeterModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Band Meter"))
	sb.WriteString("\n\n")

	values := [3]float64{m.current.Bass, m.current.Mid, m.current.Treble}
	names := [3]string{bands.BassName, bands.MidName, bands.TrebleName}
	for i, bar := range m.bars {
		fmt.Fprintf(&sb, "%s%s %6.2f\n",
			labelStyle.Render(names[i]), bar.ViewAs(m.level(values[i])), values[i])
	}

	state := "stopped"
	if m.session != nil && m.session.Running() {
		state = "running"
	}
	scale := "fixed"
	if m.auto {
		scale = "auto"
	}
	sb.WriteString("\n")
	sb.WriteString(faintStyle.Render(fmt.Sprintf("%s • %d updates • scale %s", state, m.updates, scale)))
	if m.status != "" {
		sb.WriteString("\n")
		if m.closed || strings.HasPrefix(m.status, capture.Failed.String()) {
			sb.WriteString(errorStyle.Render(m.status))
		} else {
			sb.WriteString(faintStyle.Render(m.status))
		}
	}
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render("space: Start/Stop • a: Auto scale • q: Quit"))
	return sb.String()
}

// RunMeter shows the meter until the user quits.
func RunMeter(feed <-chan bands.FrequencyBands, session Controller) error {
	p := tea.NewProgram(NewMeterModel(feed, session), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

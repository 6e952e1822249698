// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bandtap/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

// ErrCancelled is returned by PickDevice when the user quits without
// choosing.
var ErrCancelled = errors.New("device selection cancelled")

// CommonSampleRates are offered on the configuration screen.
var CommonSampleRates = []float64{44100, 48000, 88200, 96000}

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the outcome of the device picker.
type Selection struct {
	Device     audio.Device
	SampleRate float64
}

type pickerKeys struct {
	quit, up, down, enter, back key.Binding
}

var defaultPickerKeys = pickerKeys{
	quit:  key.NewBinding(key.WithKeys("q", "ctrl+c")),
	up:    key.NewBinding(key.WithKeys("up", "k")),
	down:  key.NewBinding(key.WithKeys("down", "j")),
	enter: key.NewBinding(key.WithKeys("enter")),
	back:  key.NewBinding(key.WithKeys("esc")),
}

// DeviceListModel lets the user pick a capture device and sample rate.
// Only devices with input channels are listed.
type DeviceListModel struct {
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType
	keys          pickerKeys

	sampleRateIndex int
	selection       *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// Replaced in tests.
var hostDevices = audio.HostDevices

func fetchDevices() tea.Msg {
	devices, err := hostDevices()
	if err != nil {
		return errMsg{err}
	}
	inputs := slices.DeleteFunc(devices, func(d audio.Device) bool {
		return d.MaxInputChannels == 0
	})
	return devicesMsg{inputs}
}

// NewDeviceListModel creates a new device list model
func NewDeviceListModel() DeviceListModel {
	return DeviceListModel{activeScreen: ListScreen, keys: defaultPickerKeys}
}

// Init fetches the device list.
func (m DeviceListModel) Init() tea.Cmd {
	return fetchDevices
}

// Selection returns the confirmed choice, or nil.
func (m DeviceListModel) Selection() *Selection {
	return m.selection
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) || m.err != nil {
			return m, tea.Quit
		}
		if m.handleKey(msg) {
			return m, tea.Quit
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// handleKey applies a navigation key and reports whether a selection was
// confirmed.
func (m *DeviceListModel) handleKey(msg tea.KeyMsg) bool {
	switch m.activeScreen {
	case ListScreen:
		switch {
		case key.Matches(msg, m.keys.up):
			m.selectedIndex = max(m.selectedIndex-1, 0)
		case key.Matches(msg, m.keys.down):
			m.selectedIndex = max(min(m.selectedIndex+1, len(m.devices)-1), 0)
		case key.Matches(msg, m.keys.enter):
			if len(m.devices) == 0 {
				return false
			}
			m.activeScreen = ConfigScreen
			m.sampleRateIndex = max(slices.Index(CommonSampleRates, m.devices[m.selectedIndex].DefaultSampleRate), 0)
		}

	case ConfigScreen:
		switch {
		case key.Matches(msg, m.keys.back):
			m.activeScreen = ListScreen
		case key.Matches(msg, m.keys.up):
			m.sampleRateIndex = max(m.sampleRateIndex-1, 0)
		case key.Matches(msg, m.keys.down):
			m.sampleRateIndex = min(m.sampleRateIndex+1, len(CommonSampleRates)-1)
		case key.Matches(msg, m.keys.enter):
			m.selection = &Selection{
				Device:     m.devices[m.selectedIndex],
				SampleRate: CommonSampleRates[m.sampleRateIndex],
			}
			return true
		}
	}
	return false
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
}

func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Capture Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Capture • Esc: Back • q: Quit")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No capture devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		info := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, device.Kind())
		info += fmt.Sprintf("    Input channels: %d, Default sample rate: %.0f Hz\n",
			device.MaxInputChannels, device.DefaultSampleRate)
		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configure Device: %s\n\nSample Rate:\n", m.devices[m.selectedIndex].Name)

	for i, rate := range CommonSampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// PickDevice runs the picker and returns the user's choice.
func PickDevice() (Selection, error) {
	p := tea.NewProgram(NewDeviceListModel(), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Selection{}, err
	}
	m, ok := final.(DeviceListModel)
	if !ok || m.Selection() == nil {
		return Selection{}, ErrCancelled
	}
	return *m.Selection(), nil
}

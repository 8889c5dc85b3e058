package main

import (
	"context"
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/glimte/nativebridge/bridge"
	"github.com/glimte/nativebridge/monitor"
)

// maxEvents bounds the event log kept on screen
const maxEvents = 200

// bridgeClient is what the TUI needs from a nativebridge.Client
type bridgeClient interface {
	Invoke(ctx context.Context, command string, args interface{}, opts ...bridge.CallOption) (json.RawMessage, error)
	Metrics() monitor.MetricsSummary
	Health(ctx context.Context) monitor.OverallHealth
}

type tab int

const (
	overviewTab tab = iota
	commandsTab
	eventsTab
	healthTab
	tabCount
)

type eventEntry struct {
	at    time.Time
	event string
	data  json.RawMessage
}

type model struct {
	client      bridgeClient
	events      <-chan eventEntry
	refresh     time.Duration
	pingCommand string

	activeTab   tab
	width       int
	height      int
	lastUpdate  time.Time
	autoRefresh bool

	metrics monitor.MetricsSummary
	health  *monitor.OverallHealth
	log     []eventEntry

	selectedCommand int
	lastPing        string
	err             error
}

type tickMsg struct{}

type dataMsg struct {
	metrics monitor.MetricsSummary
	health  monitor.OverallHealth
}

type eventMsg eventEntry

type pingMsg struct {
	took time.Duration
	err  error
}

func newModel(client bridgeClient, events <-chan eventEntry, refresh time.Duration) model {
	if refresh <= 0 {
		refresh = 2 * time.Second
	}
	return model{
		client:      client,
		events:      events,
		refresh:     refresh,
		pingCommand: "ping",
		activeTab:   overviewTab,
		autoRefresh: true,
		lastUpdate:  time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.tickCmd(),
		m.waitForEvent(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "tab", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil

		case "shift+tab", "left":
			m.activeTab = (m.activeTab + tabCount - 1) % tabCount
			return m, nil

		case "r":
			return m, m.fetchData()

		case "p":
			return m, m.ping()

		case "c":
			m.log = nil
			return m, nil

		case " ":
			m.autoRefresh = !m.autoRefresh
			if m.autoRefresh {
				return m, m.tickCmd()
			}
			return m, nil

		case "up":
			if m.activeTab == commandsTab && m.selectedCommand > 0 {
				m.selectedCommand--
			}
			return m, nil

		case "down":
			if m.activeTab == commandsTab && m.selectedCommand < len(m.metrics.Commands)-1 {
				m.selectedCommand++
			}
			return m, nil
		}

	case tickMsg:
		if m.autoRefresh {
			return m, tea.Batch(m.fetchData(), m.tickCmd())
		}

	case dataMsg:
		m.metrics = msg.metrics
		m.health = &msg.health
		m.lastUpdate = time.Now()
		if n := len(m.metrics.Commands); m.selectedCommand >= n {
			m.selectedCommand = max(n-1, 0)
		}
		return m, nil

	case eventMsg:
		m.log = append(m.log, eventEntry(msg))
		if len(m.log) > maxEvents {
			m.log = m.log[len(m.log)-maxEvents:]
		}
		return m, m.waitForEvent()

	case pingMsg:
		m.err = msg.err
		if msg.err == nil {
			m.lastPing = msg.took.Round(time.Millisecond).String()
		} else {
			m.lastPing = "failed"
		}
		return m, m.fetchData()
	}

	return m, nil
}

func (m model) fetchData() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return dataMsg{
			metrics: m.client.Metrics(),
			health:  m.client.Health(ctx),
		}
	}
}

func (m model) ping() tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		_, err := m.client.Invoke(context.Background(), m.pingCommand, nil)
		return pingMsg{took: time.Since(start), err: err}
	}
}

func (m model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func (m model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}
